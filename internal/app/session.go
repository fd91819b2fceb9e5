package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"quiz-progress-service/internal/domain"
)

// Phase is the lifecycle state of an open quiz session.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseActive
	PhaseSuspended
	PhaseTerminated
)

// SessionConfig controls the periodic callbacks owned by a session.
type SessionConfig struct {
	Tick     time.Duration // global timer increment period
	Autosave time.Duration // snapshot period
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.Autosave <= 0 {
		c.Autosave = 10 * time.Second
	}
	return c
}

// Progress is the snapshot broadcast to session subscribers.
type Progress struct {
	QuizID              string `json:"quizId"`
	FileName            string `json:"fileName"`
	CurrentQuestion     int    `json:"currentQuestion"`
	TotalQuestions      int    `json:"totalQuestions"`
	GlobalTimer         int    `json:"globalTimer"`
	CurrentQuestionTime int    `json:"currentQuestionTime"`
	Answer              string `json:"answer,omitempty"`
	Answered            int    `json:"answered"`
}

// Session orchestrates one open quiz-taking session: navigation, answer
// selection, periodic time accrual and snapshotting. Both periodic callbacks
// are owned by the session and stopped on Exit/Submit, so a torn-down view
// can never keep mutating state it no longer displays.
//
// Per-question accrual happens exactly once per transition, strictly
// accrue-then-switch, or time would attribute to the wrong question.
type Session struct {
	store *QuizStore
	log   *zap.Logger
	cfg   SessionConfig
	now   func() time.Time

	quizID string

	mu            sync.Mutex
	phase         Phase
	state         domain.QuizState
	questionStart time.Time
	subscribers   map[chan Progress]struct{}
	stop          chan struct{}
	done          chan struct{}
}

func NewSession(store *QuizStore, quizID string, cfg SessionConfig, log *zap.Logger) *Session {
	return newSessionWithClock(store, quizID, cfg, log, time.Now)
}

// NewSessionWithClock is test-only for deterministic accrual.
func NewSessionWithClock(store *QuizStore, quizID string, cfg SessionConfig, log *zap.Logger, now func() time.Time) *Session {
	return newSessionWithClock(store, quizID, cfg, log, now)
}

func newSessionWithClock(store *QuizStore, quizID string, cfg SessionConfig, log *zap.Logger, now func() time.Time) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		store:       store,
		log:         log,
		cfg:         cfg.withDefaults(),
		now:         now,
		quizID:      quizID,
		phase:       PhaseLoading,
		subscribers: make(map[chan Progress]struct{}),
	}
}

// Load fetches the stored state and reconciles the global timer against the
// wall-clock gap since the last snapshot, so the timer keeps approximating
// time since quiz creation no matter how often the session was suspended.
func (s *Session) Load(ctx context.Context) error {
	state, err := s.store.GetQuizState(ctx, s.quizID)
	if err != nil {
		return err
	}
	state.GlobalTimer += s.store.CalculateElapsedTime(state.LastUpdated)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLoading {
		return domain.ErrSessionNotActive
	}
	s.state = state
	return nil
}

// SetDocumentURL records the transient document reference supplied by the
// caller. It is persisted with the next snapshot but is only guaranteed
// valid within this session.
func (s *Session) SetDocumentURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PDFObjectURL = url
}

// Start transitions Loading -> Active and launches the tick and autosave
// callbacks.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLoading {
		return
	}
	s.activateLocked()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
}

func (s *Session) activateLocked() {
	s.phase = PhaseActive
	s.questionStart = s.now()
}

func (s *Session) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	saver := time.NewTicker(s.cfg.Autosave)
	defer saver.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.onTick()
		case <-saver.C:
			s.onAutosave(context.Background())
		}
	}
}

// onTick advances the global timer by exactly one second. Independent of
// per-question accrual: the global timer never pauses between questions.
func (s *Session) onTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseActive {
		return
	}
	s.state.GlobalTimer++
	s.broadcastLocked()
}

// onAutosave runs the same accrue-and-persist step as navigation, bounding
// unsaved progress to one autosave interval.
func (s *Session) onAutosave(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseActive {
		return
	}
	s.snapshotLocked(ctx)
}

// accrueLocked adds floor(now - questionStart) seconds to the current
// question's counter and resets the checkpoint.
func (s *Session) accrueLocked() {
	now := s.now()
	elapsed := int(now.Sub(s.questionStart) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	s.state.TimeSpent[s.state.CurrentQuestion] += elapsed
	s.questionStart = now
}

func (s *Session) snapshotLocked(ctx context.Context) {
	s.accrueLocked()
	s.store.SaveQuizState(ctx, s.state.Clone())
}

// Next advances to the following question; a no-op on the last one.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardActiveLocked(); err != nil {
		return err
	}
	if s.state.CurrentQuestion >= s.state.TotalQuestions {
		return nil
	}
	s.switchLocked(ctx, s.state.CurrentQuestion+1)
	return nil
}

// Prev moves to the preceding question; a no-op on the first one.
func (s *Session) Prev(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardActiveLocked(); err != nil {
		return err
	}
	if s.state.CurrentQuestion <= 1 {
		return nil
	}
	s.switchLocked(ctx, s.state.CurrentQuestion-1)
	return nil
}

// GoTo jumps to question n. Out-of-range targets are rejected with state
// unchanged.
func (s *Session) GoTo(ctx context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardActiveLocked(); err != nil {
		return err
	}
	if n < 1 || n > s.state.TotalQuestions {
		return domain.ErrQuestionOutOfRange
	}
	if n == s.state.CurrentQuestion {
		return nil
	}
	s.switchLocked(ctx, n)
	return nil
}

// switchLocked persists the accrued state for the outgoing question, then
// moves to n. The stored currentQuestion catches up at the next snapshot.
func (s *Session) switchLocked(ctx context.Context, n int) {
	s.snapshotLocked(ctx)
	s.state.CurrentQuestion = n
	s.broadcastLocked()
}

// SelectAnswer overwrites the current question's answer. Persisted at the
// next snapshot, like every other mutation.
func (s *Session) SelectAnswer(choice string) error {
	switch choice {
	case "a", "b", "c", "d":
	default:
		return domain.ErrInvalidAnswer
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardActiveLocked(); err != nil {
		return err
	}
	s.state.Answers[s.state.CurrentQuestion] = choice
	s.broadcastLocked()
	return nil
}

// Submit runs the final accrue-and-persist, marks the quiz completed, and
// terminates the session. Terminated is a hard guard: every later mutation
// fails with ErrSessionTerminated.
func (s *Session) Submit(ctx context.Context) (domain.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardActiveLocked(); err != nil {
		return domain.Summary{}, err
	}

	s.snapshotLocked(ctx)
	s.store.CompleteQuiz(ctx, s.quizID)

	s.phase = PhaseTerminated
	s.stopLocked()

	final := s.state.Clone()
	s.closeSubscribersLocked()

	return domain.Summary{
		Answers:        final.Answers,
		TimeSpent:      final.TimeSpent,
		TotalTime:      final.GlobalTimer,
		TotalQuestions: final.TotalQuestions,
		FileName:       final.FileName,
	}, nil
}

// Exit performs the same accrue-and-persist as navigation without
// terminating the quiz: the timers stop, wall-clock keeps passing, and the
// gap is added back on resume.
func (s *Session) Exit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardActiveLocked(); err != nil {
		return err
	}
	s.snapshotLocked(ctx)
	s.phase = PhaseSuspended
	s.stopLocked()
	s.closeSubscribersLocked()
	return nil
}

// Close tears the session down from the transport side. Active sessions are
// suspended with a final snapshot; anything else is left as is.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseActive {
		s.snapshotLocked(ctx)
		s.phase = PhaseSuspended
	}
	s.stopLocked()
	s.closeSubscribersLocked()
	// Drop the transient document reference with the session that owned it.
	s.state.PDFObjectURL = ""
}

// Phase reports the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Progress returns the current snapshot without mutating any counter.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

// Subscribe returns a channel that receives progress updates. The caller
// must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan Progress, func()) {
	ch := make(chan Progress, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.progressLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) guardActiveLocked() error {
	switch s.phase {
	case PhaseActive:
		return nil
	case PhaseTerminated:
		return domain.ErrSessionTerminated
	default:
		return domain.ErrSessionNotActive
	}
}

func (s *Session) stopLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *Session) progressLocked() Progress {
	cur := s.state.CurrentQuestion
	onQuestion := 0
	if s.phase == PhaseActive {
		onQuestion = int(s.now().Sub(s.questionStart) / time.Second)
		if onQuestion < 0 {
			onQuestion = 0
		}
	}
	return Progress{
		QuizID:              s.quizID,
		FileName:            s.state.FileName,
		CurrentQuestion:     cur,
		TotalQuestions:      s.state.TotalQuestions,
		GlobalTimer:         s.state.GlobalTimer,
		CurrentQuestionTime: s.state.TimeSpent[cur] + onQuestion,
		Answer:              s.state.Answers[cur],
		Answered:            len(s.state.Answers),
	}
}

func (s *Session) broadcastLocked() {
	p := s.progressLocked()
	for ch := range s.subscribers {
		select {
		case ch <- p:
		default:
			// Drop the stale update so a slow client never blocks the tick.
			select {
			case <-ch:
			default:
			}
			ch <- p
		}
	}
}

func (s *Session) closeSubscribersLocked() {
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}
