package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-progress-service/internal/domain"
	"quiz-progress-service/internal/store"
)

const (
	stateKeyPrefix = "quiz_"
	listKey        = "quiz_list"
)

// QuizStore is the quiz lifecycle manager: it owns the per-quiz state
// records and keeps the metadata list in sync with them. Storage writes are
// best-effort: failures are logged and swallowed, so at most one autosave
// interval of progress can be lost (the next successful snapshot recovers).
type QuizStore struct {
	kv    store.KV
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

func NewQuizStore(kv store.KV, log *zap.Logger) *QuizStore {
	return NewQuizStoreWithClock(kv, log, time.Now)
}

// NewQuizStoreWithClock is test-only for deterministic timestamps.
func NewQuizStoreWithClock(kv store.KV, log *zap.Logger, now func() time.Time) *QuizStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuizStore{
		kv:    kv,
		log:   log,
		now:   now,
		newID: uuid.NewString,
	}
}

// CreateQuiz writes an initial QuizState and appends the matching metadata
// entry, returning the fresh quiz id as the session handle.
func (s *QuizStore) CreateQuiz(ctx context.Context, fileName string, totalQuestions int) string {
	quizID := s.newID()
	nowMs := s.now().UnixMilli()

	s.SaveQuizState(ctx, domain.QuizState{
		QuizID:          quizID,
		FileName:        fileName,
		TotalQuestions:  totalQuestions,
		CurrentQuestion: 1,
		Answers:         map[int]string{},
		TimeSpent:       map[int]int{},
		GlobalTimer:     0,
		LastUpdated:     nowMs,
	})

	list := s.ListQuizzes(ctx)
	list = append(list, domain.QuizMetadata{
		QuizID:         quizID,
		FileName:       fileName,
		TotalQuestions: totalQuestions,
		StartedAt:      nowMs,
		LastUpdated:    nowMs,
		Completed:      false,
	})
	s.saveList(ctx, list)

	return quizID
}

// SaveQuizState overwrites the stored record for state.QuizID, restamping
// lastUpdated regardless of the caller-supplied value, then updates the
// metadata twin. The two writes are not atomic.
func (s *QuizStore) SaveQuizState(ctx context.Context, state domain.QuizState) {
	nowMs := s.now().UnixMilli()
	state.LastUpdated = nowMs

	raw, err := json.Marshal(state)
	if err != nil {
		s.log.Warn("marshaling quiz state", zap.String("quizId", state.QuizID), zap.Error(err))
		return
	}
	if err := s.kv.Set(ctx, stateKeyPrefix+state.QuizID, raw); err != nil {
		s.log.Warn("saving quiz state", zap.String("quizId", state.QuizID), zap.Error(err))
		return
	}

	s.updateMetadata(ctx, state.QuizID, func(m *domain.QuizMetadata) {
		m.LastUpdated = nowMs
	})
}

// GetQuizState returns the stored record verbatim. Absent and unparseable
// records both collapse to ErrQuizNotFound.
func (s *QuizStore) GetQuizState(ctx context.Context, quizID string) (domain.QuizState, error) {
	raw, err := s.kv.Get(ctx, stateKeyPrefix+quizID)
	if err != nil {
		return domain.QuizState{}, domain.ErrQuizNotFound
	}
	var state domain.QuizState
	if err := json.Unmarshal(raw, &state); err != nil {
		s.log.Warn("corrupt quiz state", zap.String("quizId", quizID), zap.Error(err))
		return domain.QuizState{}, domain.ErrQuizNotFound
	}
	if state.Answers == nil {
		state.Answers = map[int]string{}
	}
	if state.TimeSpent == nil {
		state.TimeSpent = map[int]int{}
	}
	return state, nil
}

// CompleteQuiz flags the metadata entry completed. The transition is one-way
// and the call is a no-op for unknown ids.
func (s *QuizStore) CompleteQuiz(ctx context.Context, quizID string) {
	s.updateMetadata(ctx, quizID, func(m *domain.QuizMetadata) {
		m.Completed = true
	})
}

// ListQuizzes returns all metadata entries in stored insertion order.
// Callers re-sort for display.
func (s *QuizStore) ListQuizzes(ctx context.Context) []domain.QuizMetadata {
	raw, err := s.kv.Get(ctx, listKey)
	if err != nil {
		return nil
	}
	var list []domain.QuizMetadata
	if err := json.Unmarshal(raw, &list); err != nil {
		s.log.Warn("corrupt quiz list", zap.Error(err))
		return nil
	}
	return list
}

// DeleteQuiz removes the state record and filters the metadata list. The two
// writes are not atomic; readers treat a surviving half as not found.
func (s *QuizStore) DeleteQuiz(ctx context.Context, quizID string) {
	if err := s.kv.Delete(ctx, stateKeyPrefix+quizID); err != nil {
		s.log.Warn("deleting quiz state", zap.String("quizId", quizID), zap.Error(err))
	}

	list := s.ListQuizzes(ctx)
	filtered := list[:0]
	for _, m := range list {
		if m.QuizID != quizID {
			filtered = append(filtered, m)
		}
	}
	s.saveList(ctx, filtered)
}

// CalculateElapsedTime returns whole seconds since lastUpdated (unix
// milliseconds), clamped to non-negative. Callers add it to a resumed
// globalTimer so it keeps approximating wall-clock time across suspensions.
func (s *QuizStore) CalculateElapsedTime(lastUpdated int64) int {
	elapsed := (s.now().UnixMilli() - lastUpdated) / 1000
	if elapsed < 0 {
		return 0
	}
	return int(elapsed)
}

func (s *QuizStore) saveList(ctx context.Context, list []domain.QuizMetadata) {
	if list == nil {
		list = []domain.QuizMetadata{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		s.log.Warn("marshaling quiz list", zap.Error(err))
		return
	}
	if err := s.kv.Set(ctx, listKey, raw); err != nil {
		s.log.Warn("saving quiz list", zap.Error(err))
	}
}

func (s *QuizStore) updateMetadata(ctx context.Context, quizID string, apply func(*domain.QuizMetadata)) {
	list := s.ListQuizzes(ctx)
	for i := range list {
		if list[i].QuizID == quizID {
			apply(&list[i])
			s.saveList(ctx, list)
			return
		}
	}
}
