package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-progress-service/internal/domain"
	"quiz-progress-service/internal/store/memory"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newSessionFixture(t *testing.T, totalQuestions int) (*QuizStore, *Session, *testClock, string) {
	t.Helper()
	ctx := context.Background()
	clock := newTestClock()
	quizStore := NewQuizStoreWithClock(memory.New(), nil, clock.Now)
	quizID := quizStore.CreateQuiz(ctx, "exam.pdf", totalQuestions)

	session := newSessionWithClock(quizStore, quizID, SessionConfig{}, nil, clock.Now)
	if err := session.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	session.Start()
	return quizStore, session, clock, quizID
}

func TestSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	quizStore, session, clock, _ := newSessionFixture(t, 3)

	if err := session.SelectAnswer("b"); err != nil {
		t.Fatalf("answer q1: %v", err)
	}
	clock.Advance(5 * time.Second)
	if err := session.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := session.SelectAnswer("a"); err != nil {
		t.Fatalf("answer q2: %v", err)
	}

	summary, err := session.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if summary.Answers[1] != "b" || summary.Answers[2] != "a" || len(summary.Answers) != 2 {
		t.Fatalf("unexpected answers %+v", summary.Answers)
	}
	if summary.TimeSpent[1] != 5 {
		t.Fatalf("expected 5s on question 1, got %d", summary.TimeSpent[1])
	}
	if summary.TotalQuestions != 3 || summary.FileName != "exam.pdf" {
		t.Fatalf("unexpected summary %+v", summary)
	}

	list := quizStore.ListQuizzes(ctx)
	if !list[0].Completed {
		t.Fatalf("expected metadata completed after submit")
	}

	// Terminated is a hard guard.
	if err := session.SelectAnswer("c"); !errors.Is(err, domain.ErrSessionTerminated) {
		t.Fatalf("expected ErrSessionTerminated, got %v", err)
	}
	if err := session.Next(ctx); !errors.Is(err, domain.ErrSessionTerminated) {
		t.Fatalf("expected ErrSessionTerminated, got %v", err)
	}
	if _, err := session.Submit(ctx); !errors.Is(err, domain.ErrSessionTerminated) {
		t.Fatalf("expected ErrSessionTerminated, got %v", err)
	}
}

func TestSessionResumeAddsSuspendedGap(t *testing.T) {
	ctx := context.Background()
	quizStore, session, clock, quizID := newSessionFixture(t, 5)

	// Seven ticks of active quiz time.
	for i := 0; i < 7; i++ {
		clock.Advance(time.Second)
		session.onTick()
	}
	if err := session.Exit(ctx); err != nil {
		t.Fatalf("exit: %v", err)
	}

	stored, err := quizStore.GetQuizState(ctx, quizID)
	if err != nil {
		t.Fatalf("get after exit: %v", err)
	}
	if stored.GlobalTimer != 7 {
		t.Fatalf("expected frozen globalTimer 7, got %d", stored.GlobalTimer)
	}

	// Session closed for 30 wall-clock seconds.
	clock.Advance(30 * time.Second)

	resumed := newSessionWithClock(quizStore, quizID, SessionConfig{}, nil, clock.Now)
	if err := resumed.Load(ctx); err != nil {
		t.Fatalf("load resumed: %v", err)
	}
	if resumed.state.GlobalTimer != 37 {
		t.Fatalf("expected globalTimer 7+30=37 after resume, got %d", resumed.state.GlobalTimer)
	}
}

func TestSessionNavigationBounds(t *testing.T) {
	ctx := context.Background()
	_, session, _, _ := newSessionFixture(t, 3)

	if err := session.GoTo(ctx, 0); !errors.Is(err, domain.ErrQuestionOutOfRange) {
		t.Fatalf("expected out of range for 0, got %v", err)
	}
	if err := session.GoTo(ctx, 4); !errors.Is(err, domain.ErrQuestionOutOfRange) {
		t.Fatalf("expected out of range for 4, got %v", err)
	}
	if got := session.Progress().CurrentQuestion; got != 1 {
		t.Fatalf("rejected navigation must not move, at %d", got)
	}

	if err := session.Prev(ctx); err != nil {
		t.Fatalf("prev at first question: %v", err)
	}
	if got := session.Progress().CurrentQuestion; got != 1 {
		t.Fatalf("prev at first question must be a no-op, at %d", got)
	}

	if err := session.GoTo(ctx, 3); err != nil {
		t.Fatalf("goto last: %v", err)
	}
	if err := session.Next(ctx); err != nil {
		t.Fatalf("next at last question: %v", err)
	}
	if got := session.Progress().CurrentQuestion; got != 3 {
		t.Fatalf("next at last question must be a no-op, at %d", got)
	}
}

func TestSessionAccruesOncePerTransition(t *testing.T) {
	ctx := context.Background()
	quizStore, session, clock, quizID := newSessionFixture(t, 3)

	clock.Advance(5 * time.Second)
	if err := session.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}

	clock.Advance(2 * time.Second)
	session.onAutosave(ctx)

	clock.Advance(3 * time.Second)
	if err := session.Prev(ctx); err != nil {
		t.Fatalf("prev: %v", err)
	}

	stored, err := quizStore.GetQuizState(ctx, quizID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.TimeSpent[1] != 5 {
		t.Fatalf("expected 5s on question 1, got %d", stored.TimeSpent[1])
	}
	if stored.TimeSpent[2] != 5 {
		t.Fatalf("expected 2+3=5s on question 2, got %d", stored.TimeSpent[2])
	}
}

func TestSessionSuspendedRejectsCommands(t *testing.T) {
	ctx := context.Background()
	_, session, _, _ := newSessionFixture(t, 3)

	if err := session.Exit(ctx); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if err := session.Next(ctx); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive, got %v", err)
	}
	if err := session.SelectAnswer("a"); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive, got %v", err)
	}
}

func TestSessionRejectsInvalidAnswer(t *testing.T) {
	_, session, _, _ := newSessionFixture(t, 3)

	if err := session.SelectAnswer("e"); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer, got %v", err)
	}
	if err := session.SelectAnswer(""); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer, got %v", err)
	}
}

func TestSessionSubscribeReceivesUpdates(t *testing.T) {
	_, session, _, _ := newSessionFixture(t, 3)

	updates, cancel := session.Subscribe()
	defer cancel()

	initial := <-updates
	if initial.CurrentQuestion != 1 || initial.TotalQuestions != 3 {
		t.Fatalf("unexpected initial snapshot %+v", initial)
	}

	if err := session.SelectAnswer("c"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	update := <-updates
	if update.Answer != "c" || update.Answered != 1 {
		t.Fatalf("expected answer update, got %+v", update)
	}
}

func TestSessionLoadMissingQuiz(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	quizStore := NewQuizStoreWithClock(memory.New(), nil, clock.Now)

	session := newSessionWithClock(quizStore, "missing", SessionConfig{}, nil, clock.Now)
	if err := session.Load(ctx); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}
