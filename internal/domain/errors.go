package domain

import "errors"

var (
	// ErrQuizNotFound is returned when a quiz has no stored record, whether
	// it was never created, deleted, or the record is unparseable.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionOutOfRange indicates a navigation target outside [1, totalQuestions].
	ErrQuestionOutOfRange = errors.New("question number out of range")
	// ErrInvalidAnswer indicates a selected answer outside a|b|c|d.
	ErrInvalidAnswer = errors.New("answer must be one of a, b, c, d")
	// ErrInvalidQuestionCount indicates a question count outside the allowed range.
	ErrInvalidQuestionCount = errors.New("question count out of range")
	// ErrSessionTerminated is returned for any mutation after submission.
	ErrSessionTerminated = errors.New("quiz session already submitted")
	// ErrSessionNotActive is returned when a command arrives while the
	// session is loading or suspended.
	ErrSessionNotActive = errors.New("quiz session not active")
)
