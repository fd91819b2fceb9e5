// Package report renders a submitted quiz summary: MM:SS formatting and the
// CSV/JSON export shapes.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"quiz-progress-service/internal/domain"
)

// FormatDuration renders whole seconds as zero-padded MM:SS.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "00:00"
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Answered counts the questions with a recorded answer.
func Answered(s domain.Summary) int {
	return len(s.Answers)
}

// AverageTime is total time divided by answered questions, floored; zero
// when nothing was answered.
func AverageTime(s domain.Summary) int {
	answered := Answered(s)
	if answered == 0 || s.TotalTime == 0 {
		return 0
	}
	return s.TotalTime / answered
}

// TimedValue pairs raw seconds with their MM:SS rendering.
type TimedValue struct {
	Seconds   int    `json:"seconds"`
	Formatted string `json:"formatted"`
}

func timed(seconds int) TimedValue {
	return TimedValue{Seconds: seconds, Formatted: FormatDuration(seconds)}
}

// Export is the JSON report shape.
type Export struct {
	FileName       string             `json:"fileName"`
	TotalQuestions int                `json:"totalQuestions"`
	TotalAnswered  int                `json:"totalAnswered"`
	TotalTime      TimedValue         `json:"totalTime"`
	AverageTime    TimedValue         `json:"averageTime"`
	Answers        map[int]string     `json:"answers"`
	TimeSpent      map[int]TimedValue `json:"timeSpent"`
}

// BuildExport assembles the JSON report payload from a summary.
func BuildExport(s domain.Summary) Export {
	timeSpent := make(map[int]TimedValue, len(s.TimeSpent))
	for q, seconds := range s.TimeSpent {
		timeSpent[q] = timed(seconds)
	}
	answers := s.Answers
	if answers == nil {
		answers = map[int]string{}
	}
	return Export{
		FileName:       s.FileName,
		TotalQuestions: s.TotalQuestions,
		TotalAnswered:  Answered(s),
		TotalTime:      timed(s.TotalTime),
		AverageTime:    timed(AverageTime(s)),
		Answers:        answers,
		TimeSpent:      timeSpent,
	}
}

// WriteJSON writes the indented JSON report.
func WriteJSON(w io.Writer, s domain.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildExport(s))
}

// WriteCSV writes one row per question (answer uppercased, blank when
// unanswered) followed by a summary block.
func WriteCSV(w io.Writer, s domain.Summary) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"Question", "Answer", "Time (seconds)", "Time (MM:SS)"}); err != nil {
		return err
	}
	for q := 1; q <= s.TotalQuestions; q++ {
		seconds := s.TimeSpent[q]
		row := []string{
			strconv.Itoa(q),
			strings.ToUpper(s.Answers[q]),
			strconv.Itoa(seconds),
			FormatDuration(seconds),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	average := AverageTime(s)
	summaryRows := [][]string{
		{},
		{"Summary"},
		{"Total Questions", strconv.Itoa(s.TotalQuestions)},
		{"Answered", strconv.Itoa(Answered(s))},
		{"Total Time (seconds)", strconv.Itoa(s.TotalTime)},
		{"Total Time (MM:SS)", FormatDuration(s.TotalTime)},
		{"Average Time (seconds)", strconv.Itoa(average)},
		{"Average Time (MM:SS)", FormatDuration(average)},
	}
	for _, row := range summaryRows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
