package domain

// QuizState is the full durable record for one quiz attempt. Question-number
// keys serialize as JSON text keys and are converted back on load.
type QuizState struct {
	QuizID          string         `json:"quizId"`
	FileName        string         `json:"fileName"`
	TotalQuestions  int            `json:"totalQuestions"`
	CurrentQuestion int            `json:"currentQuestion"`
	Answers         map[int]string `json:"answers"`
	TimeSpent       map[int]int    `json:"timeSpent"` // whole seconds per question
	GlobalTimer     int            `json:"globalTimer"`
	LastUpdated     int64          `json:"lastUpdated"` // unix milliseconds
	PDFObjectURL    string         `json:"pdfObjectUrl,omitempty"`
}

// Clone returns a deep copy so callers can hand the state across goroutine
// boundaries without sharing the maps.
func (s QuizState) Clone() QuizState {
	out := s
	out.Answers = make(map[int]string, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	out.TimeSpent = make(map[int]int, len(s.TimeSpent))
	for k, v := range s.TimeSpent {
		out.TimeSpent[k] = v
	}
	return out
}

// QuizMetadata is the lightweight list entry kept in parallel with QuizState.
type QuizMetadata struct {
	QuizID         string `json:"quizId"`
	FileName       string `json:"fileName"`
	TotalQuestions int    `json:"totalQuestions"`
	StartedAt      int64  `json:"startedAt"`
	LastUpdated    int64  `json:"lastUpdated"`
	Completed      bool   `json:"completed"`
}

// Summary is the payload handed to the results reporting collaborator on
// submission.
type Summary struct {
	Answers        map[int]string `json:"answers"`
	TimeSpent      map[int]int    `json:"timeSpent"`
	TotalTime      int            `json:"totalTime"`
	TotalQuestions int            `json:"totalQuestions"`
	FileName       string         `json:"fileName"`
}
