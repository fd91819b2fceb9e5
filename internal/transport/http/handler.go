package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"quiz-progress-service/internal/app"
	"quiz-progress-service/internal/domain"
	"quiz-progress-service/internal/report"
)

const maxQuestions = 100

// Handler serves the quiz CRUD, listing and results endpoints.
type Handler struct {
	store    *app.QuizStore
	lists    *app.ListCache
	sessions *app.SessionManager
	log      *zap.Logger
}

func NewHandler(store *app.QuizStore, lists *app.ListCache, sessions *app.SessionManager, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{store: store, lists: lists, sessions: sessions, log: log}
}

// Register mounts the REST routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /quizzes", h.createQuiz)
	mux.HandleFunc("GET /quizzes", h.listQuizzes)
	mux.HandleFunc("DELETE /quizzes/{id}", h.deleteQuiz)
	mux.HandleFunc("GET /quizzes/{id}/results", h.quizResults)
}

type createQuizRequest struct {
	FileName       string `json:"fileName"`
	TotalQuestions int    `json:"totalQuestions"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// createQuiz validates input before any state mutation: the store itself
// does not enforce the question-count range.
func (h *Handler) createQuiz(w http.ResponseWriter, r *http.Request) {
	var req createQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	if req.FileName == "" {
		writeJSON(w, http.StatusBadRequest, fieldError{Field: "fileName", Message: "file name is required"})
		return
	}
	if req.TotalQuestions < 1 {
		writeJSON(w, http.StatusBadRequest, fieldError{Field: "totalQuestions", Message: "must be at least 1"})
		return
	}
	if req.TotalQuestions > maxQuestions {
		writeJSON(w, http.StatusBadRequest, fieldError{Field: "totalQuestions", Message: fmt.Sprintf("must be at most %d", maxQuestions)})
		return
	}

	quizID := h.store.CreateQuiz(r.Context(), req.FileName, req.TotalQuestions)
	h.lists.Invalidate()
	h.log.Info("quiz created", zap.String("quizId", quizID), zap.Int("totalQuestions", req.TotalQuestions))

	writeJSON(w, http.StatusCreated, map[string]string{"quizId": quizID})
}

// listQuizzes returns the metadata list sorted by lastUpdated descending.
func (h *Handler) listQuizzes(w http.ResponseWriter, r *http.Request) {
	list := h.lists.List(r.Context())
	sort.Slice(list, func(i, j int) bool {
		return list[i].LastUpdated > list[j].LastUpdated
	})
	if list == nil {
		list = []domain.QuizMetadata{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) deleteQuiz(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")
	h.sessions.Evict(r.Context(), quizID)
	h.store.DeleteQuiz(r.Context(), quizID)
	h.lists.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// quizResults builds the summary from the stored record. A metadata entry
// whose state record is missing reports not-found; the quiz is unrecoverable
// and deletion remains available.
func (h *Handler) quizResults(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")
	state, err := h.store.GetQuizState(r.Context(), quizID)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Message: "quiz not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "loading quiz"})
		return
	}

	summary := domain.Summary{
		Answers:        state.Answers,
		TimeSpent:      state.TimeSpent,
		TotalTime:      state.GlobalTimer,
		TotalQuestions: state.TotalQuestions,
		FileName:       state.FileName,
	}

	switch r.URL.Query().Get("format") {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", "quiz-results-"+time.Now().Format("2006-01-02")+".csv"))
		if err := report.WriteCSV(w, summary); err != nil {
			h.log.Warn("writing csv results", zap.String("quizId", quizID), zap.Error(err))
		}
	default:
		w.Header().Set("Content-Type", "application/json")
		if err := report.WriteJSON(w, summary); err != nil {
			h.log.Warn("writing json results", zap.String("quizId", quizID), zap.Error(err))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
