package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quiz-progress-service/internal/app"
	"quiz-progress-service/internal/domain"
	"quiz-progress-service/internal/store/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.QuizStore) {
	t.Helper()
	quizStore := app.NewQuizStore(memory.New(), nil)
	lists := app.NewListCache(quizStore, time.Minute)
	sessions := app.NewSessionManager(quizStore, app.SessionConfig{}, nil)

	mux := http.NewServeMux()
	NewHandler(quizStore, lists, sessions, nil).Register(mux)
	mux.HandleFunc("/ws", NewWSHandler(sessions, nil).ServeWS)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, quizStore
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func TestCreateAndListQuizzes(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/quizzes", map[string]any{
		"fileName":       "exam.pdf",
		"totalQuestions": 40,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created["quizId"] == "" {
		t.Fatalf("expected quiz id in response")
	}

	listResp, err := http.Get(server.URL + "/quizzes")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer listResp.Body.Close()
	var list []domain.QuizMetadata
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].QuizID != created["quizId"] || list[0].Completed {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestCreateQuizValidation(t *testing.T) {
	server, _ := newTestServer(t)

	cases := []struct {
		name    string
		payload map[string]any
		field   string
	}{
		{"zero questions", map[string]any{"fileName": "a.pdf", "totalQuestions": 0}, "totalQuestions"},
		{"too many questions", map[string]any{"fileName": "a.pdf", "totalQuestions": 101}, "totalQuestions"},
		{"missing file name", map[string]any{"totalQuestions": 10}, "fileName"},
	}
	for _, tc := range cases {
		resp := postJSON(t, server.URL+"/quizzes", tc.payload)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, resp.StatusCode)
		}
		var fe fieldError
		if err := json.NewDecoder(resp.Body).Decode(&fe); err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		resp.Body.Close()
		if fe.Field != tc.field {
			t.Fatalf("%s: expected field %q, got %+v", tc.name, tc.field, fe)
		}
	}
}

func TestResultsNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/quizzes/unknown/results")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestResultsCSV(t *testing.T) {
	server, quizStore := newTestServer(t)
	ctx := context.Background()

	quizID := quizStore.CreateQuiz(ctx, "exam.pdf", 2)
	state, err := quizStore.GetQuizState(ctx, quizID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	state.Answers[1] = "b"
	state.TimeSpent[1] = 65
	quizStore.SaveQuizState(ctx, state)

	resp, err := http.Get(fmt.Sprintf("%s/quizzes/%s/results?format=csv", server.URL, quizID))
	if err != nil {
		t.Fatalf("get csv: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected csv content type, got %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "1,B,65,01:05") {
		t.Fatalf("expected formatted row in csv, got %q", body)
	}
}

func TestDeleteQuiz(t *testing.T) {
	server, quizStore := newTestServer(t)
	ctx := context.Background()

	quizID := quizStore.CreateQuiz(ctx, "exam.pdf", 2)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/quizzes/"+quizID, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	results, err := http.Get(server.URL + "/quizzes/" + quizID + "/results")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	defer results.Body.Close()
	if results.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", results.StatusCode)
	}
}
