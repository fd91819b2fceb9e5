package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-progress-service/internal/app"
	"quiz-progress-service/internal/domain"
	"quiz-progress-service/internal/report"
)

// WSHandler attaches websocket clients to live quiz sessions.
type WSHandler struct {
	sessions *app.SessionManager
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions *app.SessionManager, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		sessions: sessions,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Choice string `json:"choice"`
}

type gotoPayload struct {
	Question int `json:"question"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the connection and wires it into a quiz session: inbound
// answer/next/prev/goto/submit/exit commands, outbound progress snapshots.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	session, err := h.sessions.Open(r.Context(), quizID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer h.sessions.Release(r.Context(), quizID)

	if doc := r.URL.Query().Get("pdfUrl"); doc != "" {
		session.SetDocumentURL(doc)
	}

	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "progress", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if msg, stop := h.handleCommand(r, session, inbound); msg != nil {
			select {
			case send <- *msg:
			case <-writerDone:
				stop = true
			}
			if stop {
				break
			}
		} else if stop {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// handleCommand applies one inbound message. It returns an optional direct
// reply and whether the read loop should stop.
func (h *WSHandler) handleCommand(r *http.Request, session *app.Session, inbound inboundMessage) (*outboundMessage[any], bool) {
	ctx := r.Context()

	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errMsg("invalid answer payload"), false
		}
		if err := session.SelectAnswer(payload.Choice); err != nil {
			return errMsg(err.Error()), false
		}
	case "next":
		if err := session.Next(ctx); err != nil {
			return errMsg(err.Error()), false
		}
	case "prev":
		if err := session.Prev(ctx); err != nil {
			return errMsg(err.Error()), false
		}
	case "goto":
		var payload gotoPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errMsg("invalid goto payload"), false
		}
		if err := session.GoTo(ctx, payload.Question); err != nil {
			return errMsg(err.Error()), false
		}
	case "submit":
		summary, err := session.Submit(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrSessionTerminated) {
				return errMsg(err.Error()), true
			}
			return errMsg(err.Error()), false
		}
		return &outboundMessage[any]{Type: "summary", Payload: report.BuildExport(summary)}, false
	case "exit":
		if err := session.Exit(ctx); err != nil {
			return errMsg(err.Error()), false
		}
		return nil, true
	default:
		return errMsg("unsupported message type"), false
	}
	return nil, false
}

func errMsg(message string) *outboundMessage[any] {
	return &outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
}
