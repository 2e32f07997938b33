package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"medquiz-service/internal/app"
)

// WSHandler streams leaderboard snapshots and accepts answers from logged-in browsers.
type WSHandler struct {
	hub      *app.LeaderboardHub
	engine   *app.ScoringEngine
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *app.LeaderboardHub, engine *app.ScoringEngine) *WSHandler {
	return &WSHandler{
		hub:    hub,
		engine: engine,
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

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request and subscribes it to the leaderboard of ?category= ("" = overall).
// The session cookie, when present, lets the socket submit answers.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	userID := currentSession(r).UserID

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel, err := h.hub.Subscribe(r.Context(), category)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorBody]{Type: "error", Payload: errorBody{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer: gorilla connections do not support concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
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
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

readLoop:
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		select {
		case send <- h.dispatch(r, userID, inbound):
		case <-writerDone:
			break readLoop
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, userID int64, inbound inboundMessage) outboundMessage[any] {
	fail := func(msg string) outboundMessage[any] {
		return outboundMessage[any]{Type: "error", Payload: errorBody{Message: msg}}
	}
	switch inbound.Type {
	case "answer":
		var payload answerRequest
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == nil || payload.Answer == nil {
			return fail("invalid answer payload")
		}
		verdict, err := h.engine.SubmitAnswer(r.Context(), userID, int64(*payload.QuestionID), *payload.Answer)
		if err != nil {
			return fail(err.Error())
		}
		return outboundMessage[any]{Type: "answerResult", Payload: verdict}
	case "imageAnswer":
		var payload imageAnswerRequest
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.ImageID == nil || payload.Answer == "" {
			return fail("invalid answer payload")
		}
		verdict, err := h.engine.SubmitImageAnswer(r.Context(), userID, int64(*payload.ImageID), payload.Answer)
		if err != nil {
			return fail(err.Error())
		}
		return outboundMessage[any]{Type: "answerResult", Payload: verdict}
	default:
		return fail("unsupported message type")
	}
}
