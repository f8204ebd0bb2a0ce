package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quiz-ledger/internal/domain"
	"quiz-ledger/internal/log"
)

const wsWriteWait = 10 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
}

type sessionPayload struct {
	SessionID string      `json:"sessionId"`
	Quiz      domain.Quiz `json:"quiz"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// wsError builds an error frame. Internal errors are logged, not echoed.
func wsError(err error) outboundMessage[any] {
	status, kind := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.HTTP.Error().Err(err).Msg("ws request failed")
		msg = "internal error"
	}
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg, Kind: kind}}
}

// ServeWS runs one quiz session over a websocket. The connection starts a
// session for the token's address, accepts answer, finish and claim
// messages, and pushes ledger events and leaderboards for the quiz.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	token := r.URL.Query().Get("token")
	if quizID == "" || token == "" {
		writeError(w, fmt.Errorf("%w: missing quizId or token", domain.ErrInvalidInput))
		return
	}
	player, err := h.auth.Verify(token)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.HTTP.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	session, quiz, err := h.service.Start(ctx, player, quizID)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		_ = conn.WriteJSON(wsError(err))
		return
	}
	finished := false
	defer func() {
		if finished {
			return
		}
		if err := h.service.Abandon(context.WithoutCancel(ctx), player, session.ID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			log.HTTP.Warn().Err(err).Str("session", session.ID).Msg("unable to abandon session")
		}
	}()

	updates, cancel := h.hub.Subscribe(quizID)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// A failed write closes the connection so the read loop below ends too.
	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.HTTP.Debug().Err(err).Msg("ws write error")
				_ = conn.Close()
				return
			}
		}
	}()

	push := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				msgs := []outboundMessage[any]{{Type: "event", Payload: ev}}
				if ev.Type == domain.EventQuizCompleted {
					if board, err := h.service.Leaderboard(ctx, quizID); err == nil {
						msgs = append(msgs, outboundMessage[any]{Type: "leaderboard", Payload: board})
					}
				}
				for _, msg := range msgs {
					select {
					case send <- msg:
					case <-writerDone:
						return
					case <-closeSignals:
						return
					}
				}
			case <-closeSignals:
				return
			}
		}
	}()

	alive := push(outboundMessage[any]{Type: "session", Payload: sessionPayload{SessionID: session.ID, Quiz: quiz}})
	if board, err := h.service.Leaderboard(ctx, quizID); alive && err == nil {
		alive = push(outboundMessage[any]{Type: "leaderboard", Payload: board})
	}

	for alive {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var reply outboundMessage[any]
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply = wsError(fmt.Errorf("%w: invalid answer payload", domain.ErrInvalidInput))
				break
			}
			res, err := h.service.Answer(ctx, player, session.ID, domain.AnswerSubmission{
				QuestionID: payload.QuestionID,
				OptionID:   payload.OptionID,
			})
			if err != nil {
				reply = wsError(err)
				break
			}
			reply = outboundMessage[any]{Type: "answerResult", Payload: res}
		case "finish":
			c, err := h.service.Finish(ctx, player, session.ID)
			if err != nil {
				reply = wsError(err)
				break
			}
			finished = true
			reply = outboundMessage[any]{Type: "completion", Payload: c}
		case "claim":
			reward, err := h.service.Claim(ctx, player, quizID)
			if err != nil {
				reply = wsError(err)
				break
			}
			reply = outboundMessage[any]{Type: "reward", Payload: reward}
		default:
			reply = wsError(fmt.Errorf("%w: unsupported message type %q", domain.ErrInvalidInput, inbound.Type))
		}
		alive = push(reply)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
