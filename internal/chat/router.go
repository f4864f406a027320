package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/contesthub/contesthub/internal/contest"
	"github.com/contesthub/contesthub/internal/domain"
	"github.com/contesthub/contesthub/internal/presence"
	"github.com/contesthub/contesthub/internal/rooms"
	"github.com/contesthub/contesthub/internal/ws"
)

// Router maps inbound realtime events onto the room manager, the presence
// tracker, and the broadcast pipeline. It implements ws.EventHandler.
type Router struct {
	rooms    *rooms.Manager
	presence *presence.Tracker
	pipeline *Pipeline
	contests contest.Source
	logger   *slog.Logger
}

// NewRouter creates the realtime event router. contests may be nil, in
// which case rooms are admitted without metadata validation.
func NewRouter(roomMgr *rooms.Manager, tracker *presence.Tracker, pipeline *Pipeline, contests contest.Source) *Router {
	return &Router{
		rooms:    roomMgr,
		presence: tracker,
		pipeline: pipeline,
		contests: contests,
		logger:   slog.Default().With("component", "chat_router"),
	}
}

// HandleEvent dispatches one decoded client frame. Unknown events are
// answered with an error frame to the sender and otherwise ignored.
func (r *Router) HandleEvent(ctx context.Context, conn *ws.Conn, ev ws.Event) {
	switch ev.Name {
	case ws.EventJoinContest:
		r.handleJoin(ctx, conn, ev)
	case ws.EventLeaveContest:
		r.handleLeave(conn, ev)
	case ws.EventSendMessage:
		r.handleSend(ctx, conn, ev)
	case ws.EventTyping:
		r.handleTyping(conn, ev, true)
	case ws.EventStopTyping:
		r.handleTyping(conn, ev, false)
	case ws.EventPing:
		conn.SendEvent(ws.EventPong, map[string]any{
			"timestamp": time.Now().UnixMilli(),
			"original":  ev.Payload,
		})
	default:
		r.logger.Debug("Unknown event", "event", ev.Name, "connectionID", conn.ID())
		conn.SendEvent(ws.EventError, ws.ErrorPayload{Code: ws.ErrCodeBadEvent, Message: "unknown event: " + ev.Name})
	}
}

func (r *Router) handleJoin(ctx context.Context, conn *ws.Conn, ev ws.Event) {
	payload, ok := decode[JoinPayload](conn, ev, r.logger)
	if !ok || payload.ContestID == "" {
		conn.SendEvent(ws.EventError, ws.ErrorPayload{Code: ws.ErrCodeBadEvent, Message: "join-contest requires a contestId"})
		return
	}

	// Metadata validation is advisory: the dashboard may reference contests
	// this instance has never synced, and an unknown id must not lock users
	// out of the discussion.
	if r.contests != nil {
		if c, err := r.contests.Lookup(ctx, payload.ContestID); err != nil {
			r.logger.Warn("Contest lookup failed on join", "contestId", payload.ContestID, "error", err)
		} else if c == nil {
			r.logger.Warn("Joining room for unknown contest", "contestId", payload.ContestID)
		}
	}

	r.rooms.Join(payload.ContestID, conn)
	conn.TrackJoin(payload.ContestID)
	r.announceCount(payload.ContestID)
}

func (r *Router) handleLeave(conn *ws.Conn, ev ws.Event) {
	payload, ok := decode[JoinPayload](conn, ev, r.logger)
	if !ok || payload.ContestID == "" {
		return
	}

	r.rooms.Leave(payload.ContestID, conn.ID())
	conn.TrackLeave(payload.ContestID)
	r.presence.ClearTyping(payload.ContestID, conn.Identity().UserID, conn.ID())
	r.announceCount(payload.ContestID)
}

func (r *Router) handleSend(ctx context.Context, conn *ws.Conn, ev ws.Event) {
	payload, ok := decode[SendPayload](conn, ev, r.logger)
	if !ok {
		conn.SendEvent(ws.EventError, ws.ErrorPayload{Code: ws.ErrCodeBadEvent, Message: "malformed send-message payload"})
		return
	}

	// Sending implicitly ends the typing indicator.
	r.presence.ClearTyping(payload.ContestID, conn.Identity().UserID, conn.ID())

	persisted, err := r.pipeline.Send(ctx, conn.ID(), conn.Identity(), payload.ContestID, payload.Message, payload.ClientKey)
	if err != nil {
		conn.SendEvent(ws.EventError, errorPayloadFor(err))
		return
	}

	// The sender is excluded from the broadcast; the ack carries the
	// stamped record so its optimistic append can be reconciled.
	conn.SendEvent(ws.EventMessageAck, newMessageEvent(persisted))
}

func (r *Router) handleTyping(conn *ws.Conn, ev ws.Event, start bool) {
	payload, ok := decode[TypingSignal](conn, ev, r.logger)
	if !ok || payload.ContestID == "" {
		return
	}

	if start {
		r.presence.SetTyping(payload.ContestID, conn.Identity(), conn.ID())
	} else {
		r.presence.ClearTyping(payload.ContestID, conn.Identity().UserID, conn.ID())
	}
}

// announceCount broadcasts the room's member count to everyone in it.
func (r *Router) announceCount(contestID string) {
	frame, err := ws.MarshalEvent(ws.EventRoomCount, RoomCountPayload{
		ContestID: contestID,
		Count:     r.rooms.MemberCount(contestID),
	})
	if err != nil {
		r.logger.Error("Failed to marshal room-count event", "error", err)
		return
	}
	r.rooms.Broadcast(contestID, frame, "")
}

func decode[T any](conn *ws.Conn, ev ws.Event, logger *slog.Logger) (T, bool) {
	var payload T
	if len(ev.Payload) == 0 {
		return payload, false
	}
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		logger.Debug("Malformed event payload", "event", ev.Name, "connectionID", conn.ID(), "error", err)
		return payload, false
	}
	return payload, true
}

// errorPayloadFor maps a pipeline error onto its wire code.
func errorPayloadFor(err error) ws.ErrorPayload {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return ws.ErrorPayload{Code: ws.ErrCodeInvalidInput, Message: err.Error()}
	case errors.Is(err, domain.ErrStoreUnavailable):
		return ws.ErrorPayload{Code: ws.ErrCodeStoreUnavailable, Message: "message could not be saved"}
	case errors.Is(err, domain.ErrUnauthenticated):
		return ws.ErrorPayload{Code: ws.ErrCodeUnauthenticated, Message: err.Error()}
	default:
		return ws.ErrorPayload{Code: ws.ErrCodeBadEvent, Message: err.Error()}
	}
}
