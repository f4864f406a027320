package chat

import (
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/contesthub/contesthub/internal/domain"
	"github.com/contesthub/contesthub/internal/middleware"
)

// Handler serves the REST history API for contest discussions. Clients use
// it for initial history loads and for the post-reconnect resync; the
// realtime path stays on the WebSocket.
type Handler struct {
	pipeline     *Pipeline
	defaultLimit int
}

// NewHandler creates the history handler.
func NewHandler(pipeline *Pipeline, defaultLimit int) *Handler {
	return &Handler{pipeline: pipeline, defaultLimit: defaultLimit}
}

// listQuery binds the history fetch query parameters.
type listQuery struct {
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=200"`
	Before string `query:"before" validate:"omitempty"`
}

// postBody binds the REST append body. Identity comes from the verified
// token, never from the body.
type postBody struct {
	Message   string `json:"message" validate:"required,max=1000"`
	ClientKey string `json:"clientKey,omitempty"`
}

// ListMessages returns recent messages for a contest in chronological order.
// The store's native order is newest-first; the page is reversed before it
// is returned so clients can render it directly.
func (h *Handler) ListMessages(c echo.Context) error {
	ctx := c.Request().Context()
	logger := middleware.FromContext(ctx)
	contestID := c.Param("contestId")

	var q listQuery
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}
	if err := c.Validate(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	limit := q.Limit
	if limit == 0 {
		limit = h.defaultLimit
	}

	var before time.Time
	if q.Before != "" {
		t, err := time.Parse(time.RFC3339, q.Before)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "before must be an RFC3339 timestamp")
		}
		before = t
	}

	messages, err := h.pipeline.History(ctx, contestID, limit, before)
	if err != nil {
		logger.Error("History fetch failed", "contestId", contestID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"success": false,
			"error":   "Failed to fetch chat messages",
		})
	}

	events := make([]MessageEvent, len(messages))
	for i := range messages {
		events[i] = newMessageEvent(&messages[i])
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    events,
		"count":   len(events),
	})
}

// CreateMessage appends a message through the same validation and store path
// as the realtime pipeline, without a fan-out exclusion (the REST caller has
// no connection to exclude).
func (h *Handler) CreateMessage(c echo.Context) error {
	ctx := c.Request().Context()
	logger := middleware.FromContext(ctx)
	contestID := c.Param("contestId")

	ident, ok := middleware.IdentityFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	var body postBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	persisted, err := h.pipeline.Send(ctx, "", ident, contestID, body.Message, body.ClientKey)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			reason := "Message is required"
			if utf8.RuneCountInString(body.Message) > domain.MaxMessageLen {
				reason = "Message too long (max 1000 characters)"
			}
			return c.JSON(http.StatusBadRequest, echo.Map{
				"success": false,
				"error":   reason,
			})
		case errors.Is(err, domain.ErrUnauthenticated):
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		default:
			logger.Error("Message create failed", "contestId", contestID, "error", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{
				"success": false,
				"error":   "Failed to create chat message",
			})
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    newMessageEvent(persisted),
	})
}
