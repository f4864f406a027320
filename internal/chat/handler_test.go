package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contesthub/contesthub/internal/domain"
	"github.com/contesthub/contesthub/internal/middleware"
)

type testValidator struct {
	validate *validator.Validate
}

func (v *testValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func newHandlerTest(store *mockStore) (*Handler, *echo.Echo) {
	e := echo.New()
	e.Validator = &testValidator{validate: validator.New()}
	pipeline := NewPipeline(store, &recordingBroadcaster{})
	return NewHandler(pipeline, 50), e
}

func listRequest(e *echo.Echo, target string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/contests/:contestId/chat")
	c.SetParamNames("contestId")
	c.SetParamValues("contest-1")
	return c, rec
}

func postRequest(e *echo.Echo, body string, ident *domain.Identity) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/api/contests/contest-1/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/contests/:contestId/chat")
	c.SetParamNames("contestId")
	c.SetParamValues("contest-1")
	if ident != nil {
		c.Set(middleware.IdentityContextKey, *ident)
	}
	return c, rec
}

func TestHandler_ListMessages(t *testing.T) {
	store := &mockStore{recent: []domain.Message{
		{ID: "chat_message:2", Body: "second", Timestamp: time.Date(2026, 2, 14, 12, 1, 0, 0, time.UTC)},
		{ID: "chat_message:1", Body: "first", Timestamp: time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)},
	}}
	h, e := newHandlerTest(store)

	c, rec := listRequest(e, "/api/contests/contest-1/chat?limit=10")
	require.NoError(t, h.ListMessages(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Success bool           `json:"success"`
		Data    []MessageEvent `json:"data"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Count)

	// Chronological order, oldest first.
	require.Len(t, res.Data, 2)
	assert.Equal(t, "first", res.Data[0].Message)
	assert.Equal(t, "second", res.Data[1].Message)
}

func TestHandler_ListMessagesRejectsBadQuery(t *testing.T) {
	h, e := newHandlerTest(&mockStore{})

	t.Run("limit over maximum", func(t *testing.T) {
		c, _ := listRequest(e, "/api/contests/contest-1/chat?limit=5000")
		err := h.ListMessages(c)
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})

	t.Run("malformed before timestamp", func(t *testing.T) {
		c, _ := listRequest(e, "/api/contests/contest-1/chat?before=yesterday")
		err := h.ListMessages(c)
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})
}

func TestHandler_ListMessagesStoreFailure(t *testing.T) {
	h, e := newHandlerTest(&mockStore{failing: true})

	c, rec := listRequest(e, "/api/contests/contest-1/chat")
	require.NoError(t, h.ListMessages(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to fetch chat messages")
}

func TestHandler_CreateMessage(t *testing.T) {
	store := &mockStore{}
	h, e := newHandlerTest(store)

	c, rec := postRequest(e, `{"message":"got AC on my third try","clientKey":"key-1"}`, &testIdentity)
	require.NoError(t, h.CreateMessage(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Success bool         `json:"success"`
		Data    MessageEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "got AC on my third try", res.Data.Message)
	assert.Equal(t, "alice", res.Data.Username, "identity comes from the token, not the body")
	assert.Equal(t, 1, store.appendCount())
}

func TestHandler_CreateMessageWithoutIdentity(t *testing.T) {
	h, e := newHandlerTest(&mockStore{})

	c, _ := postRequest(e, `{"message":"hello"}`, nil)
	err := h.CreateMessage(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestHandler_CreateMessageValidation(t *testing.T) {
	h, e := newHandlerTest(&mockStore{})

	t.Run("missing message", func(t *testing.T) {
		c, _ := postRequest(e, `{}`, &testIdentity)
		err := h.CreateMessage(c)
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})

	t.Run("whitespace-only message", func(t *testing.T) {
		c, rec := postRequest(e, `{"message":"   "}`, &testIdentity)
		require.NoError(t, h.CreateMessage(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Message is required")
	})

	t.Run("oversized message", func(t *testing.T) {
		// Caught by the request validator before the pipeline runs.
		long := strings.Repeat("a", domain.MaxMessageLen+1)
		c, _ := postRequest(e, `{"message":"`+long+`"}`, &testIdentity)
		err := h.CreateMessage(c)
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})
}

func TestHandler_CreateMessageStoreFailure(t *testing.T) {
	h, e := newHandlerTest(&mockStore{failing: true})

	c, rec := postRequest(e, `{"message":"hello"}`, &testIdentity)
	require.NoError(t, h.CreateMessage(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to create chat message")
}
