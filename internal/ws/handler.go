package ws

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/contesthub/contesthub/internal/middleware"
)

// Handler returns an echo handler that verifies the identity handshake and
// upgrades the request to a WebSocket. Connections without a valid token are
// rejected before the upgrade; every admitted connection carries a verified
// identity for its whole lifetime. Cross-origin upgrades are restricted to
// the given origin patterns; an empty list disables origin checking for
// local development.
func Handler(registry *Registry, verifier *middleware.TokenVerifier, origins []string) echo.HandlerFunc {
	opts := &websocket.AcceptOptions{OriginPatterns: origins}
	if len(origins) == 0 {
		opts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}

	return func(c echo.Context) error {
		token := middleware.TokenFromRequest(c.Request())
		if token == "" {
			return c.String(http.StatusUnauthorized, "missing identity token")
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			return c.String(http.StatusUnauthorized, "invalid identity token")
		}

		sock, err := websocket.Accept(c.Response(), c.Request(), opts)
		if err != nil {
			slog.Error("Failed to upgrade connection to WebSocket", "error", err)
			return err
		}

		registry.Admit(sock, identity)
		return nil
	}
}
