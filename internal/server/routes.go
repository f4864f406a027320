package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/contesthub/contesthub/internal/middleware"
	"github.com/contesthub/contesthub/internal/ws"
)

// RegisterRoutes mounts the websocket endpoint and the REST chat API.
func (s *Server) RegisterRoutes() {
	s.E.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":      "ok",
			"connections": s.Registry.Count(),
			"rooms":       s.Rooms.RoomCount(),
		})
	})

	s.E.GET("/ws", ws.Handler(s.Registry, s.verifier, s.Cfg.AllowedOrigins))

	api := s.E.Group("/api", middleware.Auth(s.verifier))
	api.GET("/contests/:contestId/chat", s.chatHandler.ListMessages)
	api.POST("/contests/:contestId/chat", s.chatHandler.CreateMessage, middleware.RateLimiter())
}
