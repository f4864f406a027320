package main

import (
	"log/slog"
	"os"

	"github.com/contesthub/contesthub/internal/server"
)

func main() {
	s := server.New()
	if err := s.Start(); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}
