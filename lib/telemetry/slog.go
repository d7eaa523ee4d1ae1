package telemetry

import (
	"log/slog"
	"os"
)

// InitSlog points the default logger at stderr. stdout belongs to the MCP
// stdio transport, anything else written there corrupts the stream.
func InitSlog(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
