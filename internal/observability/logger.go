package observability

import (
	"io"
	"log/slog"

	"github.com/JonMunkholm/SqlAssist/internal/config"
)

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Log.Level}
	var handler slog.Handler
	if cfg.Log.JSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler).With(slog.String("service", cfg.Service.Name))
}
