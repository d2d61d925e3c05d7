package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide slog.Logger. Production runs emit JSON
// at info level; everything else gets text with debug enabled.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: slog.LevelDebug}

	var handler slog.Handler
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		if cfg.IsProduction() {
			opts.Level = slog.LevelInfo
		}
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
