package state

import "log/slog"

type config struct {
	logger *slog.Logger
}

// Option configures a store.
type Option func(*config)

// WithLogger overrides the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) { cfg.logger = l }
}

func newConfig(opts []Option) config {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
