package di

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/searchbridge/searchbridge/internal/config"
)

// LoggerService holds the configured global logger.
type LoggerService struct {
	Logger zerolog.Logger
}

// NewLoggerService builds the zerolog logger from config and installs it as
// the global and default-context logger.
func NewLoggerService(i do.Injector) (*LoggerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	logger := buildLogger(cfgSvc.Get().Logging)

	log.Logger = logger
	zerolog.DefaultContextLogger = &logger

	return &LoggerService{Logger: logger}, nil
}

func buildLogger(cfg config.LoggingConfig) zerolog.Logger {
	var out = os.Stderr

	logger := zerolog.New(out)
	if usePretty(cfg, out) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	}

	return logger.Level(cfg.ParseLevel()).With().Timestamp().Logger()
}

// usePretty picks console formatting: explicit pretty flag or format, json
// forces structured output, anything else auto-detects a terminal.
func usePretty(cfg config.LoggingConfig, out *os.File) bool {
	if cfg.Pretty {
		return true
	}
	switch cfg.Format {
	case "pretty":
		return true
	case "json":
		return false
	default:
		return isatty.IsTerminal(out.Fd())
	}
}
