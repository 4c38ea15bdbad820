package logger

import (
	"go.uber.org/zap"

	"github.com/smartscale/scale-server/internal/config"
)

var global *zap.Logger

// NewLogger builds a zap logger for the configured environment: JSON output
// for prod, the deterministic example core for test, console otherwise.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	switch cfg.Environment {
	case "prod":
		return zap.NewProduction()
	case "test":
		return zap.NewExample(), nil
	default:
		return zap.NewDevelopment()
	}
}

// InitLogger installs the process-wide logger returned by GetLogger.
func InitLogger(cfg *config.Config) (*zap.Logger, error) {
	l, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	global = l

	return global, nil
}

func GetLogger() *zap.Logger {
	if global == nil {
		panic("logger not initialized")
	}

	return global
}
