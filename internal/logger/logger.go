// Package logger configures the process-wide zap logger.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init builds a logger for the given environment and installs it as the
// zap global, so zap.L() is usable everywhere afterwards.
func Init(environment string) error {
	l, err := New(environment)
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(l)

	return nil
}

// New returns a JSON production logger, or a colored console logger when
// environment is "development" or "local".
func New(environment string) (*zap.Logger, error) {
	var conf zap.Config
	switch environment {
	case "development", "local":
		conf = zap.NewDevelopmentConfig()
		conf.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		conf = zap.NewProductionConfig()
		conf.EncoderConfig.TimeKey = "time"
		conf.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	l, err := conf.Build()
	if err != nil {
		return nil, fmt.Errorf("conf.Build -> %w", err)
	}

	return l, nil
}
