// Package logger builds the process's single *zap.Logger. Unlike the
// teacher's package-level Log singleton, the logger here is constructed once
// at startup and passed down through constructors — every service, PSP
// client, and handler in this module takes a *zap.Logger parameter rather
// than reaching for a global.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger, selecting development or production encoding
// based on GIN_MODE the same way the teacher's InitLogger did.
func New() (*zap.Logger, error) {
	env := os.Getenv("GIN_MODE")
	if env == "" {
		env = "development"
	}

	var config zap.Config
	if env == "release" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	return config.Build()
}
