package service

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the service logger: console output always, plus JSON to a
// size-rotated file when one is configured.
func NewLogger(config *Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Logger.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logger level %q: %w", config.Logger.Level, err)
	}

	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	consoleEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig), zapcore.Lock(os.Stdout), level),
	}

	if config.Logger.File != "" {
		fileEncoderConfig := zap.NewProductionEncoderConfig()
		fileEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.Logger.File,
			MaxSize:    config.Logger.MaxSizeMB,
			MaxBackups: config.Logger.MaxBackups,
			MaxAge:     config.Logger.MaxAgeDays,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig), writer, level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger.With(zap.String("name", config.Name)), nil
}
