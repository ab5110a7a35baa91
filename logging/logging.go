package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// GetSugaredLogger initializes and returns a SugaredLogger instance.
// The SugaredLogger provides a flexible API for structured logging with
// key-value pairs. It uses a development logger configuration by default.
func GetSugaredLogger() *zap.SugaredLogger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		// If the logger cannot be initialized, panic.
		panic("cannot initialize zap")
	}

	return logger.Sugar()
}

// GetRotatingLogger returns a SugaredLogger writing to the given file with
// size-based rotation. Used when LOG_FILE is configured.
func GetRotatingLogger(path string) *zap.SugaredLogger {
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	})

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		w,
		zap.InfoLevel,
	)

	return zap.New(core).Sugar()
}
