package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls how the process logger is built.
type Options struct {
	Level string
	// File enables an additional rotating JSON log file when non-empty.
	File string
}

// NewLogger builds a production ready structured logger.
func NewLogger(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if opts.Level != "" {
		level, err := zap.ParseAtomicLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		cfg.Level = level
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if opts.File == "" {
		return logger, nil
	}

	rotating := &lumberjack.Logger{
		Filename:   opts.File,
		LocalTime:  true,
		Compress:   true,
		MaxSize:    100,
		MaxAge:     7,
		MaxBackups: 3,
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg.EncoderConfig),
		zapcore.AddSync(rotating),
		cfg.Level,
	)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}

// WithOperation enriches the logger with operation and request identifiers.
func WithOperation(logger *zap.Logger, operation, requestID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return logger.With(fields...)
}
