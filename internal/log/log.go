// Package log builds the structured logger shared by a tinyimg run.
//
// Every entry is JSON with RFC3339Nano timestamps, lowercase levels and the
// run_id of the invocation, so the lines of one batch can be grouped.
package log

import (
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewRunID returns a fresh identifier for one invocation.
func NewRunID() string {
	return uuid.NewString()
}

// New creates a logger writing to os.Stderr. Debug entries are only emitted
// when debug is set.
func New(runID string, debug bool) *zap.Logger {
	return NewWithWriter(os.Stderr, runID, debug)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, runID string, debug bool) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core).With(zap.String("run_id", runID))
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
