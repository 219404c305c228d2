package logmanager

import (
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/kart-io/trackinglog/pkg/errors"
)

// Level is a sink severity.
type Level int8

const (
	DebugLevel Level = iota
	InfoLevel
	WarningLevel
	ErrorLevel
	CriticalLevel
)

var levelNames = [...]string{
	DebugLevel:    "DEBUG",
	InfoLevel:     "INFO",
	WarningLevel:  "WARNING",
	ErrorLevel:    "ERROR",
	CriticalLevel: "CRITICAL",
}

// String returns the severity as written to sink files.
func (l Level) String() string {
	if l < DebugLevel || l > CriticalLevel {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel parses a case-insensitive level name. "warn" is accepted for WARNING.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarningLevel, nil
	case "error":
		return ErrorLevel, nil
	case "critical", "fatal":
		return CriticalLevel, nil
	}
	return DebugLevel, errors.ErrInvalidConfig.WithMessagef("unknown log level %q", s)
}

// DefaultVerbose reports whether messages of level l are echoed to standard
// output by default. Warnings and worse are.
func DefaultVerbose(l Level) bool {
	return l >= WarningLevel
}

// zapLevel maps l onto zap's scale. CRITICAL uses DPanicLevel; sinks write
// entries through the core directly, so no panic is ever raised.
func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarningLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.DPanicLevel
	}
}

func fromZapLevel(l zapcore.Level) Level {
	switch {
	case l <= zapcore.DebugLevel:
		return DebugLevel
	case l == zapcore.InfoLevel:
		return InfoLevel
	case l == zapcore.WarnLevel:
		return WarningLevel
	case l == zapcore.ErrorLevel:
		return ErrorLevel
	default:
		return CriticalLevel
	}
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fromZapLevel(l).String())
}
