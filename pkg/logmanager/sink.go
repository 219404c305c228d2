package logmanager

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kart-io/trackinglog/pkg/errors"
	"github.com/kart-io/trackinglog/pkg/format"
	"github.com/kart-io/trackinglog/pkg/options/logger"
)

const (
	timeLayout     = "2006-01-02 15:04:05"
	fieldSeparator = " - "
	unknownLabel   = "unknown"
)

// State is the lifecycle state of a sink.
type State int32

const (
	StateUninitialized State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Sink is a named append-only log file. Each entry is one line
//
//	2006-01-02 15:04:05 - LEVEL - label - message
//
// rendered in local time. Multi-line messages are written verbatim.
//
// A Sink is safe for concurrent use. Sinks are created and closed by a
// Registry only.
type Sink struct {
	name     string
	path     string
	level    zap.AtomicLevel
	fmtOpts  format.Options
	notifier Notifier

	mu     sync.RWMutex
	state  State
	core   zapcore.Core
	closer io.Closer
}

func newEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "label",
		MessageKey:       "message",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(timeLayout),
		EncodeLevel:      encodeLevel,
		EncodeName:       zapcore.FullNameEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: fieldSeparator,
	})
}

// openSink opens path in append mode, or through a rotating writer when
// rotation is enabled.
func openSink(name, path string, level Level, rotation *logger.RotationOptions, fmtOpts format.Options, notifier Notifier) (*Sink, error) {
	s := &Sink{
		name:     name,
		path:     path,
		level:    zap.NewAtomicLevelAt(level.zapLevel()),
		fmtOpts:  fmtOpts,
		notifier: notifier,
		state:    StateUninitialized,
	}
	if s.notifier == nil {
		s.notifier = NopNotifier{}
	}

	var ws zapcore.WriteSyncer
	if rotation.Enabled() {
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    rotation.MaxSize,
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAge,
			Compress:   rotation.Compress,
			LocalTime:  true,
		}
		ws = zapcore.AddSync(lj)
		s.closer = lj
	} else {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, errors.ErrIOFailure.WithMessagef("cannot open log file %s", path).WithCause(err)
		}
		ws = f
		s.closer = f
	}

	s.core = zapcore.NewCore(newEncoder(), zapcore.Lock(ws), s.level)
	s.state = StateOpen
	return s, nil
}

// Name returns the registry name of the sink.
func (s *Sink) Name() string { return s.name }

// Path returns the file the sink appends to.
func (s *Sink) Path() string { return s.path }

// Level returns the current threshold.
func (s *Sink) Level() Level { return fromZapLevel(s.level.Level()) }

// SetLevel changes the threshold. Entries below it are dropped.
func (s *Sink) SetLevel(l Level) { s.level.SetLevel(l.zapLevel()) }

// State returns the lifecycle state.
func (s *Sink) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Enabled reports whether entries of level l are written.
func (s *Sink) Enabled(l Level) bool {
	return s.level.Enabled(l.zapLevel())
}

// Write appends one entry. An empty label is replaced by the name of the
// calling function.
func (s *Sink) Write(level Level, label, message string) error {
	if label == "" {
		label = callerLabel(2)
	}
	return s.write(level, label, message)
}

// PrintAndWrite writes the entry and echoes message to standard output when
// verbose is set.
func (s *Sink) PrintAndWrite(level Level, label, message string, verbose bool) error {
	if label == "" {
		label = callerLabel(2)
	}
	return s.printAndWrite(level, label, message, verbose)
}

// Print is PrintAndWrite with the level's default verbosity.
func (s *Sink) Print(level Level, label, message string) error {
	if label == "" {
		label = callerLabel(2)
	}
	return s.printAndWrite(level, label, message, DefaultVerbose(level))
}

// Debug formats args and writes them at DEBUG.
func (s *Sink) Debug(label string, args ...any) error {
	return s.logArgs(DebugLevel, label, args, false)
}

// Info formats args and writes them at INFO.
func (s *Sink) Info(label string, args ...any) error {
	return s.logArgs(InfoLevel, label, args, false)
}

// Warning formats args, writes them at WARNING and echoes them to standard output.
func (s *Sink) Warning(label string, args ...any) error {
	return s.logArgs(WarningLevel, label, args, true)
}

// Error formats args, writes them at ERROR and echoes them to standard output.
func (s *Sink) Error(label string, args ...any) error {
	return s.logArgs(ErrorLevel, label, args, true)
}

// Critical formats args, writes them at CRITICAL and echoes them to standard output.
func (s *Sink) Critical(label string, args ...any) error {
	return s.logArgs(CriticalLevel, label, args, true)
}

// Notify writes the entry and forwards it to the sink's notifier.
func (s *Sink) Notify(ctx context.Context, level Level, label string, args ...any) error {
	if label == "" {
		label = callerLabel(2)
	}
	msg, err := format.Format(s.fmtOpts, args...)
	if err != nil {
		return err
	}
	if err := s.write(level, label, msg); err != nil {
		return err
	}
	return s.notifier.Notify(ctx, Notification{
		Time:    time.Now(),
		Level:   level,
		Label:   label,
		Message: msg,
	})
}

func (s *Sink) logArgs(level Level, label string, args []any, echo bool) error {
	if label == "" {
		label = callerLabel(3)
	}
	msg, err := format.Format(s.fmtOpts, args...)
	if err != nil {
		return err
	}
	if echo {
		return s.printAndWrite(level, label, msg, DefaultVerbose(level))
	}
	return s.write(level, label, msg)
}

func (s *Sink) printAndWrite(level Level, label, message string, verbose bool) error {
	if err := s.write(level, label, message); err != nil {
		return err
	}
	if verbose {
		fmt.Fprintln(os.Stdout, message)
	}
	return nil
}

func (s *Sink) write(level Level, label, message string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateOpen {
		return errors.ErrSinkClosed.WithMessagef("sink %q is %s", s.name, s.state)
	}
	zl := level.zapLevel()
	if !s.level.Enabled(zl) {
		return nil
	}
	if label == "" {
		label = unknownLabel
	}

	ent := zapcore.Entry{
		Level:      zl,
		Time:       time.Now(),
		LoggerName: label,
		Message:    message,
	}
	if err := s.core.Write(ent, nil); err != nil {
		return errors.ErrIOFailure.WithMessagef("write to %s failed", s.path).WithCause(err)
	}
	return nil
}

// close flushes and releases the file. Further writes fail with ErrSinkClosed.
func (s *Sink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed
	return multierr.Append(s.core.Sync(), s.closer.Close())
}

// callerLabel returns the short name of the function skip frames above its caller.
func callerLabel(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return unknownLabel
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return unknownLabel
	}
	return shortFuncName(fn.Name())
}

// shortFuncName turns "github.com/a/b.(*T).Run.func1" into "Run.func1"
// and "github.com/a/b.Do" into "Do".
func shortFuncName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if strings.HasPrefix(name, "(") {
		if i := strings.Index(name, ")."); i >= 0 {
			name = name[i+2:]
		}
	}
	return name
}
