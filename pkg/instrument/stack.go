package instrument

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// engineDir is the source directory of this package. Frames from files in it
// are dropped from reported stack traces, test files excepted.
var engineDir = func() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Dir(file)
}()

const maxStackDepth = 64

// stackTrace renders the current goroutine stack without runtime internals
// and without frames of the instrumentation engine. Reflection frames that
// sit directly above an engine frame belong to the dynamic call of a
// resolved target and are dropped with it.
func stackTrace(skip int) string {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var all []runtime.Frame
	for {
		f, more := frames.Next()
		all = append(all, f)
		if !more {
			break
		}
	}
	return renderStack(filterFrames(all))
}

func renderStack(frames []runtime.Frame) string {
	var b strings.Builder
	b.WriteString("stack trace (most recent call first):")
	for _, f := range frames {
		fmt.Fprintf(&b, "\n%s\n\t%s:%d", f.Function, f.File, f.Line)
	}
	return b.String()
}

// filterFrames applies keepFrame to frames ordered most recent first and
// drops runs of reflect frames whose caller is an engine frame.
func filterFrames(frames []runtime.Frame) []runtime.Frame {
	var (
		out     []runtime.Frame
		pending []runtime.Frame
	)
	for _, f := range frames {
		if isReflectFrame(f) {
			pending = append(pending, f)
			continue
		}
		if !isEngineFrame(f) {
			out = append(out, pending...)
		}
		pending = pending[:0]
		if keepFrame(f) {
			out = append(out, f)
		}
	}
	return append(out, pending...)
}

func keepFrame(f runtime.Frame) bool {
	if f.Function == "" {
		return false
	}
	if strings.HasPrefix(f.Function, "runtime.") || strings.HasPrefix(f.Function, "runtime/debug.") {
		return false
	}
	return !isEngineFrame(f)
}

func isEngineFrame(f runtime.Frame) bool {
	return filepath.Dir(f.File) == engineDir && !strings.HasSuffix(f.File, "_test.go")
}

func isReflectFrame(f runtime.Frame) bool {
	return strings.HasPrefix(f.Function, "reflect.")
}
