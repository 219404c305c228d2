package instrument

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sort"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/kart-io/trackinglog/pkg/format"
	"github.com/kart-io/trackinglog/pkg/options/logger"
)

const (
	bytesPerMB    = 1024 * 1024
	maxLineReport = 10
)

// ProfilingScope measures one call. It is acquired before the call and ends
// with either Report on success or Release on any exit path. Release is
// idempotent and safe after Report.
type ProfilingScope interface {
	// Report stops measuring and renders the result. An empty string means
	// there is nothing to log.
	Report() string
	// Release stops measuring and frees resources without a report.
	Release()
}

// StartProfiling acquires the scope for mode. Unknown modes measure nothing.
func StartProfiling(mode logger.ProfilingMode) ProfilingScope {
	switch mode {
	case logger.ProfilingTime:
		return startTimeScope()
	case logger.ProfilingLine:
		return startLineScope()
	default:
		return noopScope{}
	}
}

type noopScope struct{}

func (noopScope) Report() string { return "" }
func (noopScope) Release()       {}

// Sample is the state captured at entry of a time scope.
type Sample struct {
	Start     time.Time
	CPUBefore float64 // user+system seconds
	RSSBefore uint64
}

type timeScope struct {
	sample Sample
	proc   *process.Process
}

func startTimeScope() *timeScope {
	s := &timeScope{}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
		if t, err := p.Times(); err == nil {
			s.sample.CPUBefore = t.User + t.System
		}
		if m, err := p.MemoryInfo(); err == nil {
			s.sample.RSSBefore = m.RSS
		}
	}
	s.sample.Start = time.Now()
	return s
}

func (s *timeScope) Report() string {
	elapsed := time.Since(s.sample.Start)
	msg := "time: " + FormatElapsed(elapsed)
	if s.proc == nil {
		return msg
	}

	if t, err := s.proc.Times(); err == nil && elapsed > 0 {
		cpu := (t.User + t.System - s.sample.CPUBefore) / elapsed.Seconds() * 100
		msg += " | cpu: " + format.Float(cpu) + "%"
	}
	if m, err := s.proc.MemoryInfo(); err == nil {
		delta := (float64(m.RSS) - float64(s.sample.RSSBefore)) / bytesPerMB
		msg += " | memory: " + format.Float(float64(m.RSS)/bytesPerMB) + " MB (delta " + format.Float(delta) + " MB)"
	}
	return msg
}

func (s *timeScope) Release() {}

// FormatElapsed renders d as "H hr M min S sec".
func FormatElapsed(d time.Duration) string {
	h := int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	return fmt.Sprintf("%d hr %d min %s sec", h, m, format.Float(d.Seconds()))
}

// lineScope records a CPU profile for the duration of the call and reports
// the hottest source lines. The Go runtime allows one CPU profile per
// process; when one is already running the scope reports why it is empty.
type lineScope struct {
	buf     bytes.Buffer
	started time.Time
	err     error
	once    sync.Once
}

func startLineScope() *lineScope {
	s := &lineScope{started: time.Now()}
	s.err = pprof.StartCPUProfile(&s.buf)
	return s
}

func (s *lineScope) stop() {
	s.once.Do(func() {
		if s.err == nil {
			pprof.StopCPUProfile()
		}
	})
}

func (s *lineScope) Release() { s.stop() }

func (s *lineScope) Report() string {
	s.stop()
	if s.err != nil {
		return "line profile unavailable: " + s.err.Error()
	}

	prof, err := profile.Parse(&s.buf)
	if err != nil {
		return "line profile unreadable: " + err.Error()
	}
	return renderLineProfile(prof, time.Since(s.started))
}

type lineKey struct {
	function string
	file     string
	line     int64
}

type lineStat struct {
	lineKey
	samples int64
	nanos   int64
}

// renderLineProfile aggregates samples by the innermost source line.
func renderLineProfile(prof *profile.Profile, elapsed time.Duration) string {
	if len(prof.SampleType) == 0 {
		return "line profile: no sample types"
	}
	valueIdx := len(prof.SampleType) - 1

	stats := make(map[lineKey]*lineStat)
	var total int64
	for _, smp := range prof.Sample {
		if len(smp.Location) == 0 || len(smp.Location[0].Line) == 0 {
			continue
		}
		ln := smp.Location[0].Line[0]
		key := lineKey{line: ln.Line}
		if ln.Function != nil {
			key.function = ln.Function.Name
			key.file = ln.Function.Filename
		}
		st, ok := stats[key]
		if !ok {
			st = &lineStat{lineKey: key}
			stats[key] = st
		}
		st.samples += smp.Value[0]
		st.nanos += smp.Value[valueIdx]
		total += smp.Value[valueIdx]
	}
	if len(stats) == 0 {
		return fmt.Sprintf("line profile: no samples collected in %s", FormatElapsed(elapsed))
	}

	rows := make([]*lineStat, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, st)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].nanos != rows[j].nanos {
			return rows[i].nanos > rows[j].nanos
		}
		return rows[i].function < rows[j].function
	})
	if len(rows) > maxLineReport {
		rows = rows[:maxLineReport]
	}

	tbl := format.NewTable("function", "line", "samples", "ms", "%")
	if total == 0 {
		total = 1
	}
	for _, st := range rows {
		tbl.Append(
			st.function,
			fmt.Sprintf("%s:%d", filepath.Base(st.file), st.line),
			st.samples,
			float64(st.nanos)/float64(time.Millisecond),
			float64(st.nanos)/float64(total)*100,
		)
	}
	return format.Sprint("line profile, total", FormatElapsed(elapsed), tbl)
}
