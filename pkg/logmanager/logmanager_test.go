package logmanager

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	kartlog "github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"github.com/kart-io/logger/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/trackinglog/pkg/errors"
	"github.com/kart-io/trackinglog/pkg/options/logger"
)

var linePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} - (DEBUG|INFO|WARNING|ERROR|CRITICAL) - `)

func newRegistry(t *testing.T, mutate func(o *logger.Options), ro ...RegistryOption) *Registry {
	t.Helper()
	o := logger.NewOptions()
	o.RootPath = t.TempDir()
	if mutate != nil {
		mutate(o)
	}
	reg, err := Init(o, append([]RegistryOption{WithLogger(quietLogger())}, ro...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Shutdown() })
	return reg
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestSinkLineFormat(t *testing.T) {
	reg := newRegistry(t, nil)
	s, err := reg.GetOrCreate("jobs", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(reg.Settings().RootPath, "jobs.log"), s.Path())
	assert.Equal(t, StateOpen, s.State())

	require.NoError(t, s.Write(InfoLevel, "run", "hello"))
	require.NoError(t, s.Write(WarningLevel, "run", "first\nsecond"))
	require.NoError(t, s.Write(CriticalLevel, "run", "bad"))

	lines := readLines(t, s.Path())
	require.Len(t, lines, 4)
	assert.Regexp(t, linePattern, lines[0])
	assert.True(t, strings.HasSuffix(lines[0], " - INFO - run - hello"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], " - WARNING - run - first"), lines[1])
	assert.Equal(t, "second", lines[2])
	assert.True(t, strings.HasSuffix(lines[3], " - CRITICAL - run - bad"), lines[3])

	ts := lines[0][:len("2006-01-02 15:04:05")]
	parsed, err := time.ParseInLocation("2006-01-02 15:04:05", ts, time.Local)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), parsed, time.Minute)
}

func TestSinkInfersLabel(t *testing.T) {
	reg := newRegistry(t, nil)
	s, err := reg.GetOrCreate("jobs", nil)
	require.NoError(t, err)

	require.NoError(t, s.Write(InfoLevel, "", "direct"))
	require.NoError(t, s.Info("", "helper"))

	lines := readLines(t, s.Path())
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], " - TestSinkInfersLabel - direct")
	assert.Contains(t, lines[1], " - TestSinkInfersLabel - helper")
}

func TestSinkLevelThreshold(t *testing.T) {
	reg := newRegistry(t, nil)
	s, err := reg.GetOrCreate("quiet", nil, WithSinkLevel("warning"))
	require.NoError(t, err)
	assert.Equal(t, WarningLevel, s.Level())

	require.NoError(t, s.Debug("l", "dropped"))
	require.NoError(t, s.Write(InfoLevel, "l", "dropped"))
	require.NoError(t, s.Write(ErrorLevel, "l", "kept"))

	s.SetLevel(DebugLevel)
	require.NoError(t, s.Debug("l", "now kept"))
	assert.True(t, s.Enabled(DebugLevel))

	lines := readLines(t, s.Path())
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ERROR - l - kept")
	assert.Contains(t, lines[1], "DEBUG - l - now kept")
}

func TestSinkHelpersFormatArguments(t *testing.T) {
	reg := newRegistry(t, nil)
	s, err := reg.GetOrCreate("calc", nil)
	require.NoError(t, err)

	require.NoError(t, s.Info("sum", "took", 3.0, "sec", 2))

	lines := readLines(t, s.Path())
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], " - INFO - sum - took 3. sec 2"), lines[0])
}

func TestPrintAndWrite(t *testing.T) {
	reg := newRegistry(t, nil)
	s, err := reg.GetOrCreate("echo", nil)
	require.NoError(t, err)

	out := captureStdout(t, func() {
		require.NoError(t, s.PrintAndWrite(InfoLevel, "l", "shown", true))
		require.NoError(t, s.PrintAndWrite(ErrorLevel, "l", "hidden", false))
		require.NoError(t, s.Print(DebugLevel, "l", "debug default"))
		require.NoError(t, s.Print(ErrorLevel, "l", "error default"))
		require.NoError(t, s.Warning("l", "warning helper"))
	})

	assert.Equal(t, "shown\nerror default\nwarning helper\n", out)
	assert.Len(t, readLines(t, s.Path()), 5)
}

func TestDefaultVerbose(t *testing.T) {
	tests := []struct {
		level Level
		want  bool
	}{
		{DebugLevel, false},
		{InfoLevel, false},
		{WarningLevel, true},
		{ErrorLevel, true},
		{CriticalLevel, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultVerbose(tt.level), tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", DebugLevel, false},
		{"DEBUG", DebugLevel, false},
		{"info", InfoLevel, false},
		{"warn", WarningLevel, false},
		{"Warning", WarningLevel, false},
		{"error", ErrorLevel, false},
		{"critical", CriticalLevel, false},
		{"fatal", CriticalLevel, false},
		{"trace", DebugLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, errors.ErrInvalidConfig, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseLevelAcceptsConfiguredNames(t *testing.T) {
	for _, name := range logger.LevelNames() {
		o := logger.NewOptions()
		o.Level = name
		assert.Empty(t, o.Validate(), name)
		_, err := ParseLevel(name)
		assert.NoError(t, err, name)
	}
}

func TestSinkNotify(t *testing.T) {
	var got []Notification
	reg := newRegistry(t, nil, WithNotifier(NotifierFunc(func(_ context.Context, n Notification) error {
		got = append(got, n)
		return nil
	})))
	s, err := reg.GetOrCreate("alerts", nil)
	require.NoError(t, err)

	require.NoError(t, s.Notify(context.Background(), ErrorLevel, "job", "disk", 99.5))

	require.Len(t, got, 1)
	assert.Equal(t, ErrorLevel, got[0].Level)
	assert.Equal(t, "job", got[0].Label)
	assert.Equal(t, "disk 99.5", got[0].Message)
	assert.Len(t, readLines(t, s.Path()), 1)
}

func TestSinkConcurrentWrites(t *testing.T) {
	reg := newRegistry(t, nil)
	s, err := reg.GetOrCreate("busy", nil)
	require.NoError(t, err)

	const writers, perWriter = 20, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, s.Write(InfoLevel, "worker", fmt.Sprintf("w%02d-%03d", w, i)))
			}
		}(w)
	}
	wg.Wait()

	lines := readLines(t, s.Path())
	require.Len(t, lines, writers*perWriter)
	for _, l := range lines {
		assert.Regexp(t, `^\S+ \S+ - INFO - worker - w\d{2}-\d{3}$`, l)
	}
}

func TestSinkIOFailure(t *testing.T) {
	reg := newRegistry(t, nil)
	s, err := reg.GetOrCreate("broken", nil)
	require.NoError(t, err)

	require.NoError(t, s.closer.Close())
	err = s.Write(InfoLevel, "l", "lost")
	assert.ErrorIs(t, err, errors.ErrIOFailure)
	assert.Equal(t, StateOpen, s.State())
}

func TestSinkRotation(t *testing.T) {
	reg := newRegistry(t, func(o *logger.Options) {
		o.Rotation = &logger.RotationOptions{MaxSize: 1, MaxBackups: 2}
	})
	s, err := reg.GetOrCreate("rotating", nil)
	require.NoError(t, err)

	require.NoError(t, s.Write(InfoLevel, "l", "through lumberjack"))
	assert.Contains(t, readLines(t, s.Path())[0], "through lumberjack")
}

func TestGetOrCreateFirstWriterWins(t *testing.T) {
	reg := newRegistry(t, nil)

	other := logger.NewOptions()
	other.RootPath = t.TempDir()
	other.Level = "error"

	s1, err := reg.GetOrCreate("shared", nil)
	require.NoError(t, err)
	s2, err := reg.GetOrCreate("shared", other, WithFileName("ignored.log"))
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, filepath.Join(reg.Settings().RootPath, "shared.log"), s2.Path())
	assert.Equal(t, DebugLevel, s2.Level())
	assert.NoFileExists(t, filepath.Join(other.RootPath, "ignored.log"))
}

func TestGetOrCreateConcurrent(t *testing.T) {
	reg := newRegistry(t, nil)

	const n = 32
	sinks := make([]*Sink, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := reg.GetOrCreate("race", nil)
			assert.NoError(t, err)
			sinks[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range sinks {
		assert.Same(t, sinks[0], s)
	}
	assert.Equal(t, []string{"race"}, reg.Names())
}

func TestGetOrCreateOptions(t *testing.T) {
	reg := newRegistry(t, nil)
	reg.now = func() time.Time { return time.Date(2023, 1, 5, 13, 45, 1, 0, time.Local) }

	folder := filepath.Join(t.TempDir(), "custom")
	s, err := reg.GetOrCreate("stamped", nil, WithFolder(folder), WithTimestamp(true))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(folder, "stamped_230105_134501.log"), s.Path())

	named, err := reg.GetOrCreate("named", nil, WithFileName("other.txt"))
	require.NoError(t, err)
	assert.Equal(t, "other.txt", filepath.Base(named.Path()))

	_, err = reg.GetOrCreate("badlevel", nil, WithSinkLevel("loud"))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	assert.Equal(t, []string{"named", "stamped"}, reg.Names())
}

func TestGetExisting(t *testing.T) {
	reg := newRegistry(t, nil)

	_, err := reg.GetExisting("missing")
	assert.ErrorIs(t, err, errors.ErrSinkNotFound)

	created, err := reg.GetOrCreate("present", nil)
	require.NoError(t, err)
	got, err := reg.GetExisting("present")
	require.NoError(t, err)
	assert.Same(t, created, got)
}

func TestCacheSinkSweepsFirst(t *testing.T) {
	reg := newRegistry(t, func(o *logger.Options) {
		o.CacheCountLimit = 3
	})
	reg.now = func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.Local) }

	cache := reg.Settings().CachePath
	for i := 1; i <= 5; i++ {
		name := fmt.Sprintf("run_23010%d_000000.log", i)
		require.NoError(t, os.WriteFile(filepath.Join(cache, name), nil, 0o600))
	}

	s, err := reg.CacheSink(context.Background(), "run")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cache, "run_300101_000000.log"), s.Path())

	again, err := reg.CacheSink(context.Background(), "run")
	require.NoError(t, err)
	assert.Same(t, s, again)

	entries, err := os.ReadDir(cache)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"run_230103_000000.log",
		"run_230104_000000.log",
		"run_230105_000000.log",
		"run_300101_000000.log",
	}, names)
}

func TestInitSingleSlot(t *testing.T) {
	reg := newRegistry(t, nil)

	o := logger.NewOptions()
	o.RootPath = t.TempDir()
	_, err := Init(o)
	assert.ErrorIs(t, err, errors.ErrRegistryActive)

	require.NoError(t, reg.Shutdown())
	next, err := Init(o, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, next.Shutdown())
}

func TestInitFailsFast(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	o := logger.NewOptions()
	o.RootPath = filepath.Join(file, "logs")
	_, err := Init(o)
	assert.ErrorIs(t, err, errors.ErrInvalidRootPath)

	o.RootPath = ""
	_, err = Init(o)
	assert.ErrorIs(t, err, errors.ErrInvalidRootPath)

	// A failed Init does not claim the slot.
	newRegistry(t, nil)
}

func TestShutdown(t *testing.T) {
	reg := newRegistry(t, nil)
	s, err := reg.GetOrCreate("jobs", nil)
	require.NoError(t, err)
	require.NoError(t, s.Write(InfoLevel, "l", "before"))

	require.NoError(t, reg.Shutdown())
	require.NoError(t, reg.Shutdown())

	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.Write(InfoLevel, "l", "after"), errors.ErrSinkClosed)
	assert.ErrorIs(t, s.Info("l", "after"), errors.ErrSinkClosed)

	_, err = reg.GetOrCreate("jobs", nil)
	assert.ErrorIs(t, err, errors.ErrRegistryClosed)
	_, err = reg.GetExisting("jobs")
	assert.ErrorIs(t, err, errors.ErrRegistryClosed)

	assert.Len(t, readLines(t, s.Path()), 1)
}

func TestShortFuncName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"github.com/a/b.Do", "Do"},
		{"github.com/a/b.(*T).Run", "Run"},
		{"github.com/a/b.(*T).Run.func1", "Run.func1"},
		{"main.main", "main"},
		{"github.com/a/b.T.Value", "T.Value"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shortFuncName(tt.in), tt.in)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closed", StateClosed.String())
}

func quietLogger() core.Logger {
	l, err := kartlog.New(&option.LogOption{
		Engine:      "zap",
		Level:       "FATAL",
		Format:      "json",
		OutputPaths: []string{os.DevNull},
	})
	if err != nil {
		panic(err)
	}
	return l
}
