package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/trackinglog/pkg/errors"
)

func TestNewOptionsDefaults(t *testing.T) {
	o := NewOptions()
	require.NoError(t, o.Complete())

	assert.Equal(t, "logs", o.RootPath)
	assert.Equal(t, filepath.Join("logs", "cache"), o.CachePath)
	assert.Equal(t, 100, o.CacheCountLimit)
	assert.Equal(t, 7, o.CacheDayLimit)
	assert.Equal(t, ProfilingNone, o.Profiling)
	assert.Empty(t, o.Validate())
}

func TestCompleteKeepsExplicitCachePath(t *testing.T) {
	o := NewOptions()
	o.CachePath = "/var/tmp/cache"
	require.NoError(t, o.Complete())
	assert.Equal(t, "/var/tmp/cache", o.CachePath)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Options)
		errs   int
	}{
		{"valid", func(o *Options) {}, 0},
		{"empty root", func(o *Options) { o.RootPath = " " }, 1},
		{"bad profiling", func(o *Options) { o.Profiling = "cpu" }, 1},
		{"bad level", func(o *Options) { o.Level = "trace" }, 1},
		{"fatal level", func(o *Options) { o.Level = "FATAL" }, 0},
		{"critical level", func(o *Options) { o.Level = "critical" }, 0},
		{"warning level", func(o *Options) { o.Level = " Warning " }, 0},
		{"negative rotation", func(o *Options) { o.Rotation.MaxSize = -1 }, 1},
		{"all bad", func(o *Options) {
			o.RootPath = ""
			o.Profiling = "x"
			o.Level = "x"
		}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptions()
			tt.mutate(o)
			assert.Len(t, o.Validate(), tt.errs)
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b")
	o := NewOptions()
	o.RootPath = root
	require.NoError(t, o.Complete())
	require.NoError(t, o.EnsureDirs())

	for _, dir := range []string{root, filepath.Join(root, "cache")} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestEnsureDirsFailsFast(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	o := NewOptions()
	o.RootPath = filepath.Join(file, "logs")
	require.NoError(t, o.Complete())

	err := o.EnsureDirs()
	assert.ErrorIs(t, err, errors.ErrInvalidRootPath)

	o.RootPath = ""
	assert.ErrorIs(t, o.EnsureDirs(), errors.ErrInvalidRootPath)
}

func TestLimits(t *testing.T) {
	o := NewOptions()
	n, ok := o.CountLimit()
	assert.True(t, ok)
	assert.Equal(t, 100, n)

	o.CacheDayLimit = 0
	_, ok = o.DayLimit()
	assert.False(t, ok)
}

func TestAddFlagsWithPrefix(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs, "task")

	require.NoError(t, fs.Parse([]string{
		"--task.log.root-path=/srv/logs",
		"--task.log.cache-day-limit=3",
		"--task.log.profiling=time",
		"--task.log.rotation.max-size=10",
	}))

	assert.Equal(t, "/srv/logs", o.RootPath)
	assert.Equal(t, 3, o.CacheDayLimit)
	assert.Equal(t, ProfilingTime, o.Profiling)
	assert.True(t, o.Rotation.Enabled())
}

func TestClone(t *testing.T) {
	o := NewOptions()
	c := o.Clone()
	c.Rotation.MaxSize = 5
	c.RootPath = "other"

	assert.Equal(t, 0, o.Rotation.MaxSize)
	assert.Equal(t, "logs", o.RootPath)
}
