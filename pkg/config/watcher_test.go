package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"github.com/kart-io/logger/option"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/trackinglog/pkg/errors"
)

type limits struct {
	CountLimit int `mapstructure:"count-limit"`
	DayLimit   int `mapstructure:"day-limit"`
}

type recorder struct {
	mu   sync.Mutex
	got  []limits
	fail bool
}

func (r *recorder) OnConfigChange(newConfig interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return stderrors.New("rejected")
	}
	r.got = append(r.got, *newConfig.(*limits))
	return nil
}

func (r *recorder) last() (limits, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		return limits{}, 0
	}
	return r.got[len(r.got)-1], len(r.got)
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func newViper(t *testing.T, body string) (*viper.Viper, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trackinglog.yaml")
	writeConfig(t, path, body)

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return v, path
}

func TestWatcherSubscribe(t *testing.T) {
	v, _ := newViper(t, "sweep:\n  count-limit: 3\n")
	w := NewWatcher(v, quietLogger())

	w.Subscribe("a", func(*viper.Viper) error { return nil })
	w.Subscribe("b", func(*viper.Viper) error { return nil })
	w.Subscribe("a", func(*viper.Viper) error { return nil })
	assert.Equal(t, 2, w.HandlerCount())

	w.Unsubscribe("a")
	w.Unsubscribe("missing")
	assert.Equal(t, 1, w.HandlerCount())
}

func TestWatcherNotify(t *testing.T) {
	v, _ := newViper(t, "sweep:\n  count-limit: 3\n  day-limit: 2\n")
	w := NewWatcher(v, quietLogger())

	rec := &recorder{}
	sub := NewReloadableSubscriber(rec, "sweep", func() interface{} { return &limits{} })
	w.Subscribe("sweep", sub.Handler())

	// Not started: nothing dispatched.
	require.NoError(t, w.Notify())
	_, n := rec.last()
	assert.Zero(t, n)

	w.Start()
	w.Start()
	assert.True(t, w.IsWatching())

	require.NoError(t, w.Notify())
	got, n := rec.last()
	assert.Equal(t, 1, n)
	assert.Equal(t, limits{CountLimit: 3, DayLimit: 2}, got)

	w.Stop()
	assert.False(t, w.IsWatching())
}

func TestWatcherNotifyCollectsFailures(t *testing.T) {
	v, _ := newViper(t, "sweep:\n  count-limit: 3\n")
	w := NewWatcher(v, quietLogger())

	bad := &recorder{fail: true}
	good := &recorder{}
	w.Subscribe("a-bad", NewReloadableSubscriber(bad, "sweep", func() interface{} { return &limits{} }).Handler())
	w.Subscribe("b-good", NewReloadableSubscriber(good, "sweep", func() interface{} { return &limits{} }).Handler())
	w.Start()
	defer w.Stop()

	err := w.Notify()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrInvalidConfig.Code))

	_, n := good.last()
	assert.Equal(t, 1, n, "a failing handler must not stop the others")
}

func TestWatcherFileChange(t *testing.T) {
	v, path := newViper(t, "sweep:\n  count-limit: 3\n")
	w := NewWatcher(v, quietLogger())

	rec := &recorder{}
	w.Subscribe("sweep", NewReloadableSubscriber(rec, "sweep", func() interface{} { return &limits{} }).Handler())
	w.Start()
	defer w.Stop()

	// Give fsnotify time to register the watch.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, path, "sweep:\n  count-limit: 9\n")

	require.Eventually(t, func() bool {
		got, _ := rec.last()
		return got.CountLimit == 9
	}, 5*time.Second, 20*time.Millisecond)
}

func quietLogger() core.Logger {
	l, err := logger.New(&option.LogOption{
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
