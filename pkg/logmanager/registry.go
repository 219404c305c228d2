// Package logmanager owns the named log sinks of a process.
//
// A Registry is initialised once per process with Init and torn down with
// Shutdown. Sinks are created lazily by GetOrCreate; the first request for a
// name decides the sink's configuration and later requests return the same
// *Sink.
//
//	reg, err := logmanager.Init(opts)
//	if err != nil {
//		return err
//	}
//	defer reg.Shutdown()
//
//	sink, err := reg.GetOrCreate("jobs", nil)
package logmanager

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	kartlog "github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"go.uber.org/multierr"

	"github.com/kart-io/trackinglog/pkg/errors"
	"github.com/kart-io/trackinglog/pkg/format"
	"github.com/kart-io/trackinglog/pkg/options/logger"
	"github.com/kart-io/trackinglog/pkg/sweep"
)

// fileTimestampLayout renders as YYMMDD_HHMMSS.
const fileTimestampLayout = "060102_150405"

var (
	activeMu sync.Mutex
	active   *Registry
)

// Registry maps logger names to sinks.
type Registry struct {
	settings *logger.Options
	notifier Notifier
	fmtOpts  format.Options
	sweeper  *sweep.Sweeper
	log      core.Logger
	now      func() time.Time

	mu     sync.Mutex
	sinks  map[string]*Sink
	closed bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithNotifier sets the notifier handed to every sink.
func WithNotifier(n Notifier) RegistryOption {
	return func(r *Registry) { r.notifier = n }
}

// WithFormatOptions sets the formatter options used by the leveled helpers.
func WithFormatOptions(o format.Options) RegistryOption {
	return func(r *Registry) { r.fmtOpts = o }
}

// WithSweeper sets the sweeper used by CacheSink.
func WithSweeper(s *sweep.Sweeper) RegistryOption {
	return func(r *Registry) { r.sweeper = s }
}

// WithLogger sets the logger for registry diagnostics.
func WithLogger(l core.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// Init validates opts, creates the root and cache directories and claims the
// process-wide registry slot. It fails with ErrRegistryActive if another
// registry has not been shut down.
func Init(opts *logger.Options, ro ...RegistryOption) (*Registry, error) {
	if opts == nil {
		opts = logger.NewOptions()
	}
	settings := opts.Clone()
	if err := settings.Complete(); err != nil {
		return nil, err
	}
	if err := multierr.Combine(settings.Validate()...); err != nil {
		return nil, err
	}
	if err := settings.EnsureDirs(); err != nil {
		return nil, err
	}

	r := &Registry{
		settings: settings,
		notifier: NopNotifier{},
		sinks:    make(map[string]*Sink),
		now:      time.Now,
	}
	for _, o := range ro {
		o(r)
	}
	if r.log == nil {
		r.log = kartlog.Global().With("component", "logmanager")
	}
	if r.sweeper == nil {
		r.sweeper = sweep.New(sweep.WithLogger(r.log))
	}
	if err := r.fmtOpts.Validate(); err != nil {
		return nil, err
	}

	activeMu.Lock()
	defer activeMu.Unlock()
	if active != nil {
		return nil, errors.ErrRegistryActive.WithMessagef("registry rooted at %s is still active", active.settings.RootPath)
	}
	active = r

	r.log.Debugw("registry initialized", "root", settings.RootPath, "cache", settings.CachePath)
	return r, nil
}

// sinkConfig is the per-sink configuration derived from settings and options.
type sinkConfig struct {
	folder    string
	fileName  string
	level     string
	timestamp bool
	rotation  *logger.RotationOptions
}

// SinkOption overrides how a new sink is created.
type SinkOption func(*sinkConfig)

// WithFileName overrides the default "<name>.log" file name.
func WithFileName(name string) SinkOption {
	return func(c *sinkConfig) { c.fileName = name }
}

// WithFolder overrides the directory of the sink file.
func WithFolder(dir string) SinkOption {
	return func(c *sinkConfig) { c.folder = dir }
}

// WithSinkLevel overrides the level threshold.
func WithSinkLevel(level string) SinkOption {
	return func(c *sinkConfig) { c.level = level }
}

// WithTimestamp switches the default file name to "<name>_<YYMMDD_HHMMSS>.log".
func WithTimestamp(on bool) SinkOption {
	return func(c *sinkConfig) { c.timestamp = on }
}

// GetOrCreate returns the sink registered under name, creating it from
// settings on first use. settings and opts are ignored once the sink exists.
// A nil settings uses the registry's settings.
func (r *Registry) GetOrCreate(name string, settings *logger.Options, opts ...SinkOption) (*Sink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.ErrRegistryClosed
	}
	if s, ok := r.sinks[name]; ok {
		return s, nil
	}

	if settings == nil {
		settings = r.settings
	}
	cfg := sinkConfig{
		folder:    settings.RootPath,
		level:     settings.Level,
		timestamp: settings.Timestamp,
		rotation:  settings.Rotation,
	}
	for _, o := range opts {
		o(&cfg)
	}

	level, err := ParseLevel(cfg.level)
	if err != nil {
		return nil, err
	}
	if cfg.folder == "" {
		return nil, errors.ErrInvalidRootPath.WithMessagef("no folder for sink %q", name)
	}
	if err := os.MkdirAll(cfg.folder, 0o755); err != nil {
		return nil, errors.ErrInvalidRootPath.WithMessagef("cannot create %s", cfg.folder).WithCause(err)
	}

	file := cfg.fileName
	if file == "" {
		file = r.fileName(name, cfg.timestamp)
	}
	s, err := openSink(name, filepath.Join(cfg.folder, file), level, cfg.rotation, r.fmtOpts, r.notifier)
	if err != nil {
		return nil, err
	}
	r.sinks[name] = s
	r.log.Debugw("sink created", "name", name, "path", s.Path(), "level", level.String())
	return s, nil
}

// GetExisting returns the sink registered under name or ErrSinkNotFound.
func (r *Registry) GetExisting(name string) (*Sink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.ErrRegistryClosed
	}
	s, ok := r.sinks[name]
	if !ok {
		return nil, errors.ErrSinkNotFound.WithMessagef("logger named %q not found, create it first", name)
	}
	return s, nil
}

// CacheSink sweeps the cache directory with the configured retention limits
// and returns a timestamped sink under it. Sweep failures are logged and do
// not prevent the sink from being created.
func (r *Registry) CacheSink(ctx context.Context, name string) (*Sink, error) {
	r.mu.Lock()
	s, ok := r.sinks[name]
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, errors.ErrRegistryClosed
	}
	if ok {
		return s, nil
	}

	res, err := r.sweeper.Sweep(ctx, r.settings.CachePath, sweep.PolicyFrom(r.settings))
	if err != nil {
		r.log.Warnw("cache sweep finished with failures", "dir", r.settings.CachePath, "error", err)
	} else if res.Deleted > 0 {
		r.log.Infow("cache sweep", "dir", r.settings.CachePath, "scanned", res.Scanned, "deleted", res.Deleted)
	}

	return r.GetOrCreate(name, nil, WithFolder(r.settings.CachePath), WithTimestamp(true))
}

// Names returns the registered sink names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedKeys(r.sinks)
}

// Settings returns a copy of the registry settings.
func (r *Registry) Settings() *logger.Options {
	return r.settings.Clone()
}

// Shutdown closes every sink and releases the process-wide slot. Close
// failures are returned for information; every sink is closed regardless.
// Calling Shutdown more than once is a no-op.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true

	var err error
	for _, name := range sortedKeys(r.sinks) {
		if cerr := r.sinks[name].close(); cerr != nil {
			err = multierr.Append(err, errors.ErrIOFailure.WithMessagef("close sink %q", name).WithCause(cerr))
		}
	}
	r.mu.Unlock()

	activeMu.Lock()
	if active == r {
		active = nil
	}
	activeMu.Unlock()

	r.log.Debugw("registry shut down", "root", r.settings.RootPath, "error", err)
	return err
}

func (r *Registry) fileName(name string, timestamp bool) string {
	if timestamp {
		return name + "_" + r.now().Format(fileTimestampLayout) + ".log"
	}
	return name + ".log"
}

func sortedKeys(m map[string]*Sink) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
