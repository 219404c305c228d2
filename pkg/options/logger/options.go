// Package logger provides the settings consumed by log sinks, the cache
// retention sweeper and the instrumentation engine.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/kart-io/trackinglog/pkg/errors"
	"github.com/kart-io/trackinglog/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// ProfilingMode selects what the instrumentation engine measures around a call.
type ProfilingMode string

const (
	// ProfilingNone disables measurement.
	ProfilingNone ProfilingMode = "none"
	// ProfilingTime samples wall clock, process CPU% and resident memory.
	ProfilingTime ProfilingMode = "time"
	// ProfilingLine samples the CPU profile and reports per-line statistics.
	ProfilingLine ProfilingMode = "line"
)

const (
	// DefaultCacheCountLimit is the number of cache log files kept by a sweep.
	DefaultCacheCountLimit = 100
	// DefaultCacheDayLimit is the age in days after which cache log files are removed.
	DefaultCacheDayLimit = 7
	// DefaultCacheDir is the cache directory name under the root log path.
	DefaultCacheDir = "cache"
)

var validLevels = map[string]struct{}{
	"debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {}, "critical": {}, "fatal": {},
}

// LevelNames returns the accepted level names in lower case, sorted.
func LevelNames() []string {
	names := make([]string, 0, len(validLevels))
	for name := range validLevels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RotationOptions configures size based rotation of sink files.
// Rotation is disabled when MaxSize is zero.
type RotationOptions struct {
	MaxSize    int  `json:"max-size" mapstructure:"max-size"`
	MaxBackups int  `json:"max-backups" mapstructure:"max-backups"`
	MaxAge     int  `json:"max-age" mapstructure:"max-age"`
	Compress   bool `json:"compress" mapstructure:"compress"`
}

// Enabled reports whether rotation is configured.
func (r *RotationOptions) Enabled() bool {
	return r != nil && r.MaxSize > 0
}

// Options defines the log settings.
type Options struct {
	// RootPath is the directory sink files are created in.
	RootPath string `json:"root-path" mapstructure:"root-path"`

	// CachePath holds cache sink files. Defaults to RootPath/cache.
	CachePath string `json:"cache-path" mapstructure:"cache-path"`

	// CacheCountLimit is the number of newest cache files a sweep keeps. <= 0 disables.
	CacheCountLimit int `json:"cache-count-limit" mapstructure:"cache-count-limit"`

	// CacheDayLimit is the maximum age in days of cache files. <= 0 disables.
	CacheDayLimit int `json:"cache-day-limit" mapstructure:"cache-day-limit"`

	// Level is the sink level threshold.
	Level string `json:"level" mapstructure:"level"`

	// Timestamp appends _YYMMDD_HHMMSS to sink file names.
	Timestamp bool `json:"timestamp" mapstructure:"timestamp"`

	// Verbose is the default verbosity of instrumented calls.
	Verbose bool `json:"verbose" mapstructure:"verbose"`

	// Profiling is the default profiling mode of instrumented calls.
	Profiling ProfilingMode `json:"profiling" mapstructure:"profiling"`

	// CaptureStdout is the default stdout capture of instrumented calls.
	CaptureStdout bool `json:"capture-stdout" mapstructure:"capture-stdout"`

	// Rotation configures optional size based rotation.
	Rotation *RotationOptions `json:"rotation" mapstructure:"rotation"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		RootPath:        "logs",
		CacheCountLimit: DefaultCacheCountLimit,
		CacheDayLimit:   DefaultCacheDayLimit,
		Level:           "debug",
		Profiling:       ProfilingNone,
		Rotation:        &RotationOptions{},
	}
}

// AddFlags adds flags for log options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.RootPath, p+"log.root-path", o.RootPath, "Directory log files are written to.")
	fs.StringVar(&o.CachePath, p+"log.cache-path", o.CachePath, "Directory of cache log files (default <root-path>/cache).")
	fs.IntVar(&o.CacheCountLimit, p+"log.cache-count-limit", o.CacheCountLimit, "Number of newest cache log files kept by a sweep (<= 0 disables).")
	fs.IntVar(&o.CacheDayLimit, p+"log.cache-day-limit", o.CacheDayLimit, "Maximum age in days of cache log files (<= 0 disables).")
	fs.StringVar(&o.Level, p+"log.level", o.Level, "Sink level threshold (debug|info|warning|error|critical).")
	fs.BoolVar(&o.Timestamp, p+"log.timestamp", o.Timestamp, "Append a _YYMMDD_HHMMSS timestamp to log file names.")
	fs.BoolVar(&o.Verbose, p+"log.verbose", o.Verbose, "Log call and return of instrumented functions.")
	fs.StringVar((*string)(&o.Profiling), p+"log.profiling", string(o.Profiling), "Profiling mode of instrumented functions (none|time|line).")
	fs.BoolVar(&o.CaptureStdout, p+"log.capture-stdout", o.CaptureStdout, "Redirect standard output of instrumented functions into the log.")

	if o.Rotation == nil {
		o.Rotation = &RotationOptions{}
	}
	fs.IntVar(&o.Rotation.MaxSize, p+"log.rotation.max-size", o.Rotation.MaxSize, "Maximum size in MB of a log file before rotation (0 disables).")
	fs.IntVar(&o.Rotation.MaxBackups, p+"log.rotation.max-backups", o.Rotation.MaxBackups, "Maximum number of rotated log files to retain.")
	fs.IntVar(&o.Rotation.MaxAge, p+"log.rotation.max-age", o.Rotation.MaxAge, "Maximum number of days to retain rotated log files.")
	fs.BoolVar(&o.Rotation.Compress, p+"log.rotation.compress", o.Rotation.Compress, "Compress rotated log files using gzip.")
}

// Complete fills derived defaults.
func (o *Options) Complete() error {
	if o.CachePath == "" && o.RootPath != "" {
		o.CachePath = filepath.Join(o.RootPath, DefaultCacheDir)
	}
	if o.Profiling == "" {
		o.Profiling = ProfilingNone
	}
	if o.Level == "" {
		o.Level = "debug"
	}
	return nil
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if strings.TrimSpace(o.RootPath) == "" {
		errs = append(errs, errors.ErrInvalidRootPath.WithMessage("root log path must be set"))
	}
	switch o.Profiling {
	case "", ProfilingNone, ProfilingTime, ProfilingLine:
	default:
		errs = append(errs, errors.ErrInvalidConfig.WithMessagef("unknown profiling mode %q", o.Profiling))
	}
	if _, ok := validLevels[strings.ToLower(strings.TrimSpace(o.Level))]; o.Level != "" && !ok {
		errs = append(errs, errors.ErrInvalidConfig.WithMessagef("unknown log level %q", o.Level))
	}
	if r := o.Rotation; r != nil && (r.MaxSize < 0 || r.MaxBackups < 0 || r.MaxAge < 0) {
		errs = append(errs, errors.ErrInvalidConfig.WithMessage("rotation limits must not be negative"))
	}
	return errs
}

// EnsureDirs creates the root and cache directories.
// Failing to create either is a setup error; no fallback path is used.
func (o *Options) EnsureDirs() error {
	if strings.TrimSpace(o.RootPath) == "" {
		return errors.ErrInvalidRootPath.WithMessage("root log path must be set")
	}
	for _, dir := range []string{o.RootPath, o.CachePath} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.ErrInvalidRootPath.WithMessagef("cannot create %s", dir).WithCause(err)
		}
	}
	return nil
}

// CountLimit returns the cache count limit and whether it is enabled.
func (o *Options) CountLimit() (int, bool) {
	return o.CacheCountLimit, o.CacheCountLimit > 0
}

// DayLimit returns the cache day limit and whether it is enabled.
func (o *Options) DayLimit() (int, bool) {
	return o.CacheDayLimit, o.CacheDayLimit > 0
}

// Clone returns a deep copy of the options.
func (o *Options) Clone() *Options {
	c := *o
	if o.Rotation != nil {
		r := *o.Rotation
		c.Rotation = &r
	}
	return &c
}

// String returns a string representation of the options.
func (o *Options) String() string {
	return fmt.Sprintf("Log{root=%s, cache=%s, count-limit=%d, day-limit=%d, level=%s, profiling=%s}",
		o.RootPath, o.CachePath, o.CacheCountLimit, o.CacheDayLimit, o.Level, o.Profiling)
}
