// Package sweep removes old cache log files.
//
// A sweep lists the regular files directly under a directory and deletes
//
//   - every file beyond the newest CountLimit, ordered by name descending
//     (cache file names embed a sortable timestamp)
//   - every file whose modification time is older than DayLimit days
//
// Each file is deleted at most once. A file that cannot be deleted is
// recorded and the sweep carries on.
package sweep

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
	"github.com/kart-io/trackinglog/pkg/options/logger"
	"github.com/kart-io/trackinglog/pkg/pool"
)

// Policy holds the retention limits. A limit <= 0 is disabled.
type Policy struct {
	CountLimit int `json:"count-limit" mapstructure:"count-limit"`
	DayLimit   int `json:"day-limit" mapstructure:"day-limit"`
}

// PolicyFrom returns the cache retention policy of o.
func PolicyFrom(o *logger.Options) Policy {
	return Policy{CountLimit: o.CacheCountLimit, DayLimit: o.CacheDayLimit}
}

// Failure is a file that could not be deleted.
type Failure struct {
	Path string
	Err  error
}

// Result describes one sweep.
type Result struct {
	Scanned  int
	Deleted  int
	Removed  []string
	Failures []Failure
}

// Sweeper runs sweeps.
type Sweeper struct {
	pool   *pool.Pool
	log    core.Logger
	now    func() time.Time
	unlink func(string) error
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithPool deletes files on p instead of the calling goroutine.
func WithPool(p *pool.Pool) Option {
	return func(s *Sweeper) { s.pool = p }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l core.Logger) Option {
	return func(s *Sweeper) { s.log = l }
}

// WithClock sets the time source used for the age limit.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New creates a Sweeper.
func New(opts ...Option) *Sweeper {
	s := &Sweeper{now: time.Now, unlink: os.Remove}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = kartlog.Global().With("component", "sweep")
	}
	return s
}

type candidate struct {
	name    string
	modTime time.Time
}

// Sweep applies p to dir. A missing dir is not an error. The returned error
// combines the per-file failures and has ErrIOFailure as its code.
func (s *Sweeper) Sweep(ctx context.Context, dir string, p Policy) (*Result, error) {
	res := &Result{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, errors.ErrIOFailure.WithMessagef("list %s", dir).WithCause(err)
	}

	files := make([]candidate, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between listing and stat.
			continue
		}
		files = append(files, candidate{name: e.Name(), modTime: info.ModTime()})
	}
	res.Scanned = len(files)

	marked := s.mark(files, p)
	if len(marked) == 0 {
		return res, nil
	}

	paths := make([]string, len(marked))
	for i, name := range marked {
		paths[i] = filepath.Join(dir, name)
	}
	s.remove(ctx, paths, res)

	var errs error
	for _, f := range res.Failures {
		errs = multierr.Append(errs, f.Err)
	}
	if errs != nil {
		s.log.Warnw("sweep finished with failures", "dir", dir, "deleted", res.Deleted, "failed", len(res.Failures))
		return res, errors.ErrIOFailure.WithMessagef("sweep %s: %d of %d deletions failed", dir, len(res.Failures), len(paths)).WithCause(errs)
	}
	s.log.Debugw("sweep finished", "dir", dir, "scanned", res.Scanned, "deleted", res.Deleted)
	return res, nil
}

// mark returns the sorted names selected by either limit.
func (s *Sweeper) mark(files []candidate, p Policy) []string {
	selected := make(map[string]struct{})

	if p.CountLimit > 0 && len(files) > p.CountLimit {
		byName := make([]candidate, len(files))
		copy(byName, files)
		sort.Slice(byName, func(i, j int) bool { return byName[i].name > byName[j].name })
		for _, f := range byName[p.CountLimit:] {
			selected[f.name] = struct{}{}
		}
	}

	if p.DayLimit > 0 {
		cutoff := s.now().Add(-time.Duration(p.DayLimit) * 24 * time.Hour)
		for _, f := range files {
			if f.modTime.Before(cutoff) {
				selected[f.name] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(selected))
	for n := range selected {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Sweeper) remove(ctx context.Context, paths []string, res *Result) {
	var mu sync.Mutex
	record := func(path string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Failures = append(res.Failures, Failure{Path: path, Err: err})
			return
		}
		res.Deleted++
		res.Removed = append(res.Removed, path)
	}

	var wg sync.WaitGroup
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			record(path, err)
			continue
		}
		if s.pool == nil {
			record(path, s.unlink(path))
			continue
		}

		path := path
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			record(path, s.unlink(path))
		}); err != nil {
			wg.Done()
			s.log.Debugw("pool rejected deletion, removing inline", "path", path, "error", err)
			record(path, s.unlink(path))
		}
	}
	wg.Wait()

	sort.Strings(res.Removed)
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].Path < res.Failures[j].Path })
}
