// Package sweeper implements the trackinglog command: it prepares the task
// directories, opens a cache log and keeps the cache directory within its
// retention limits.
package sweeper

import (
	"context"
	"fmt"

	kartlog "github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/kart-io/trackinglog/pkg/config"
	"github.com/kart-io/trackinglog/pkg/errors"
	"github.com/kart-io/trackinglog/pkg/instrument"
	"github.com/kart-io/trackinglog/pkg/logmanager"
	"github.com/kart-io/trackinglog/pkg/options/logger"
	"github.com/kart-io/trackinglog/pkg/pool"
	"github.com/kart-io/trackinglog/pkg/sweep"
	"github.com/kart-io/trackinglog/pkg/tracing"
)

const tracerName = "github.com/kart-io/trackinglog/internal/sweeper"

// Service runs sweeps of the cache directory.
type Service struct {
	opts *Options
	v    *viper.Viper
	base core.Logger
	log  core.Logger
}

// New creates a service. v is the loaded configuration and may be nil; when
// it has read a config file, retention limits and the sink level follow
// changes to that file.
func New(opts *Options, v *viper.Viper) *Service {
	base := kartlog.Global()
	return &Service{
		opts: opts,
		v:    v,
		base: base,
		log:  base.With("component", "sweeper"),
	}
}

func (s *Service) named(component string) core.Logger {
	return s.base.With("component", component)
}

// Run sweeps once, or every Sweep.Interval until ctx is done.
func (s *Service) Run(ctx context.Context) (err error) {
	if err := s.opts.EnsureDirs(); err != nil {
		return err
	}

	tp, err := tracing.NewProvider(ctx, s.opts.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, tp.Shutdown(context.WithoutCancel(ctx)))
	}()

	p, err := pool.New("sweep", pool.BackgroundPool, pool.BackgroundPoolConfig())
	if err != nil {
		return err
	}
	defer p.Release()

	sw := sweep.New(sweep.WithPool(p), sweep.WithLogger(s.named("sweep")))

	ro := []logmanager.RegistryOption{
		logmanager.WithSweeper(sw),
		logmanager.WithLogger(s.named("logmanager")),
	}
	if s.opts.Sweep.Notify {
		ro = append(ro, logmanager.WithNotifier(NewOutbox(s.opts.Email)))
	}
	reg, err := logmanager.Init(s.opts.Log, ro...)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, reg.Shutdown())
	}()

	sink, err := reg.CacheSink(ctx, s.opts.Sweep.Sink)
	if err != nil {
		return err
	}
	s.log.Infow("cache log opened", "path", sink.Path())

	settings := reg.Settings()
	policy := sweep.NewReloadablePolicy(sweep.PolicyFrom(settings))
	eng := instrument.New(sink,
		instrument.FromSettings(settings),
		instrument.WithTracer(tp.Tracer(tracerName)),
		instrument.WithLogger(s.named("instrument")),
	)

	if w := s.watch(policy, sink, settings); w != nil {
		defer w.Stop()
	}

	dir := settings.CachePath
	if s.opts.Sweep.Interval == 0 {
		sweepOnce := instrument.Wrap(eng, "sweep", func(ctx context.Context, dir string) (*sweep.Result, error) {
			res, err := sw.Sweep(ctx, dir, policy.Get())
			s.report(ctx, sink, dir, res, err)
			return res, err
		})
		_, err = sweepOnce(ctx, dir)
		return err
	}

	s.log.Infow("sweeping periodically", "dir", dir, "interval", s.opts.Sweep.Interval)
	return eng.Run(ctx, "sweep-loop", func(ctx context.Context) error {
		return sw.Run(ctx, dir, policy, s.opts.Sweep.Interval, func(res *sweep.Result, err error) {
			s.report(ctx, sink, dir, res, err)
		})
	})
}

// watch subscribes the retention policy and the sink level to config file
// changes. It returns nil when no config file was read.
func (s *Service) watch(policy *sweep.ReloadablePolicy, sink *logmanager.Sink, settings *logger.Options) *config.Watcher {
	if s.v == nil || s.v.ConfigFileUsed() == "" {
		return nil
	}

	w := config.NewWatcher(s.v, s.named("config"))
	w.Subscribe("log.cache", config.NewReloadableSubscriber(policy, "log", func() interface{} {
		return settings.Clone()
	}).Handler())
	w.Subscribe("log.level", config.NewReloadableSubscriber(&sinkLevel{sink: sink}, "log.level", func() interface{} {
		lvl := sink.Level().String()
		return &lvl
	}).Handler())
	w.Start()
	return w
}

// report writes the outcome of a sweep into the sink. Failures are also
// forwarded to the sink's notifier.
func (s *Service) report(ctx context.Context, sink *logmanager.Sink, dir string, res *sweep.Result, err error) {
	if res != nil {
		if werr := sink.Info("sweep", fmt.Sprintf("swept %s: scanned %d, deleted %d", dir, res.Scanned, res.Deleted)); werr != nil {
			s.log.Warnw("failed to log sweep result", "error", werr)
		}
	}
	if err == nil {
		return
	}
	s.log.Errorw("sweep failed", "dir", dir, "error", err)
	if nerr := sink.Notify(ctx, logmanager.ErrorLevel, "sweep", "sweep of", dir, "failed:", err); nerr != nil {
		s.log.Warnw("failed to notify sweep failure", "error", nerr)
	}
}

// sinkLevel applies a reloaded level threshold to a sink.
type sinkLevel struct {
	sink *logmanager.Sink
}

var _ config.Reloadable = (*sinkLevel)(nil)

// OnConfigChange implements config.Reloadable.
func (l *sinkLevel) OnConfigChange(newConfig interface{}) error {
	s, ok := newConfig.(*string)
	if !ok || s == nil {
		return errors.ErrInvalidConfig.WithMessagef("unexpected level config %T", newConfig)
	}
	lvl, err := logmanager.ParseLevel(*s)
	if err != nil {
		return err
	}
	l.sink.SetLevel(lvl)
	return nil
}
