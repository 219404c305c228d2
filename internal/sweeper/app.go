package sweeper

import (
	"context"

	"github.com/kart-io/trackinglog/pkg/app"
)

const (
	appName        = "trackinglog"
	appDescription = `trackinglog keeps the log cache of a task within its retention limits.

On start it:
  - creates the task root, log, cache and lock directories
  - opens a timestamped cache log the sweeper writes its activity to
  - deletes cache logs beyond the newest --log.cache-count-limit files
    and those older than --log.cache-day-limit days

Examples:
  # Sweep the cache of ./logs once
  trackinglog

  # Sweep every ten minutes until interrupted
  trackinglog --root-path=/var/lib/task --sweep.interval=10m

  # Use config file; limits and log level are reloaded when it changes
  trackinglog -c /etc/trackinglog/trackinglog.yaml

Configuration:
  Configuration can be provided via:
  - Command-line flags (highest priority)
  - Environment variables (prefix: TRACKINGLOG_)
  - Configuration file (YAML)
  - Default values (lowest priority)`
)

// NewApp creates the trackinglog application.
func NewApp() *app.App {
	opts := NewOptions()

	var a *app.App
	a = app.NewApp(
		app.WithName(appName),
		app.WithShortDescription("Log cache retention for tracked tasks"),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithEnvKeys("email.password"),
		app.WithRunFunc(func(ctx context.Context) error {
			app.Logger().Infow("starting", "options", opts.String(), "config", a.ConfigFileUsed())
			return New(opts, a.Viper()).Run(ctx)
		}),
	)
	return a
}
