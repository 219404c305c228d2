package sweeper

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/kart-io/trackinglog/pkg/errors"
	"github.com/kart-io/trackinglog/pkg/options/task"
	tracingopts "github.com/kart-io/trackinglog/pkg/options/tracing"
)

// DefaultSinkName is the name of the cache sink the sweeper logs into.
const DefaultSinkName = "sweeper"

// SweepOptions configures the sweep loop.
type SweepOptions struct {
	// Interval between sweeps. Zero sweeps once and exits.
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	// Sink is the name of the cache sink activity is logged into.
	Sink string `json:"sink" mapstructure:"sink"`
	// Notify forwards sweep failures to the notification outbox.
	Notify bool `json:"notify" mapstructure:"notify"`
}

// Options is the configuration of the trackinglog command.
type Options struct {
	task.Options `mapstructure:",squash"`

	Sweep SweepOptions `json:"sweep" mapstructure:"sweep"`

	Tracing *tracingopts.Options `json:"tracing" mapstructure:"tracing"`
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		Options: *task.NewOptions(),
		Sweep: SweepOptions{
			Sink:   DefaultSinkName,
			Notify: true,
		},
		Tracing: tracingopts.NewOptions(),
	}
}

// AddFlags adds the task and sweep flags to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.Options.AddFlags(fs)
	fs.DurationVar(&o.Sweep.Interval, "sweep.interval", o.Sweep.Interval, "Interval between cache sweeps; 0 sweeps once and exits.")
	fs.StringVar(&o.Sweep.Sink, "sweep.sink", o.Sweep.Sink, "Name of the cache log the sweeper writes its activity to.")
	fs.BoolVar(&o.Sweep.Notify, "sweep.notify", o.Sweep.Notify, "Store a notification in the email folder when a sweep fails.")
	o.Tracing.AddFlags(fs)
}

// Complete fills derived defaults.
func (o *Options) Complete() error {
	if o.Sweep.Sink == "" {
		o.Sweep.Sink = DefaultSinkName
	}
	if o.Tracing == nil {
		o.Tracing = tracingopts.NewOptions()
	}
	if err := o.Tracing.Complete(); err != nil {
		return err
	}
	return o.Options.Complete()
}

// Validate validates the options.
func (o *Options) Validate() error {
	err := o.Options.Validate()
	if o.Sweep.Interval < 0 {
		err = multierr.Append(err, errors.ErrInvalidConfig.WithMessagef("sweep interval must not be negative, got %s", o.Sweep.Interval))
	}
	err = multierr.Append(err, multierr.Combine(o.Tracing.Validate()...))
	return err
}

// String returns a string representation with secrets redacted.
func (o *Options) String() string {
	return fmt.Sprintf("%s, Sweep{interval=%s, sink=%s, notify=%t}, %s",
		o.Options.String(), o.Sweep.Interval, o.Sweep.Sink, o.Sweep.Notify, o.Tracing)
}
