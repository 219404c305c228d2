// Package task aggregates the options of one tracked task: its root
// directory and the log, email and lock settings derived from it.
package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/kart-io/trackinglog/pkg/errors"
	emailopts "github.com/kart-io/trackinglog/pkg/options/email"
	lockopts "github.com/kart-io/trackinglog/pkg/options/lock"
	logopts "github.com/kart-io/trackinglog/pkg/options/logger"
)

// Options contains all task options.
type Options struct {
	// RootPath is the task directory every default path is derived from.
	RootPath string `json:"root-path" mapstructure:"root-path"`

	// Log contains sink and cache settings.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Email contains the notification credential.
	Email *emailopts.Options `json:"email" mapstructure:"email"`

	// Lock contains lock-file settings.
	Lock *lockopts.Options `json:"lock" mapstructure:"lock"`
}

// NewOptions creates new Options with defaults.
// Sub-option paths are left empty so Complete derives them from RootPath.
func NewOptions() *Options {
	log := logopts.NewOptions()
	log.RootPath = ""
	return &Options{
		RootPath: "logs",
		Log:      log,
		Email:    emailopts.NewOptions(),
		Lock:     lockopts.NewOptions(),
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.RootPath, "root-path", o.RootPath, "Task root directory; log, email and lock paths default beneath it.")
	o.Log.AddFlags(fs)
	o.Email.AddFlags(fs)
	o.Lock.AddFlags(fs)
}

// Complete fills every empty path with its default under RootPath.
func (o *Options) Complete() error {
	if o.Log == nil {
		o.Log = logopts.NewOptions()
		o.Log.RootPath = ""
	}
	if o.Email == nil {
		o.Email = emailopts.NewOptions()
	}
	if o.Lock == nil {
		o.Lock = lockopts.NewOptions()
	}

	if o.Log.RootPath == "" {
		o.Log.RootPath = filepath.Join(o.RootPath, "logs")
	}
	if o.Email.RootFolder == "" {
		o.Email.RootFolder = filepath.Join(o.RootPath, emailopts.DefaultFolder)
	}
	if o.Lock.FolderPath == "" {
		o.Lock.FolderPath = filepath.Join(o.RootPath, lockopts.DefaultFolder)
	}
	return o.Log.Complete()
}

// Validate validates the options.
func (o *Options) Validate() error {
	var err error
	if strings.TrimSpace(o.RootPath) == "" {
		err = multierr.Append(err, errors.ErrInvalidRootPath.WithMessage("task root path must be set"))
	}
	err = multierr.Append(err, multierr.Combine(o.Log.Validate()...))
	err = multierr.Append(err, multierr.Combine(o.Email.Validate()...))
	err = multierr.Append(err, multierr.Combine(o.Lock.Validate()...))
	return err
}

// EnsureDirs creates the task root, the log directories and the lock folder.
func (o *Options) EnsureDirs() error {
	if strings.TrimSpace(o.RootPath) == "" {
		return errors.ErrInvalidRootPath.WithMessage("task root path must be set")
	}
	if err := os.MkdirAll(o.RootPath, 0o755); err != nil {
		return errors.ErrInvalidRootPath.WithMessagef("cannot create %s", o.RootPath).WithCause(err)
	}
	if err := o.Log.EnsureDirs(); err != nil {
		return err
	}
	if err := os.MkdirAll(o.Lock.FolderPath, 0o755); err != nil {
		return errors.ErrInvalidConfig.WithMessagef("cannot create lock folder %s", o.Lock.FolderPath).WithCause(err)
	}
	return nil
}

// String returns a string representation with secrets redacted.
func (o *Options) String() string {
	return fmt.Sprintf("Task{root=%s, %s, %s, lock=%s}", o.RootPath, o.Log, o.Email, o.Lock.FolderPath)
}
