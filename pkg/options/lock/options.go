// Package lock provides lock-file directory options.
package lock

import (
	"github.com/spf13/pflag"

	"github.com/kart-io/trackinglog/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// DefaultFolder is the directory name used for lock files under the task root.
const DefaultFolder = "locks"

// Options defines where lock files are created.
type Options struct {
	FolderPath string `json:"folder-path" mapstructure:"folder-path"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{}
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	return nil
}

// AddFlags adds flags for lock options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.FolderPath, options.Join(prefixes...)+"lock.folder-path", o.FolderPath, "Directory lock files are created in (default <root>/locks).")
}
