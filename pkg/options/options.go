// Package options defines the generic options interface and common utilities.
//
// Each trackinglog settings group (log, lock, email, task, tracing) lives in
// its own subpackage and registers its flags under a dotted prefix built with
// Join, e.g. "log.cache-count-limit" or "lock.folder-path".
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// Join concatenates prefixes with "." separator.
// If the result is non-empty, it appends a trailing ".".
// This is used to build flag names like "log.root-path" or "task.log.root-path".
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}

// IOptions defines methods to implement a generic options.
type IOptions interface {
	// Validate validates all the required options.
	Validate() []error

	// AddFlags adds flags related to given flagset.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}
