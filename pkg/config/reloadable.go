// Package config watches the configuration file and hands section updates to
// running components.
package config

// Reloadable is implemented by components that apply configuration changes
// without a restart.
type Reloadable interface {
	// OnConfigChange receives the freshly decoded configuration section.
	// Implementations validate it and apply it atomically, or return an error
	// and keep the previous configuration.
	OnConfigChange(newConfig interface{}) error
}
