package format

import "github.com/kart-io/trackinglog/pkg/errors"

const (
	// DefaultMaxRows is the number of table rows rendered before truncation.
	DefaultMaxRows = 10
	// DefaultMaxCols is the number of table columns rendered before truncation.
	DefaultMaxCols = 10
	// DefaultMaxColWidth is the display width a cell is truncated to.
	DefaultMaxColWidth = 35
)

// Options bounds the rendering of tabular values.
// A zero field selects its default.
type Options struct {
	MaxRows     int `json:"max-rows" mapstructure:"max-rows"`
	MaxCols     int `json:"max-cols" mapstructure:"max-cols"`
	MaxColWidth int `json:"max-col-width" mapstructure:"max-col-width"`
}

// DefaultOptions returns the default rendering bounds.
func DefaultOptions() Options {
	return Options{
		MaxRows:     DefaultMaxRows,
		MaxCols:     DefaultMaxCols,
		MaxColWidth: DefaultMaxColWidth,
	}
}

// Validate rejects negative limits.
func (o Options) Validate() error {
	if o.MaxRows < 0 || o.MaxCols < 0 || o.MaxColWidth < 0 {
		return errors.ErrInvalidFormatOptions.WithMessagef(
			"limits must not be negative: rows=%d cols=%d width=%d", o.MaxRows, o.MaxCols, o.MaxColWidth)
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.MaxRows == 0 {
		o.MaxRows = DefaultMaxRows
	}
	if o.MaxCols == 0 {
		o.MaxCols = DefaultMaxCols
	}
	if o.MaxColWidth == 0 {
		o.MaxColWidth = DefaultMaxColWidth
	}
	return o
}
