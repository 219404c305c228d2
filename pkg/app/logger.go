package app

import (
	"strings"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"github.com/kart-io/logger/option"
)

// Logger returns the global diagnostics logger.
func Logger() core.Logger {
	return logger.Global()
}

// newLogger builds the diagnostics logger written to stderr on the zap engine
// and installs it as the global logger. The returned func flushes it and
// restores the previous global.
func newLogger(level string) (func(), error) {
	l, err := logger.New(&option.LogOption{
		Engine:            "zap",
		Level:             strings.ToUpper(level),
		Format:            "console",
		OutputPaths:       []string{"stderr"},
		DisableStacktrace: true,
	})
	if err != nil {
		return nil, err
	}

	prev := logger.Global()
	logger.SetGlobal(l)
	return func() {
		_ = l.Flush()
		logger.SetGlobal(prev)
	}, nil
}
