package build

import (
	"io"
	"os"

	"github.com/btcsuite/btclog/v2"
)

// NewDefaultLogHandler returns the log handler that all subsystem loggers of
// the emulator are derived from. Console output goes to stderr, which leaves
// stdout to the device frames. File output goes to the rotating log writer.
// Either can be disabled through the config. When both are active, the
// console options take precedence.
func NewDefaultLogHandler(cfg *LogConfig,
	rotator *RotatingLogWriter) btclog.Handler {

	var (
		writers []io.Writer
		opts    []btclog.HandlerOption
	)
	if !cfg.File.Disable && rotator != nil {
		writers = append(writers, rotator)
		opts = cfg.File.HandlerOptions()
	}
	if !cfg.Console.Disable {
		writers = append(writers, os.Stderr)
		opts = cfg.Console.HandlerOptions()
	}

	if len(writers) == 0 {
		return btclog.NewDefaultHandler(io.Discard)
	}

	return btclog.NewDefaultHandler(io.MultiWriter(writers...), opts...)
}
