package build

import (
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btclog/v2"
)

// LogType is an indicating the type of logging specified by the build flag.
type LogType byte

const (
	// LogTypeNone indicates no logging.
	LogTypeNone LogType = iota

	// LogTypeStdOut all logging is written directly to stdout.
	LogTypeStdOut

	// LogTypeDefault logs to both stdout and the rotating log file.
	LogTypeDefault
)

// String returns a human readable identifier for the logging type.
func (t LogType) String() string {
	switch t {
	case LogTypeNone:
		return "none"
	case LogTypeStdOut:
		return "stdout"
	case LogTypeDefault:
		return "default"
	default:
		return "unknown"
	}
}

// NewSubLogger constructs a new subsystem log from the current deployment.
// Production builds always defer to genSubLogger. Development builds that log
// to stdout (unit tests) get a standalone stdout backed logger so that package
// level loggers work before the daemon has set up its log rotator.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	switch Deployment {

	// For production builds, generate a new subsystem logger from the
	// primary log backend. If no function is provided, logging will be
	// disabled.
	case Production:
		if genSubLogger != nil {
			return genSubLogger(subsystem)
		}

	// For development builds, we must handle two distinct types of logging:
	// unit tests and running the live emulator.
	case Development:
		switch LoggingType {
		case LogTypeDefault:
			if genSubLogger != nil {
				return genSubLogger(subsystem)
			}

		// Logging to stdout is used in unit tests. It is not important
		// that they share the same backend, since all output is written
		// to std out.
		case LogTypeStdOut:
			handler := btclog.NewDefaultHandler(os.Stdout)
			logger := btclog.NewSLogger(handler.SubSystem(subsystem))

			level, _ := btclog.LevelFromString(LogLevel)
			logger.SetLevel(level)

			return logger
		}
	}

	// For any other configurations, we'll disable logging.
	return btclog.Disabled
}

// SubLoggers maps subsystem tags to their loggers.
type SubLoggers map[string]btclog.Logger

// LeveledSubLogger is a set of subsystem loggers whose levels can be changed
// together or one by one.
type LeveledSubLogger interface {
	// SubLoggers returns every registered subsystem logger.
	SubLoggers() SubLoggers

	// SupportedSubsystems returns the sorted subsystem tags.
	SupportedSubsystems() []string

	// SetLogLevel sets the level of a single subsystem.
	SetLogLevel(subsystemID string, logLevel string)

	// SetLogLevels sets the level of every subsystem.
	SetLogLevels(logLevel string)
}

// ParseAndSetDebugLevels applies a debug level string of the form
// [<global-level>,]<subsystem>=<level>,... to logger. Nothing is changed if
// any part of the string is invalid.
func ParseAndSetDebugLevels(level string, logger LeveledSubLogger) error {
	if level == "" {
		return fmt.Errorf("empty debug level")
	}

	var (
		global    string
		overrides = make(map[string]string)
	)
	for i, part := range strings.Split(level, ",") {
		subsystem, subLevel, isPair := strings.Cut(part, "=")

		switch {
		// Only the first entry may be a bare level.
		case !isPair && i == 0:
			if !validLogLevel(part) {
				return fmt.Errorf("invalid debug level %q", part)
			}
			global = part

		case !isPair:
			return fmt.Errorf("invalid subsystem/level pair %q, "+
				"use subsystem1=level1,subsystem2=level2", part)

		case strings.Contains(subLevel, "="):
			return fmt.Errorf("invalid subsystem/level pair %q",
				part)

		default:
			if _, ok := logger.SubLoggers()[subsystem]; !ok {
				return fmt.Errorf("unknown subsystem %q, "+
					"supported subsystems are %v", subsystem,
					logger.SupportedSubsystems())
			}
			if !validLogLevel(subLevel) {
				return fmt.Errorf("invalid debug level %q for "+
					"%v", subLevel, subsystem)
			}
			overrides[subsystem] = subLevel
		}
	}

	if global != "" {
		logger.SetLogLevels(global)
	}
	for subsystem, subLevel := range overrides {
		logger.SetLogLevel(subsystem, subLevel)
	}

	return nil
}

// validLogLevel reports whether logLevel names a btclog level.
func validLogLevel(logLevel string) bool {
	_, ok := btclog.LevelFromString(logLevel)
	return ok
}
