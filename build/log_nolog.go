//go:build nolog

package build

// LoggingType is a log type that discards all log output.
const LoggingType = LogTypeNone
