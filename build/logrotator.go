package build

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"github.com/klauspost/compress/zstd"
)

const (
	// Gzip is the default compressor.
	Gzip = "gzip"

	// Zstd is a modern compressor that compresses better than Gzip, in less
	// time.
	Zstd = "zstd"
)

// logCompressors maps the identifier for each supported compression algorithm
// to the extension used for the compressed log files.
var logCompressors = map[string]string{
	Gzip: "gz",
	Zstd: "zst",
}

// SupportedLogCompressor returns whether or not logCompressor is a supported
// compression algorithm for log files.
func SupportedLogCompressor(logCompressor string) bool {
	_, ok := logCompressors[logCompressor]

	return ok
}

// RotatingLogWriter is a writer that persists log output to a size bounded
// set of rotated and compressed files.
type RotatingLogWriter struct {
	// pipe feeds the running rotator.
	pipe *io.PipeWriter

	rotator *rotator.Rotator
}

// NewRotatingLogWriter returns a writer that discards everything until
// InitLogRotator is called.
func NewRotatingLogWriter() *RotatingLogWriter {
	return &RotatingLogWriter{}
}

// newCompressor returns the rotator compressor named by compressor.
func newCompressor(compressor string) (rotator.Compressor, error) {
	switch compressor {
	case Gzip:
		return gzip.NewWriter(nil), nil

	case Zstd:
		return zstd.NewWriter(nil)

	default:
		return nil, fmt.Errorf("unknown log compressor: %v", compressor)
	}
}

// InitLogRotator starts writing to logFile, rolling it over into compressed
// files in the same directory. Close must be called on shutdown.
func (r *RotatingLogWriter) InitLogRotator(cfg *FileLoggerConfig,
	logFile string) error {

	compressor, err := newCompressor(cfg.Compressor)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	// The rotator takes the size limit in KB.
	maxSize := int64(cfg.MaxLogFileSize) * 1024
	rot, err := rotator.New(logFile, maxSize, false, cfg.MaxLogFiles)
	if err != nil {
		return fmt.Errorf("creating log rotator: %w", err)
	}
	rot.SetCompressor(compressor, logCompressors[cfg.Compressor])

	// Rotation failures at runtime, such as a full disk, can only be
	// reported on stderr.
	pr, pw := io.Pipe()
	go func() {
		if err := rot.Run(pr); err != nil {
			fmt.Fprintf(os.Stderr, "log rotator stopped: %v\n", err)
		}
	}()

	r.rotator = rot
	r.pipe = pw

	return nil
}

// Write writes the byte slice to the log rotator, if present.
func (r *RotatingLogWriter) Write(b []byte) (int, error) {
	if r.pipe != nil {
		return r.pipe.Write(b)
	}

	return len(b), nil
}

// Close closes the underlying log rotator if it has already been created.
func (r *RotatingLogWriter) Close() error {
	if r.pipe != nil {
		_ = r.pipe.Close()
	}
	if r.rotator != nil {
		return r.rotator.Close()
	}

	return nil
}
