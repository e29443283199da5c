package signcore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// The config tests are not parallel since ValidateConfig installs the package
// loggers.
func testConfig(t *testing.T) Config {
	t.Helper()

	home := t.TempDir()

	cfg := DefaultConfig()
	cfg.HomeDir = home
	cfg.LogConfig.File.Disable = true

	return cfg
}

func TestValidateConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxLogFiles = 2

	clean, err := ValidateConfig(cfg, "usage", nil)
	require.NoError(t, err)

	require.Equal(t, filepath.Join(cfg.HomeDir, defaultDataDirname),
		clean.DataDir)
	require.Equal(t, filepath.Join(cfg.HomeDir, defaultLogDirname),
		clean.LogDir)
	require.DirExists(t, clean.DataDir)
	require.Equal(t, 2, clean.LogConfig.File.MaxLogFiles)
	require.NotNil(t, clean.SubLogMgr)
	require.Contains(t, clean.SubLogMgr.SupportedSubsystems(), "TXSG")
}

func TestValidateConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{
			name: "coin type",
			modify: func(c *Config) {
				c.CoinType = 0
			},
		},
		{
			name: "negative autolock",
			modify: func(c *Config) {
				c.AutoLock = -time.Second
			},
		},
		{
			name: "short autolock",
			modify: func(c *Config) {
				c.AutoLock = time.Millisecond
			},
		},
		{
			name: "debug level",
			modify: func(c *Config) {
				c.DebugLevel = "loud"
			},
		},
		{
			name: "compressor",
			modify: func(c *Config) {
				c.LogConfig.File.Compressor = "lz4"
			},
		},
		{
			name: "log file size",
			modify: func(c *Config) {
				c.MaxLogFileSize = -1
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := testConfig(t)
			test.modify(&cfg)

			_, err := ValidateConfig(cfg, "usage", nil)
			require.Error(t, err)
		})
	}
}

func TestCleanAndExpandPath(t *testing.T) {
	t.Setenv("SIGNCORE_TEST_DIR", "/tmp/signcore")

	require.Empty(t, CleanAndExpandPath(""))
	require.Equal(t, "/tmp/signcore/data",
		CleanAndExpandPath("$SIGNCORE_TEST_DIR/./data/"))
}
