package signcore

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/skyhw/signcore/build"
	"github.com/skyhw/signcore/dispatch"
	"github.com/skyhw/signcore/keychain"
	"github.com/skyhw/signcore/signal"
)

const (
	defaultConfigFilename = "signcore.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "signcore.log"
	defaultLogLevel       = "info"

	// defaultCoinType is the unhardened SLIP-44 coin type of Skycoin.
	defaultCoinType = keychain.CoinTypeSkycoin - keychain.HardenedKeyStart

	// minAutoLock is the shortest accepted auto-lock interval.
	minAutoLock = time.Second
)

var (
	// DefaultHomeDir is the default home directory of the emulator.
	DefaultHomeDir = appDataDir("signcore")

	// DefaultConfigFile is the default full path of the config file.
	DefaultConfigFile = filepath.Join(DefaultHomeDir, defaultConfigFilename)

	defaultDataDir = filepath.Join(DefaultHomeDir, defaultDataDirname)
	defaultLogDir  = filepath.Join(DefaultHomeDir, defaultLogDirname)
)

// appDataDir returns the per user application directory.
func appDataDir(appName string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "." + appName
	}

	return filepath.Join(dir, appName)
}

// EmulatorConfig holds the emulator specific options.
//
//nolint:lll
type EmulatorConfig struct {
	EntropyRequired bool `long:"entropy-required" description:"Ask the host for external entropy before generating a mnemonic."`
	RejectButtons   bool `long:"reject-buttons" description:"Reject every button request instead of accepting it."`
}

// Config defines the configuration options for the emulator daemon.
//
// See LoadConfig for further details regarding the configuration loading and
// parsing process.
//
//nolint:lll
type Config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	HomeDir    string `long:"homedir" description:"The base directory that contains the emulator's data, logs and configuration file."`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"The directory to store the device storage within"`
	LogDir     string `long:"logdir" description:"Directory to log output."`

	MaxLogFiles    int `long:"max-log-files" description:"Maximum logfiles to keep (0 for no rotation). Overrides --logging.file.max-files when set."`
	MaxLogFileSize int `long:"max-log-file-size" description:"Maximum logfile size in MB. Overrides --logging.file.max-file-size when set."`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <global-level>,<subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	AutoLock time.Duration `long:"autolock" description:"Clear the cached PIN and passphrase after this long without host messages. 0 disables auto-lock."`

	CoinType uint32 `long:"coin-type" description:"The SLIP-44 coin type used for derivation. Only Skycoin (8000) is supported."`

	Emulator *EmulatorConfig `group:"emulator" namespace:"emulator"`

	LogConfig *build.LogConfig `group:"logging" namespace:"logging"`

	// SubLogMgr is the root logger that all the daemon's subloggers are
	// hooked up to.
	SubLogMgr *build.SubLoggerManager

	// LogRotator is the file writer of the logs. It must be closed on
	// shutdown.
	LogRotator *build.RotatingLogWriter
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		HomeDir:    DefaultHomeDir,
		ConfigFile: DefaultConfigFile,
		DataDir:    defaultDataDir,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		AutoLock:   dispatch.DefaultAutoLock,
		CoinType:   defaultCoinType,
		Emulator:   &EmulatorConfig{},
		LogConfig:  build.DefaultLogConfig(),
		LogRotator: build.NewRotatingLogWriter(),
	}
}

// LoadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig(interceptor *signal.Interceptor) (*Config, error) {
	// Pre-parse the command line options to pick up an alternative config
	// file.
	preCfg := DefaultConfig()
	if _, err := flags.Parse(&preCfg); err != nil {
		return nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", build.Version(),
			"commit="+build.Commit)
		os.Exit(0)
	}

	// If the home directory was changed but the config file was not, the
	// config file inside the new home directory is used.
	configFileDir := CleanAndExpandPath(preCfg.HomeDir)
	configFilePath := CleanAndExpandPath(preCfg.ConfigFile)
	if configFileDir != DefaultHomeDir &&
		configFilePath == DefaultConfigFile {

		configFilePath = filepath.Join(
			configFileDir, defaultConfigFilename,
		)
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := preCfg
	if err := flags.IniParse(configFilePath, &cfg); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		var iniErr *flags.IniError
		if errors.As(err, &iniErr) {
			return nil, err
		}

		configFileError = err
	}

	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	if _, err := flags.Parse(&cfg); err != nil {
		return nil, err
	}

	// Make sure everything we just loaded makes sense.
	cleanCfg, err := ValidateConfig(cfg, usageMessage, interceptor)
	if err != nil {
		return nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done.
	if configFileError != nil {
		scorLog.Warnf("%v", configFileError)
	}

	return cleanCfg, nil
}

// ValidateConfig checks the given configuration to be sane. All file system
// paths are normalized and the directories are created. The cleaned up config
// is returned on success.
func ValidateConfig(cfg Config, usageMessage string,
	interceptor *signal.Interceptor) (*Config, error) {

	// If the home directory is not the default, the data and log
	// directories move with it.
	homeDir := CleanAndExpandPath(cfg.HomeDir)
	if homeDir != DefaultHomeDir {
		if cfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(homeDir, defaultDataDirname)
		}
		if cfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(homeDir, defaultLogDirname)
		}
	}

	cfg.HomeDir = homeDir
	cfg.DataDir = CleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = CleanAndExpandPath(cfg.LogDir)

	for _, dir := range []string{cfg.HomeDir, cfg.DataDir, cfg.LogDir} {
		if err := makeDirectory(dir); err != nil {
			return nil, err
		}
	}

	if cfg.CoinType != defaultCoinType {
		return nil, mkErr("unsupported coin type %d, only %d is "+
			"supported", cfg.CoinType, defaultCoinType)
	}

	switch {
	case cfg.AutoLock < 0:
		return nil, mkErr("autolock must not be negative")

	case cfg.AutoLock > 0 && cfg.AutoLock < minAutoLock:
		return nil, mkErr("autolock must be at least %v", minAutoLock)
	}

	// The deprecated top level options override the file logger when
	// they were changed.
	if cfg.MaxLogFiles != 0 {
		cfg.LogConfig.File.MaxLogFiles = cfg.MaxLogFiles
	}
	if cfg.MaxLogFileSize != 0 {
		cfg.LogConfig.File.MaxLogFileSize = cfg.MaxLogFileSize
	}
	if err := cfg.LogConfig.Validate(); err != nil {
		return nil, mkErr("error validating logging config: %w", err)
	}

	cfg.SubLogMgr = build.NewSubLoggerManager(build.NewDefaultLogHandler(
		cfg.LogConfig, cfg.LogRotator,
	))

	// Initialize logging at the default logging level.
	SetupLoggers(cfg.SubLogMgr, interceptor)

	if !cfg.LogConfig.File.Disable {
		err := cfg.LogRotator.InitLogRotator(
			cfg.LogConfig.File,
			filepath.Join(cfg.LogDir, defaultLogFilename),
		)
		if err != nil {
			return nil, mkErr("log rotation setup failed: %w", err)
		}
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems",
			cfg.SubLogMgr.SupportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	err := build.ParseAndSetDebugLevels(cfg.DebugLevel, cfg.SubLogMgr)
	if err != nil {
		str := "error parsing debug level: %v"
		return nil, &usageError{mkErr(str, err), usageMessage}
	}

	return &cfg, nil
}

// usageError is an error that carries the usage hint of the binary.
type usageError struct {
	err     error
	message string
}

// Error returns the error followed by the usage hint.
func (u *usageError) Error() string {
	return fmt.Sprintf("%v\n%s", u.err, u.message)
}

// Unwrap returns the wrapped error.
func (u *usageError) Unwrap() error {
	return u.err
}

// mkErr creates a configuration error.
func mkErr(format string, args ...interface{}) error {
	return fmt.Errorf("config: "+format, args...)
}

// makeDirectory creates dir and its parents.
func makeDirectory(dir string) error {
	err := os.MkdirAll(dir, 0700)
	if err == nil {
		return nil
	}

	// Show a nicer error message if it's because a symlink is linked to a
	// directory that does not exist (probably because it's not mounted).
	var pathErr *os.PathError
	if errors.As(err, &pathErr) && os.IsExist(err) {
		link, lerr := os.Readlink(pathErr.Path)
		if lerr == nil {
			err = fmt.Errorf("is symlink %s -> %s mounted?",
				pathErr.Path, link)
		}
	}

	return mkErr("failed to create directory: %w", err)
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}
