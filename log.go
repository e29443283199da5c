package signcore

import (
	"github.com/btcsuite/btclog/v2"
	"github.com/skyhw/signcore/build"
	"github.com/skyhw/signcore/device"
	"github.com/skyhw/signcore/dispatch"
	"github.com/skyhw/signcore/hdnode"
	"github.com/skyhw/signcore/hwwire"
	"github.com/skyhw/signcore/keychain"
	"github.com/skyhw/signcore/protect"
	"github.com/skyhw/signcore/signal"
	"github.com/skyhw/signcore/storage"
	"github.com/skyhw/signcore/txsign"
)

// scorLog is the logger of the daemon itself. It is replaced once
// SetupLoggers runs.
var scorLog = build.NewSubLogger("SCOR", nil)

// genSubLogger creates a logger for a subsystem. We provide an instance of
// a signal.Interceptor to be able to shutdown in case of a critical error.
func genSubLogger(root *build.SubLoggerManager,
	interceptor *signal.Interceptor) func(string) btclog.Logger {

	// Create a shutdown function which will request shutdown from our
	// interceptor if it is listening.
	shutdown := func() {
		if interceptor == nil || !interceptor.Alive() {
			return
		}

		interceptor.RequestShutdown()
	}

	// Return a function which will create a sublogger from our root
	// logger without shutdown fn.
	return func(tag string) btclog.Logger {
		return root.GenSubLogger(tag, shutdown)
	}
}

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(root *build.SubLoggerManager,
	interceptor *signal.Interceptor) {

	genLogger := genSubLogger(root, interceptor)

	scorLog = build.NewSubLogger("SCOR", genLogger)
	SetSubLogger(root, "SCOR", scorLog)

	AddSubLogger(root, hdnode.Subsystem, interceptor, hdnode.UseLogger)
	AddSubLogger(root, keychain.Subsystem, interceptor, keychain.UseLogger)
	AddSubLogger(root, storage.Subsystem, interceptor, storage.UseLogger)
	AddSubLogger(root, protect.Subsystem, interceptor, protect.UseLogger)
	AddSubLogger(root, txsign.Subsystem, interceptor, txsign.UseLogger)
	AddSubLogger(root, device.Subsystem, interceptor, device.UseLogger)
	AddSubLogger(root, hwwire.Subsystem, interceptor, hwwire.UseLogger)
	AddSubLogger(root, dispatch.Subsystem, interceptor, dispatch.UseLogger)
	AddSubLogger(root, signal.Subsystem, interceptor, signal.UseLogger)
}

// AddSubLogger is a helper method to conveniently create and register the
// logger of one or more sub systems.
func AddSubLogger(root *build.SubLoggerManager, subsystem string,
	interceptor *signal.Interceptor, useLoggers ...func(btclog.Logger)) {

	// genSubLogger will return a callback for creating a logger instance,
	// which we will give to the root logger.
	genLogger := genSubLogger(root, interceptor)

	// Create and register just a single logger to prevent them from
	// overwriting each other internally.
	logger := build.NewSubLogger(subsystem, genLogger)
	SetSubLogger(root, subsystem, logger, useLoggers...)
}

// SetSubLogger is a helper method to conveniently register the logger of a
// sub system.
func SetSubLogger(root *build.SubLoggerManager, subsystem string,
	logger btclog.Logger, useLoggers ...func(btclog.Logger)) {

	root.RegisterSubLogger(subsystem, logger)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}
