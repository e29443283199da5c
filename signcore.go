package signcore

import (
	"context"
	"fmt"
	"io"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/skyhw/signcore/build"
	"github.com/skyhw/signcore/dispatch"
	"github.com/skyhw/signcore/protect"
	"github.com/skyhw/signcore/signal"
	"github.com/skyhw/signcore/storage"
)

// Main is the true entry point of the emulator daemon. It serves the device
// over in and out until the host closes in or a shutdown is requested through
// the interceptor.
func Main(cfg *Config, interceptor *signal.Interceptor, in io.Reader,
	out io.Writer) error {

	scorLog.Infof("Version: %s commit=%s, build=%v, logging=%v, "+
		"debuglevel=%s", build.Version(), build.Commit,
		build.Deployment, build.LoggingType, cfg.DebugLevel)

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("unable to open device storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			scorLog.Errorf("Unable to close device storage: %v", err)
		}
	}()

	srvCfg := dispatch.Config{
		In:              in,
		Out:             out,
		Store:           store,
		Clock:           clock.NewDefaultClock(),
		EntropyRequired: cfg.Emulator.EntropyRequired,
		Emulator:        true,
	}
	if cfg.AutoLock > 0 {
		srvCfg.AutoLock = ticker.New(cfg.AutoLock)
	}
	if cfg.Emulator.RejectButtons {
		srvCfg.Buttons = func(protect.ButtonKind, []string) bool {
			return false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-interceptor.ShutdownChannel():
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := dispatch.New(srvCfg).Run(ctx); err != nil {
		scorLog.Errorf("Device server stopped: %v", err)
		return err
	}

	scorLog.Infof("Shutdown complete")

	return nil
}
