package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skyhw/signcore"
	"github.com/skyhw/signcore/build"
	"github.com/skyhw/signcore/device"
	"github.com/skyhw/signcore/storage"
	"github.com/urfave/cli"
)

var defaultDataDir = filepath.Join(signcore.DefaultHomeDir, "data")

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[hwcli] %v\n", err)
	os.Exit(1)
}

// withDevice opens the device storage named by the global flags, runs f
// against an in-process device and closes the storage again.
func withDevice(ctx *cli.Context,
	f func(context.Context, *device.Device) error) error {

	dataDir := signcore.CleanAndExpandPath(ctx.GlobalString("datadir"))
	store, err := storage.Open(dataDir)
	if err != nil {
		return fmt.Errorf("unable to open device storage: %w", err)
	}
	defer store.Close()

	dev := device.New(device.Config{
		Store:           store,
		UI:              newTerminalUI(os.Stdin, os.Stdout),
		EntropyRequired: ctx.GlobalBool("entropy-required"),
	})

	return f(context.Background(), dev)
}

// actionDecorator wraps a device command as a cli action.
func actionDecorator(f func(*cli.Context, context.Context,
	*device.Device) error) func(*cli.Context) error {

	return func(c *cli.Context) error {
		return withDevice(c, func(ctx context.Context,
			dev *device.Device) error {

			return f(c, ctx, dev)
		})
	}
}

func main() {
	app := cli.NewApp()
	app.Name = "hwcli"
	app.Version = build.Version() + " commit=" + build.Commit
	app.Usage = "drive the signing device against its local storage"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "datadir",
			Value: defaultDataDir,
			Usage: "The directory holding the device storage.",
		},
		cli.BoolFlag{
			Name: "entropy-required",
			Usage: "Ask for external entropy before generating " +
				"a mnemonic.",
		},
	}
	app.Commands = []cli.Command{
		featuresCommand,
		generateMnemonicCommand,
		setMnemonicCommand,
		loadDeviceCommand,
		resetDeviceCommand,
		recoveryCommand,
		backupCommand,
		getAddressCommand,
		signMessageCommand,
		checkSignatureCommand,
		signTxCommand,
		transactionSignCommand,
		getEntropyCommand,
		changePinCommand,
		applySettingsCommand,
		wipeCommand,
		pingCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
