package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/skyhw/signcore/device"
	"github.com/urfave/cli"
)

// optString returns the named flag if it was given.
func optString(ctx *cli.Context, name string) fn.Option[string] {
	if !ctx.IsSet(name) {
		return fn.None[string]()
	}

	return fn.Some(ctx.String(name))
}

var labelFlag = cli.StringFlag{
	Name:  "label",
	Usage: "the device label",
}

var loadDeviceCommand = cli.Command{
	Name:      "load-device",
	Category:  "Seed",
	Usage:     "Load a mnemonic together with a PIN and a label.",
	ArgsUsage: "\"mnemonic words\"",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "pin",
			Usage: "the PIN to store with the mnemonic",
		},
		cli.BoolFlag{
			Name:  "passphrase-protection",
			Usage: "protect the seed with a passphrase",
		},
		cli.BoolFlag{
			Name:  "skip-checksum",
			Usage: "store the mnemonic even if its checksum is wrong",
		},
		labelFlag,
	},
	Action: actionDecorator(func(ctx *cli.Context, c context.Context,
		dev *device.Device) error {

		if !ctx.Args().Present() {
			return errMissingMnemonic
		}

		err := dev.LoadDevice(c, device.LoadRequest{
			Mnemonic:             ctx.Args().First(),
			SkipChecksum:         ctx.Bool("skip-checksum"),
			Pin:                  optString(ctx, "pin"),
			PassphraseProtection: ctx.Bool("passphrase-protection"),
			Label:                optString(ctx, "label"),
		})
		if err != nil {
			return err
		}
		fmt.Println("Device loaded")

		return nil
	}),
}

var resetDeviceCommand = cli.Command{
	Name:     "reset-device",
	Category: "Seed",
	Usage:    "Generate a new seed, set it up and back it up.",
	Flags: []cli.Flag{
		cli.UintFlag{
			Name:  "strength",
			Value: device.DefaultResetStrength,
			Usage: "the seed strength in bits, 128, 192 or 256",
		},
		cli.BoolFlag{
			Name:  "display-random",
			Usage: "show the device randomness before using it",
		},
		cli.BoolFlag{
			Name:  "passphrase-protection",
			Usage: "protect the seed with a passphrase",
		},
		cli.BoolFlag{
			Name:  "pin-protection",
			Usage: "set a PIN before storing the seed",
		},
		cli.BoolFlag{
			Name:  "skip-backup",
			Usage: "do not show the words now",
		},
		cli.StringFlag{
			Name:  "entropy",
			Usage: "hex encoded external entropy to mix in",
		},
		labelFlag,
	},
	Action: actionDecorator(func(ctx *cli.Context, c context.Context,
		dev *device.Device) error {

		req := device.ResetRequest{
			Strength:             uint32(ctx.Uint("strength")),
			DisplayRandom:        ctx.Bool("display-random"),
			PassphraseProtection: ctx.Bool("passphrase-protection"),
			PinProtection:        ctx.Bool("pin-protection"),
			Label:                optString(ctx, "label"),
			SkipBackup:           ctx.Bool("skip-backup"),
		}
		err := retryWithEntropy(ctx, dev, func() error {
			return dev.ResetDevice(c, req)
		})
		if err != nil {
			return err
		}
		fmt.Println("Device successfully initialized")

		return nil
	}),
}

var recoveryCommand = cli.Command{
	Name:     "recover",
	Category: "Seed",
	Usage:    "Recover a seed by entering its words one at a time.",
	Flags: []cli.Flag{
		cli.UintFlag{
			Name:  "words",
			Value: 12,
			Usage: "the number of mnemonic words, 12 or 24",
		},
		cli.BoolFlag{
			Name:  "passphrase-protection",
			Usage: "protect the seed with a passphrase",
		},
		cli.BoolFlag{
			Name:  "pin-protection",
			Usage: "set a PIN before entering the words",
		},
		cli.BoolFlag{
			Name: "dry-run",
			Usage: "only check the words against the stored " +
				"mnemonic",
		},
		labelFlag,
	},
	Action: actionDecorator(func(ctx *cli.Context, c context.Context,
		dev *device.Device) error {

		dryRun := ctx.Bool("dry-run")
		err := dev.RecoveryDevice(c, device.RecoveryRequest{
			WordCount:            uint32(ctx.Uint("words")),
			PassphraseProtection: ctx.Bool("passphrase-protection"),
			PinProtection:        ctx.Bool("pin-protection"),
			Label:                optString(ctx, "label"),
			DryRun:               dryRun,
		})
		switch {
		case err != nil:
			return err

		case dryRun:
			fmt.Println("The seed is valid and matches the one in " +
				"the device")

		default:
			fmt.Println("Device recovered")
		}

		return nil
	}),
}

var getEntropyCommand = cli.Command{
	Name:     "get-entropy",
	Category: "Device",
	Usage:    "Print random bytes from the device.",
	Flags: []cli.Flag{
		cli.UintFlag{
			Name:  "size",
			Value: 32,
			Usage: "the number of bytes, at most 1024",
		},
		cli.BoolFlag{
			Name:  "mixed",
			Usage: "salt the bytes with the device entropy pool",
		},
	},
	Action: actionDecorator(func(ctx *cli.Context, c context.Context,
		dev *device.Device) error {

		get := dev.GetRawEntropy
		if ctx.Bool("mixed") {
			get = dev.GetMixedEntropy
		}

		b, err := get(c, uint32(ctx.Uint("size")))
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(b))

		return nil
	}),
}

// transactionSign signs every input in a single device call.
func transactionSign(c context.Context, dev *device.Device,
	b []byte) ([]signedInput, error) {

	_, inputs, outputs, err := parseTxFile(b)
	if err != nil {
		return nil, err
	}

	sigs, err := dev.TransactionSign(c, inputs, outputs)
	if err != nil {
		return nil, err
	}

	signed := make([]signedInput, 0, len(sigs))
	for i, sig := range sigs {
		signed = append(signed, signedInput{
			Index:     uint32(i),
			Signature: sig.Hex(),
		})
	}

	return signed, nil
}

var transactionSignCommand = cli.Command{
	Name:     "transaction-sign",
	Category: "Transactions",
	Usage:    "Sign a whole transaction in one request.",
	Description: `
	Like sign-tx, but the device receives every input and output at once.
	Every input must carry address_n.`,
	ArgsUsage: "tx.json",
	Action: actionDecorator(func(ctx *cli.Context, c context.Context,
		dev *device.Device) error {

		if !ctx.Args().Present() {
			return errMissingTxFile
		}
		b, err := os.ReadFile(ctx.Args().First())
		if err != nil {
			return err
		}

		signed, err := transactionSign(c, dev, b)
		if err != nil {
			return err
		}
		printJSON(struct {
			Signatures []signedInput `json:"signatures"`
		}{signed})

		return nil
	}),
}
