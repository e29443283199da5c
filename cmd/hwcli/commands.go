package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/skyhw/signcore/device"
	"github.com/skyhw/signcore/txsign"
	"github.com/urfave/cli"
)

const defaultCoinName = "Skycoin"

var (
	errMissingMessage   = errors.New("message argument missing")
	errMissingAddress   = errors.New("address argument missing")
	errMissingSignature = errors.New("signature argument missing")
	errMissingMnemonic  = errors.New("mnemonic argument missing")
	errMissingTxFile    = errors.New("transaction file argument missing")
	errNoSettings       = errors.New("no setting to apply")
)

func printJSON(resp interface{}) {
	b, err := json.MarshalIndent(resp, "", "    ")
	if err != nil {
		fatal(err)
	}

	fmt.Fprintf(os.Stdout, "%s\n", b)
}

// argOrFlag returns the named flag, or the first positional argument when
// the flag is not set.
func argOrFlag(ctx *cli.Context, name string, missing error) (string,
	error) {

	switch {
	case ctx.IsSet(name):
		return ctx.String(name), nil

	case ctx.Args().Present():
		return ctx.Args().First(), nil

	default:
		return "", missing
	}
}

var featuresCommand = cli.Command{
	Name:     "features",
	Category: "Device",
	Usage:    "Show the device features.",
	Action: actionDecorator(func(_ *cli.Context, _ context.Context,
		dev *device.Device) error {

		features, err := dev.GetFeatures()
		if err != nil {
			return err
		}
		printJSON(features)

		return nil
	}),
}

var generateMnemonicCommand = cli.Command{
	Name:     "generate-mnemonic",
	Category: "Seed",
	Usage:    "Generate and store a new mnemonic.",
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
		cli.StringFlag{
			Name: "entropy",
			Usage: "hex encoded external entropy, used when the " +
				"device asks for it",
		},
	},
	Action: actionDecorator(generateMnemonic),
}

func generateMnemonic(ctx *cli.Context, c context.Context,
	dev *device.Device) error {

	words := uint32(ctx.Uint("words"))
	protection := ctx.Bool("passphrase-protection")

	err := retryWithEntropy(ctx, dev, func() error {
		return dev.GenerateMnemonic(c, words, protection)
	})
	if err != nil {
		return err
	}
	fmt.Println("Mnemonic successfully configured")

	return nil
}

// retryWithEntropy runs f and, when the device asks for external entropy,
// feeds it the --entropy flag and runs f again.
func retryWithEntropy(ctx *cli.Context, dev *device.Device,
	f func() error) error {

	err := f()
	if !errors.Is(err, device.ErrEntropyRequired) {
		return err
	}

	if !ctx.IsSet("entropy") {
		return fmt.Errorf("%w: use --entropy", err)
	}
	entropy, err := hex.DecodeString(ctx.String("entropy"))
	if err != nil {
		return fmt.Errorf("unable to decode entropy: %w", err)
	}
	if err := dev.EntropyAck(entropy); err != nil {
		return err
	}

	return f()
}

var setMnemonicCommand = cli.Command{
	Name:      "set-mnemonic",
	Category:  "Seed",
	Usage:     "Store an existing mnemonic.",
	ArgsUsage: "\"mnemonic words\"",
	Action: actionDecorator(func(ctx *cli.Context, c context.Context,
		dev *device.Device) error {

		if !ctx.Args().Present() {
			return errMissingMnemonic
		}
		if err := dev.SetMnemonic(c, ctx.Args().First()); err != nil {
			return err
		}
		fmt.Println("Mnemonic successfully configured")

		return nil
	}),
}

var backupCommand = cli.Command{
	Name:     "backup",
	Category: "Seed",
	Usage:    "Show the mnemonic word by word for a backup.",
	Action: actionDecorator(func(_ *cli.Context, c context.Context,
		dev *device.Device) error {

		if err := dev.BackupDevice(c); err != nil {
			return err
		}
		fmt.Println("Device successfully backed up")

		return nil
	}),
}

var getAddressCommand = cli.Command{
	Name:     "address",
	Category: "Addresses",
	Usage:    "Derive addresses of the external chain.",
	Flags: []cli.Flag{
		cli.UintFlag{
			Name:  "count",
			Value: 1,
			Usage: "the number of addresses to derive",
		},
		cli.UintFlag{
			Name:  "start",
			Usage: "the index of the first address",
		},
		cli.BoolFlag{
			Name:  "confirm",
			Usage: "show a single address for confirmation",
		},
	},
	Action: actionDecorator(func(ctx *cli.Context, c context.Context,
		dev *device.Device) error {

		addrs, err := dev.GetAddress(
			c, uint32(ctx.Uint("count")), uint32(ctx.Uint("start")),
			ctx.Bool("confirm"),
		)
		if err != nil {
			return err
		}
		printJSON(struct {
			Addresses []string `json:"addresses"`
		}{addrs})

		return nil
	}),
}

var signMessageCommand = cli.Command{
	Name:      "sign-message",
	Category:  "Messages",
	Usage:     "Sign a message with an external chain key.",
	ArgsUsage: "msg",
	Flags: []cli.Flag{
		cli.UintFlag{
			Name:  "index",
			Usage: "the address index of the signing key",
		},
		cli.StringFlag{
			Name:  "msg",
			Usage: "the message or hex encoded digest to sign",
		},
	},
	Action: actionDecorator(func(ctx *cli.Context, c context.Context,
		dev *device.Device) error {

		msg, err := argOrFlag(ctx, "msg", errMissingMessage)
		if err != nil {
			return err
		}

		sig, err := dev.SignMessage(c, uint32(ctx.Uint("index")), msg)
		if err != nil {
			return err
		}
		printJSON(struct {
			Signature string `json:"signature"`
		}{sig})

		return nil
	}),
}

var checkSignatureCommand = cli.Command{
	Name:      "check-signature",
	Category:  "Messages",
	Usage:     "Check that a message was signed by an address.",
	ArgsUsage: "address",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "address",
			Usage: "the address expected to have signed",
		},
		cli.StringFlag{
			Name:  "msg",
			Usage: "the signed message",
		},
		cli.StringFlag{
			Name:  "sig",
			Usage: "the hex encoded signature",
		},
	},
	Action: actionDecorator(func(ctx *cli.Context, _ context.Context,
		dev *device.Device) error {

		addr, err := argOrFlag(ctx, "address", errMissingAddress)
		if err != nil {
			return err
		}
		if !ctx.IsSet("msg") {
			return errMissingMessage
		}
		if !ctx.IsSet("sig") {
			return errMissingSignature
		}

		signer, err := dev.CheckMessageSignature(
			addr, ctx.String("msg"), ctx.String("sig"),
		)
		printJSON(struct {
			Valid   bool   `json:"valid"`
			Address string `json:"address"`
		}{err == nil, signer})

		return err
	}),
}

var changePinCommand = cli.Command{
	Name:     "change-pin",
	Category: "Security",
	Usage:    "Set, change or remove the PIN.",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "remove",
			Usage: "remove the PIN protection",
		},
	},
	Action: actionDecorator(func(ctx *cli.Context, c context.Context,
		dev *device.Device) error {

		remove := ctx.Bool("remove")
		if err := dev.ChangePin(c, remove); err != nil {
			return err
		}

		if remove {
			fmt.Println("PIN removed")
		} else {
			fmt.Println("PIN changed")
		}

		return nil
	}),
}

var applySettingsCommand = cli.Command{
	Name:     "apply-settings",
	Category: "Device",
	Usage:    "Change the label, language or passphrase protection.",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "label",
			Usage: "the device label",
		},
		cli.StringFlag{
			Name:  "language",
			Usage: "the device language",
		},
		cli.BoolTFlag{
			Name:  "use-passphrase",
			Usage: "enable or disable the passphrase protection",
		},
	},
	Action: actionDecorator(func(ctx *cli.Context, c context.Context,
		dev *device.Device) error {

		var update device.SettingsUpdate
		if ctx.IsSet("label") {
			update.Label = fn.Some(ctx.String("label"))
		}
		if ctx.IsSet("language") {
			update.Language = fn.Some(ctx.String("language"))
		}
		if ctx.IsSet("use-passphrase") {
			update.UsePassphrase = fn.Some(
				ctx.BoolT("use-passphrase"),
			)
		}
		if update.Label.IsNone() && update.Language.IsNone() &&
			update.UsePassphrase.IsNone() {

			return errNoSettings
		}

		if err := dev.ApplySettings(c, update); err != nil {
			return err
		}
		fmt.Println("Settings applied")

		return nil
	}),
}

var wipeCommand = cli.Command{
	Name:     "wipe",
	Category: "Security",
	Usage:    "Erase the seed and every setting.",
	Action: actionDecorator(func(_ *cli.Context, c context.Context,
		dev *device.Device) error {

		if err := dev.WipeDevice(c); err != nil {
			return err
		}
		fmt.Println("Device wiped")

		return nil
	}),
}

var pingCommand = cli.Command{
	Name:      "ping",
	Category:  "Device",
	Usage:     "Echo a message after the requested protections.",
	ArgsUsage: "msg",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "pin", Usage: "require the PIN"},
		cli.BoolFlag{Name: "passphrase", Usage: "require the passphrase"},
		cli.BoolFlag{Name: "button", Usage: "require a confirmation"},
	},
	Action: actionDecorator(func(ctx *cli.Context, c context.Context,
		dev *device.Device) error {

		echo, err := dev.Ping(
			c, ctx.Args().First(), ctx.Bool("pin"),
			ctx.Bool("passphrase"), ctx.Bool("button"),
		)
		if err != nil {
			return err
		}
		fmt.Println(echo)

		return nil
	}),
}

// txFile is the transaction read by sign-tx.
type txFile struct {
	CoinName string `json:"coin_name"`
	Version  uint32 `json:"version"`
	LockTime uint64 `json:"lock_time"`

	Inputs []struct {
		Hash     string  `json:"hash"`
		AddressN *uint32 `json:"address_n"`
	} `json:"inputs"`

	Outputs []struct {
		Address  string  `json:"address"`
		Coins    uint64  `json:"coins"`
		Hours    uint64  `json:"hours"`
		AddressN *uint32 `json:"address_n"`
	} `json:"outputs"`
}

type signedInput struct {
	Index     uint32 `json:"index"`
	Signature string `json:"signature"`
}

func optIndex(index *uint32) fn.Option[uint32] {
	if index == nil {
		return fn.None[uint32]()
	}

	return fn.Some(*index)
}

// parseTxFile decodes the sign-tx input into the inputs and outputs the
// signing rounds send.
func parseTxFile(b []byte) (*txsign.SignTx, []txsign.Input,
	[]txsign.Output, error) {

	var f txFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, nil, nil, fmt.Errorf("unable to parse "+
			"transaction: %w", err)
	}

	inputs := make([]txsign.Input, 0, len(f.Inputs))
	for i, in := range f.Inputs {
		raw, err := hex.DecodeString(in.Hash)
		if err != nil || len(raw) != 32 {
			return nil, nil, nil, fmt.Errorf("input %d: hash must "+
				"be 32 hex encoded bytes", i)
		}

		input := txsign.Input{AddressN: optIndex(in.AddressN)}
		copy(input.Hash[:], raw)
		inputs = append(inputs, input)
	}

	outputs := make([]txsign.Output, 0, len(f.Outputs))
	for _, out := range f.Outputs {
		outputs = append(outputs, txsign.Output{
			Address:  out.Address,
			Coins:    out.Coins,
			Hours:    out.Hours,
			AddressN: optIndex(out.AddressN),
		})
	}

	coin := f.CoinName
	if coin == "" {
		coin = defaultCoinName
	}

	return &txsign.SignTx{
		NbIn:     uint32(len(inputs)),
		NbOut:    uint32(len(outputs)),
		CoinName: coin,
		Version:  f.Version,
		LockTime: f.LockTime,
	}, inputs, outputs, nil
}

// signTx drives the signing rounds, answering every request with the
// whole input or output list.
func signTx(c context.Context, dev *device.Device, req txsign.SignTx,
	inputs []txsign.Input, outputs []txsign.Output) ([]signedInput,
	error) {

	resp, err := dev.SignTx(c, req)
	if err != nil {
		return nil, err
	}

	var signed []signedInput
	for {
		for _, res := range resp.SignResults {
			signed = append(signed, signedInput{
				Index:     res.Index,
				Signature: res.Signature.Hex(),
			})
		}

		var ack txsign.TxAck
		switch resp.Type {
		case txsign.RequestFinished:
			return signed, nil

		case txsign.RequestInput:
			ack.Inputs = inputs

		case txsign.RequestOutput:
			ack.Outputs = outputs

		default:
			return nil, fmt.Errorf("unknown request type %v",
				resp.Type)
		}

		resp, err = dev.TxAck(c, ack)
		if err != nil {
			return nil, err
		}
	}
}

var signTxCommand = cli.Command{
	Name:     "sign-tx",
	Category: "Transactions",
	Usage:    "Sign the inputs of a transaction.",
	Description: `
	Sign every input owned by the device. The transaction is read from a
	JSON file of the form

	{"inputs": [{"hash": "<hex>", "address_n": 0}],
	 "outputs": [{"address": "<addr>", "coins": 1000000, "hours": 1}]}

	Outputs carrying address_n are change outputs and are checked instead
	of shown.`,
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

		req, inputs, outputs, err := parseTxFile(b)
		if err != nil {
			return err
		}

		signed, err := signTx(c, dev, *req, inputs, outputs)
		if err != nil {
			return err
		}
		printJSON(struct {
			Signatures []signedInput `json:"signatures"`
		}{signed})

		return nil
	}),
}
