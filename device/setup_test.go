package device

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/skyhw/signcore/cipher"
	"github.com/skyhw/signcore/keychain"
	"github.com/skyhw/signcore/protect"
	"github.com/skyhw/signcore/txsign"
	"github.com/stretchr/testify/require"
)

func TestLoadDevice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := newTestDevice(t)

	err := d.LoadDevice(ctx, LoadRequest{Mnemonic: "  "})
	require.ErrorIs(t, err, ErrInvalidArg)

	err = d.LoadDevice(ctx, LoadRequest{Mnemonic: "abandon abandon"})
	require.ErrorIs(t, err, ErrInvalidChecksum)

	d.ui.accept = false
	err = d.LoadDevice(ctx, LoadRequest{Mnemonic: testMnemonic})
	require.ErrorIs(t, err, ErrActionCancelled)

	ok, err := d.store.HasMnemonic()
	require.NoError(t, err)
	require.False(t, ok)

	d.ui.accept = true
	require.NoError(t, d.LoadDevice(ctx, LoadRequest{
		Mnemonic:             testMnemonic,
		Pin:                  fn.Some("1234"),
		PassphraseProtection: true,
		Label:                fn.Some("loaded"),
	}))
	require.Equal(t, []protect.ButtonKind{
		protect.ButtonProtectCall, protect.ButtonProtectCall,
	}, d.ui.prompts)

	mnemonic, err := d.store.Mnemonic()
	require.NoError(t, err)
	require.Equal(t, testMnemonic, mnemonic)

	pin, err := d.store.Pin()
	require.NoError(t, err)
	require.Equal(t, "1234", pin)

	features, err := d.GetFeatures()
	require.NoError(t, err)
	require.Equal(t, "loaded", features.Label)
	require.True(t, features.PinProtection)
	require.True(t, features.PassphraseProtection)
	require.True(t, features.NeedsBackup)

	err = d.LoadDevice(ctx, LoadRequest{Mnemonic: otherMnemonic})
	require.ErrorIs(t, err, ErrInitialized)
}

func TestLoadDeviceSkipChecksum(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t)

	// The last word is replaced so the checksum no longer holds.
	bad := strings.Repeat("abandon ", 11) + "abandon"
	require.False(t, cipher.MnemonicCheck(bad))

	require.NoError(t, d.LoadDevice(context.Background(), LoadRequest{
		Mnemonic:     bad,
		SkipChecksum: true,
	}))

	mnemonic, err := d.store.Mnemonic()
	require.NoError(t, err)
	require.Equal(t, bad, mnemonic)

	pin, err := d.store.Pin()
	require.NoError(t, err)
	require.Empty(t, pin)
}

func TestResetDevice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := newTestDevice(t)

	err := d.ResetDevice(ctx, ResetRequest{Strength: 100})
	require.ErrorIs(t, err, ErrInvalidArg)

	// Host entropy is always mixed in, even when the device does not ask
	// for it before GenerateMnemonic.
	require.False(t, d.EntropyRequired())
	err = d.ResetDevice(ctx, ResetRequest{})
	require.ErrorIs(t, err, ErrEntropyRequired)

	require.NoError(t, d.EntropyAck([]byte("host entropy")))
	require.NoError(t, d.ResetDevice(ctx, ResetRequest{
		Label: fn.Some("fresh"),
	}))

	// Every word is shown for backup.
	require.Len(t, d.ui.prompts, 12)
	for _, kind := range d.ui.prompts {
		require.Equal(t, protect.ButtonConfirmWord, kind)
	}

	mnemonic, err := d.store.Mnemonic()
	require.NoError(t, err)
	require.Len(t, strings.Fields(mnemonic), 12)
	require.True(t, cipher.MnemonicCheck(mnemonic))

	features, err := d.GetFeatures()
	require.NoError(t, err)
	require.Equal(t, "fresh", features.Label)
	require.False(t, features.NeedsBackup)
	require.False(t, features.PinProtection)

	require.NoError(t, d.EntropyAck([]byte("more entropy")))
	err = d.ResetDevice(ctx, ResetRequest{})
	require.ErrorIs(t, err, ErrInitialized)
}

func TestResetDeviceOptions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := newTestDevice(t)
	d.ui.pins = []string{"4321", "4321"}

	require.NoError(t, d.EntropyAck([]byte("host entropy")))
	require.NoError(t, d.ResetDevice(ctx, ResetRequest{
		Strength:             192,
		DisplayRandom:        true,
		PassphraseProtection: true,
		PinProtection:        true,
		SkipBackup:           true,
	}))
	require.Equal(t, []protect.ButtonKind{protect.ButtonResetDevice},
		d.ui.prompts)

	mnemonic, err := d.store.Mnemonic()
	require.NoError(t, err)
	require.Len(t, strings.Fields(mnemonic), 18)

	pin, err := d.store.Pin()
	require.NoError(t, err)
	require.Equal(t, "4321", pin)

	features, err := d.GetFeatures()
	require.NoError(t, err)
	require.True(t, features.NeedsBackup)
	require.True(t, features.PassphraseProtection)

	// Rejecting the displayed randomness leaves the device empty.
	d = newTestDevice(t)
	d.ui.accept = false
	require.NoError(t, d.EntropyAck([]byte("host entropy")))
	err = d.ResetDevice(ctx, ResetRequest{DisplayRandom: true})
	require.ErrorIs(t, err, ErrActionCancelled)

	ok, err := d.store.HasMnemonic()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRecoveryDevice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := newTestDevice(t)

	err := d.RecoveryDevice(ctx, RecoveryRequest{WordCount: 18})
	require.ErrorIs(t, err, ErrInvalidArg)

	d.ui.words = strings.Fields(testMnemonic)
	d.ui.pins = []string{"1111", "1111"}
	require.NoError(t, d.RecoveryDevice(ctx, RecoveryRequest{
		PinProtection: true,
		Label:         fn.Some("recovered"),
	}))
	require.Equal(t, []protect.ButtonKind{protect.ButtonRecoveryDevice},
		d.ui.prompts)
	require.Empty(t, d.ui.words)

	mnemonic, err := d.store.Mnemonic()
	require.NoError(t, err)
	require.Equal(t, testMnemonic, mnemonic)

	features, err := d.GetFeatures()
	require.NoError(t, err)
	require.Equal(t, "recovered", features.Label)
	require.False(t, features.NeedsBackup)
	require.True(t, features.PinProtection)

	err = d.RecoveryDevice(ctx, RecoveryRequest{})
	require.ErrorIs(t, err, ErrInitialized)
}

func TestRecoveryDeviceBadWords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name  string
		words []string
		err   error
	}{
		{
			name:  "unknown word",
			words: append([]string{"notaword"}, make([]string, 11)...),
			err:   ErrInvalidArg,
		},
		{
			name:  "bad checksum",
			words: strings.Fields(strings.Repeat("abandon ", 12)),
			err:   ErrInvalidChecksum,
		},
		{
			name:  "cancelled",
			words: strings.Fields(testMnemonic)[:5],
			err:   protect.ErrUICancelled,
		},
	}
	for _, tc := range tests {
		d := newTestDevice(t)
		d.ui.words = tc.words

		err := d.RecoveryDevice(ctx, RecoveryRequest{})
		require.ErrorIs(t, err, tc.err, tc.name)

		ok, err := d.store.HasMnemonic()
		require.NoError(t, err)
		require.False(t, ok, tc.name)
	}
}

func TestRecoveryDeviceDryRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	d := newTestDevice(t)
	err := d.RecoveryDevice(ctx, RecoveryRequest{DryRun: true})
	require.ErrorIs(t, err, ErrMnemonicRequired)

	d = newLoadedDevice(t)
	d.ui.words = strings.Fields(testMnemonic)
	require.NoError(t, d.RecoveryDevice(ctx, RecoveryRequest{
		DryRun: true,
		Label:  fn.Some("ignored"),
	}))
	require.Empty(t, d.ui.prompts)

	d.ui.words = strings.Fields(otherMnemonic)
	err = d.RecoveryDevice(ctx, RecoveryRequest{DryRun: true})
	require.ErrorIs(t, err, ErrSeedMismatch)

	kind, code := Classify(err)
	require.Equal(t, KindValidation, kind)
	require.Equal(t, FailureDataError, code)

	// The stored seed and settings are untouched.
	mnemonic, err := d.store.Mnemonic()
	require.NoError(t, err)
	require.Equal(t, testMnemonic, mnemonic)

	features, err := d.GetFeatures()
	require.NoError(t, err)
	require.NotEqual(t, "ignored", features.Label)
}

func TestGetEntropy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := newTestDevice(t)

	raw, err := d.GetRawEntropy(ctx, 16)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{7}, 16), raw)
	require.Equal(t, []protect.ButtonKind{protect.ButtonGetEntropy},
		d.ui.prompts)

	d.cfg.Rand = bytes.NewReader(make([]byte, 2*MaxEntropySize))
	raw, err = d.GetRawEntropy(ctx, 4*MaxEntropySize)
	require.NoError(t, err)
	require.Len(t, raw, MaxEntropySize)

	d.cfg.Rand = bytes.NewReader(make([]byte, 4*MaxEntropySize))
	mixed, err := d.GetMixedEntropy(ctx, 100)
	require.NoError(t, err)
	require.Len(t, mixed, 100)
	require.NotEqual(t, make([]byte, 100), mixed)

	again, err := d.GetMixedEntropy(ctx, 100)
	require.NoError(t, err)
	require.NotEqual(t, mixed, again)

	capped, err := d.GetMixedEntropy(ctx, MaxEntropySize+1)
	require.NoError(t, err)
	require.Len(t, capped, MaxEntropySize)

	d.ui.accept = false
	_, err = d.GetRawEntropy(ctx, 16)
	require.ErrorIs(t, err, ErrActionCancelled)
	_, err = d.GetMixedEntropy(ctx, 16)
	require.ErrorIs(t, err, ErrActionCancelled)
}

// TestTransactionSign signs a whole transaction in one call and checks the
// signatures match the round by round flow.
func TestTransactionSign(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := newLoadedDevice(t)

	inputs := []txsign.Input{
		{
			Hash:     cipher.SHA256([]byte("prev output 0")),
			AddressN: fn.Some(uint32(0)),
		},
		{
			Hash:     cipher.SHA256([]byte("prev output 1")),
			AddressN: fn.Some(uint32(3)),
		},
	}
	outputs := []txsign.Output{{
		Address: mnemonicAddress(t, otherMnemonic, 0).String(),
		Coins:   7,
		Hours:   2,
	}}

	sigs, err := d.TransactionSign(ctx, inputs, outputs)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	require.False(t, d.SigningActive())

	_, err = d.SignTx(ctx, txsign.SignTx{NbIn: 2, NbOut: 1})
	require.NoError(t, err)
	_, err = d.TxAck(ctx, txsign.TxAck{Inputs: inputs})
	require.NoError(t, err)
	_, err = d.TxAck(ctx, txsign.TxAck{Outputs: outputs})
	require.NoError(t, err)
	req, err := d.TxAck(ctx, txsign.TxAck{Inputs: inputs})
	require.NoError(t, err)
	require.Equal(t, txsign.RequestFinished, req.Type)

	for i, res := range req.SignResults {
		require.Equal(t, res.Signature, sigs[i])
	}
}

func TestTransactionSignErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := newLoadedDevice(t)

	owned := txsign.Input{
		Hash:     cipher.SHA256([]byte("prev output")),
		AddressN: fn.Some(uint32(0)),
	}
	out := txsign.Output{
		Address: mnemonicAddress(t, otherMnemonic, 0).String(),
		Coins:   1,
	}

	// A session opened with SignTx survives a rejected single call.
	_, err := d.SignTx(ctx, txsign.SignTx{NbIn: 1, NbOut: 1})
	require.NoError(t, err)

	_, err = d.TransactionSign(ctx, []txsign.Input{
		owned, {Hash: cipher.SHA256(nil)},
	}, []txsign.Output{out})
	require.ErrorIs(t, err, ErrInvalidArg)

	many := make([]txsign.Input, txsign.MaxTxInputs+1)
	for i := range many {
		many[i] = owned
	}
	_, err = d.TransactionSign(ctx, many, []txsign.Output{out})
	require.ErrorIs(t, err, txsign.ErrInvalidArg)

	_, err = d.TransactionSign(ctx, []txsign.Input{owned}, nil)
	require.ErrorIs(t, err, txsign.ErrInvalidArg)

	hardened := owned
	hardened.AddressN = fn.Some[uint32](keychain.HardenedKeyStart)
	_, err = d.TransactionSign(
		ctx, []txsign.Input{hardened}, []txsign.Output{out},
	)
	require.ErrorIs(t, err, keychain.ErrAddressIndexHardened)

	d.ui.accept = false
	_, err = d.TransactionSign(
		ctx, []txsign.Input{owned}, []txsign.Output{out},
	)
	require.ErrorIs(t, err, txsign.ErrActionCancelled)

	require.True(t, d.SigningActive())

	_, err = newTestDevice(t).TransactionSign(
		ctx, []txsign.Input{owned}, []txsign.Output{out},
	)
	require.ErrorIs(t, err, ErrMnemonicRequired)
}
