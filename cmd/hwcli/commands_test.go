package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/skyhw/signcore/cipher"
	"github.com/skyhw/signcore/device"
	"github.com/skyhw/signcore/protect"
	"github.com/skyhw/signcore/storage"
	"github.com/skyhw/signcore/txsign"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon about"

func newTestDevice(t *testing.T, answers string) *device.Device {
	t.Helper()

	var out bytes.Buffer
	dev := device.New(device.Config{
		Store: storage.NewMemStore(),
		UI:    newTerminalUI(strings.NewReader(answers), &out),
		Rand:  bytes.NewReader(bytes.Repeat([]byte{3}, 64)),
	})
	require.NoError(t, dev.SetMnemonic(context.Background(), testMnemonic))

	return dev
}

func TestTerminalUI(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	ui := newTerminalUI(strings.NewReader("1234\n\nYES\nno\n"), &out)
	ctx := context.Background()

	pin, err := ui.RequestPin(ctx, protect.PinNewFirst)
	require.NoError(t, err)
	require.Equal(t, "1234", pin)
	require.Contains(t, out.String(), protect.PinNewFirst.String())

	// An empty PIN cancels.
	_, err = ui.RequestPin(ctx, protect.PinCurrent)
	require.ErrorIs(t, err, protect.ErrUICancelled)

	ok, err := ui.Confirm(ctx, protect.ButtonOther, "first", "second")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, out.String(), "second")

	ok, err = ui.Confirm(ctx, protect.ButtonOther)
	require.NoError(t, err)
	require.False(t, ok)

	// The input is exhausted.
	_, err = ui.RequestPassphrase(ctx)
	require.Error(t, err)

	require.Equal(t, protect.MsgNone, ui.PollNextMessage())
}

func TestParseTxFile(t *testing.T) {
	t.Parallel()

	hash := strings.Repeat("ab", 32)
	req, inputs, outputs, err := parseTxFile([]byte(`{
		"inputs": [
			{"hash": "` + hash + `", "address_n": 3},
			{"hash": "` + hash + `"}
		],
		"outputs": [{"address": "addr", "coins": 1000, "hours": 2}]
	}`))
	require.NoError(t, err)

	require.Equal(t, uint32(2), req.NbIn)
	require.Equal(t, uint32(1), req.NbOut)
	require.Equal(t, defaultCoinName, req.CoinName)

	require.Equal(t, uint32(3), inputs[0].AddressN.UnwrapOr(0))
	require.True(t, inputs[1].AddressN.IsNone())
	require.Equal(t, byte(0xab), inputs[0].Hash[31])
	require.True(t, outputs[0].AddressN.IsNone())
	require.Equal(t, uint64(1000), outputs[0].Coins)

	_, _, _, err = parseTxFile([]byte(`{"inputs": [{"hash": "00"}]}`))
	require.Error(t, err)

	_, _, _, err = parseTxFile([]byte(`not json`))
	require.Error(t, err)
}

func TestSignTxRounds(t *testing.T) {
	t.Parallel()

	// The single foreign output is confirmed.
	dev := newTestDevice(t, "yes\n")
	ctx := context.Background()

	addrs, err := dev.GetAddress(ctx, 1, 5, false)
	require.NoError(t, err)

	hash := strings.Repeat("01", 32)
	req, inputs, outputs, err := parseTxFile([]byte(`{
		"inputs": [
			{"hash": "` + hash + `", "address_n": 0},
			{"hash": "` + hash + `"}
		],
		"outputs": [{"address": "` + addrs[0] + `", "coins": 1000000}]
	}`))
	require.NoError(t, err)

	signed, err := signTx(ctx, dev, *req, inputs, outputs)
	require.NoError(t, err)
	require.Len(t, signed, 2)

	require.Equal(t, uint32(0), signed[0].Index)
	require.NotEqual(t, cipher.Sig{}.Hex(), signed[0].Signature)

	// The foreign input is left unsigned.
	require.Equal(t, uint32(1), signed[1].Index)
	require.Equal(t, cipher.Sig{}.Hex(), signed[1].Signature)
}

func TestSignTxRejected(t *testing.T) {
	t.Parallel()

	dev := newTestDevice(t, "no\n")
	ctx := context.Background()

	addrs, err := dev.GetAddress(ctx, 1, 7, false)
	require.NoError(t, err)

	req, inputs, outputs, err := parseTxFile([]byte(`{
		"inputs": [{"hash": "` + strings.Repeat("02", 32) + `",
			"address_n": 0}],
		"outputs": [{"address": "` + addrs[0] + `", "coins": 1000000}]
	}`))
	require.NoError(t, err)

	_, err = signTx(ctx, dev, *req, inputs, outputs)
	require.ErrorIs(t, err, txsign.ErrActionCancelled)
	require.False(t, dev.SigningActive())
}

func TestTerminalUIRequestWord(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	ui := newTerminalUI(strings.NewReader(" Abandon \nabout\n\n"), &out)
	ctx := context.Background()

	word, err := ui.RequestWord(ctx)
	require.NoError(t, err)
	require.Equal(t, "abandon", word)

	word, err = ui.RequestWord(ctx)
	require.NoError(t, err)
	require.Equal(t, "about", word)
	require.Contains(t, out.String(), "Enter word 2: ")

	// An empty line cancels.
	_, err = ui.RequestWord(ctx)
	require.ErrorIs(t, err, protect.ErrUICancelled)
}

func TestTransactionSign(t *testing.T) {
	t.Parallel()

	dev := newTestDevice(t, "yes\n")
	ctx := context.Background()

	addrs, err := dev.GetAddress(ctx, 1, 5, false)
	require.NoError(t, err)

	hash := strings.Repeat("03", 32)
	signed, err := transactionSign(ctx, dev, []byte(`{
		"inputs": [
			{"hash": "`+hash+`", "address_n": 0},
			{"hash": "`+hash+`", "address_n": 1}
		],
		"outputs": [{"address": "`+addrs[0]+`", "coins": 1000000}]
	}`))
	require.NoError(t, err)
	require.Len(t, signed, 2)
	for i, in := range signed {
		require.Equal(t, uint32(i), in.Index)
		require.NotEqual(t, cipher.Sig{}.Hex(), in.Signature)
	}

	// An input without address_n is refused before anything is shown.
	_, err = transactionSign(ctx, dev, []byte(`{
		"inputs": [{"hash": "`+hash+`"}],
		"outputs": [{"address": "`+addrs[0]+`", "coins": 1000000}]
	}`))
	require.ErrorIs(t, err, device.ErrInvalidArg)
}
