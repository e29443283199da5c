package dispatch

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/skyhw/signcore/cipher"
	"github.com/skyhw/signcore/device"
	"github.com/skyhw/signcore/hwwire"
	"github.com/skyhw/signcore/protect"
	"github.com/stretchr/testify/require"
)

// enterWords answers a run of WordRequests with words and returns the reply
// to the last one.
func (h *testHost) enterWords(words []string) hwwire.Message {
	h.t.Helper()

	for _, word := range words[:len(words)-1] {
		call[*hwwire.WordRequest](h, &hwwire.WordAck{Word: word})
	}

	h.send(&hwwire.WordAck{Word: words[len(words)-1]})

	return h.recv()
}

func TestRecoveryDevice(t *testing.T) {
	t.Parallel()

	h := newTestHost(t, nil)
	words := strings.Fields(testMnemonic)

	button := call[*hwwire.ButtonRequest](h, &hwwire.RecoveryDevice{
		WordCount: fn.Some[uint32](12),
		Label:     fn.Some("restored"),
	})
	require.Equal(t, uint8(protect.ButtonRecoveryDevice), button.Code)

	call[*hwwire.WordRequest](h, &hwwire.ButtonAck{})
	reply := h.enterWords(words)
	success, ok := reply.(*hwwire.Success)
	require.True(t, ok, reply)
	require.Equal(t, "Device recovered", success.Message)

	features := h.features()
	require.True(t, features.Initialized)
	require.False(t, features.NeedsBackup)
	require.Equal(t, "restored", features.Label)

	// A dry run asks for the words again and only compares them.
	call[*hwwire.WordRequest](h, &hwwire.RecoveryDevice{DryRun: true})
	reply = h.enterWords(words)
	success, ok = reply.(*hwwire.Success)
	require.True(t, ok, reply)
	require.Contains(t, success.Message, "matches")

	call[*hwwire.WordRequest](h, &hwwire.RecoveryDevice{DryRun: true})
	reply = h.enterWords(strings.Fields("legal winner thank year wave " +
		"sausage worth useful legal winner thank yellow"))
	failure, ok := reply.(*hwwire.Failure)
	require.True(t, ok, reply)
	require.Equal(t, uint16(device.FailureDataError), failure.Code)

	// Cancelling in the middle of the words leaves the seed alone.
	call[*hwwire.WordRequest](h, &hwwire.RecoveryDevice{DryRun: true})
	call[*hwwire.WordRequest](h, &hwwire.WordAck{Word: words[0]})
	h.expectFailure(&hwwire.Cancel{}, device.FailureActionCancelled)

	got, err := h.store.Mnemonic()
	require.NoError(t, err)
	require.Equal(t, testMnemonic, got)
}

func TestWordAckOutsideRecovery(t *testing.T) {
	t.Parallel()

	h := newTestHost(t, nil)

	h.expectFailure(&hwwire.WordAck{Word: "abandon"},
		device.FailureUnexpectedMessage)
}

func TestLoadDevice(t *testing.T) {
	t.Parallel()

	h := newTestHost(t, nil)

	button := call[*hwwire.ButtonRequest](h, &hwwire.LoadDevice{
		Mnemonic: testMnemonic,
		Pin:      fn.Some("2468"),
		Label:    fn.Some("loaded"),
	})
	require.Equal(t, uint8(protect.ButtonProtectCall), button.Code)
	call[*hwwire.Success](h, &hwwire.ButtonAck{})

	features := h.features()
	require.True(t, features.Initialized)
	require.True(t, features.PinProtection)
	require.Equal(t, "loaded", features.Label)

	h.expectFailure(&hwwire.LoadDevice{Mnemonic: testMnemonic},
		device.FailureUnexpectedMessage)
}

func TestResetDevice(t *testing.T) {
	t.Parallel()

	h := newTestHost(t, nil)

	call[*hwwire.EntropyRequest](h, &hwwire.ResetDevice{
		Strength: fn.Some[uint32](128),
	})

	button := call[*hwwire.ButtonRequest](h, &hwwire.EntropyAck{
		Entropy: bytes.Repeat([]byte{3}, 32),
	})
	require.Equal(t, uint8(protect.ButtonConfirmWord), button.Code)

	var words []string
	for i := 0; i < 11; i++ {
		words = append(words, strings.Split(button.Text, "\n")[1])
		button = call[*hwwire.ButtonRequest](h, &hwwire.ButtonAck{})
	}
	words = append(words, strings.Split(button.Text, "\n")[1])
	call[*hwwire.Success](h, &hwwire.ButtonAck{})

	mnemonic, err := h.store.Mnemonic()
	require.NoError(t, err)
	require.Equal(t, strings.Join(words, " "), mnemonic)

	features := h.features()
	require.True(t, features.Initialized)
	require.False(t, features.NeedsBackup)

	h.expectFailure(&hwwire.ResetDevice{Strength: fn.Some[uint32](64)},
		device.FailureUnexpectedMessage)
}

func TestGetEntropy(t *testing.T) {
	t.Parallel()

	h := newTestHost(t, nil)

	button := call[*hwwire.ButtonRequest](h, &hwwire.GetRawEntropy{
		Size: 8,
	})
	require.Equal(t, uint8(protect.ButtonGetEntropy), button.Code)
	raw := call[*hwwire.Entropy](h, &hwwire.ButtonAck{})
	require.Equal(t, bytes.Repeat([]byte{7}, 8), raw.Entropy)

	call[*hwwire.ButtonRequest](h, &hwwire.GetMixedEntropy{Size: 40})
	mixed := call[*hwwire.Entropy](h, &hwwire.ButtonAck{})
	require.Len(t, mixed.Entropy, 40)
	require.NotEqual(t, bytes.Repeat([]byte{7}, 40), mixed.Entropy)
}

func TestTransactionSign(t *testing.T) {
	t.Parallel()

	h := newTestHost(t, nil)
	h.loadMnemonic()

	addrs := call[*hwwire.ResponseAddress](h, &hwwire.GetAddress{
		AddressN: 1, StartIndex: fn.Some[uint32](4),
	})

	inputs := []hwwire.TxInput{
		{
			Hash:     cipher.SHA256([]byte("first")),
			AddressN: fn.Some[uint32](0),
		},
		{
			Hash:     cipher.SHA256([]byte("second")),
			AddressN: fn.Some[uint32](2),
		},
	}
	outputs := []hwwire.TxOutput{{
		Address: addrs.Addresses[0], Coins: 2e6, Hours: 3,
	}}

	button := call[*hwwire.ButtonRequest](h, &hwwire.TransactionSign{
		Inputs: inputs, Outputs: outputs,
	})
	require.Equal(t, uint8(protect.ButtonConfirmOutput), button.Code)

	resp := call[*hwwire.ResponseTransactionSign](h, &hwwire.ButtonAck{})
	require.Len(t, resp.Signatures, 2)
	for _, sig := range resp.Signatures {
		parsed, err := cipher.SigFromHex(sig)
		require.NoError(t, err)
		require.False(t, parsed.IsNull())
	}

	// Every input must name its key.
	inputs[1].AddressN = fn.None[uint32]()
	h.expectFailure(&hwwire.TransactionSign{
		Inputs: inputs, Outputs: outputs,
	}, device.FailureDataError)
}
