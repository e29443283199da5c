package txsign

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/skyhw/signcore/cipher"
	"github.com/skyhw/signcore/keychain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var (
	// testSeed is the 000102...0f seed of the BIP32 test vectors.
	testSeed = []byte{
		0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
	}

	// otherSeed owns the external destination addresses.
	otherSeed = []byte{
		0xff, 0xfe, 0xfd, 0xfc, 0xfb, 0xfa, 0xf9, 0xf8,
		0xf7, 0xf6, 0xf5, 0xf4, 0xf3, 0xf2, 0xf1, 0xf0,
	}
)

// seedSigner signs with the external chain of account 0' below a seed. The
// confirmation prompt is mocked.
type seedSigner struct {
	mock.Mock

	keys *keychain.SeedKeyRing
}

func newSeedSigner(seed []byte) *seedSigner {
	return &seedSigner{keys: keychain.NewSeedKeyRing(seed)}
}

func locator(index uint32) keychain.KeyLocator {
	return keychain.KeyLocator{
		Account: keychain.HardenedKeyStart,
		Change:  keychain.ChangeExternal,
		Index:   index,
	}
}

func (s *seedSigner) ConfirmOutput(ctx context.Context,
	out Output) (bool, error) {

	args := s.Called(out.Address)
	return args.Bool(0), args.Error(1)
}

func (s *seedSigner) DeriveAddress(index uint32) (cipher.Address, error) {
	desc, err := s.keys.DeriveKey(locator(index))
	if err != nil {
		return cipher.Address{}, err
	}

	return desc.Address(), nil
}

func (s *seedSigner) SignDigest(index uint32,
	digest [32]byte) (cipher.Sig, error) {

	return s.keys.SignDigestCompact(locator(index), digest[:])
}

func addressAt(t *testing.T, seed []byte, index uint32) cipher.Address {
	t.Helper()

	addr, err := keychain.AddressForBranch(
		seed, keychain.BIP0044Purpose, keychain.CoinTypeSkycoin,
		keychain.HardenedKeyStart, keychain.ChangeExternal, index,
	)
	require.NoError(t, err)

	return addr
}

func inputHash(b byte) [32]byte {
	var h [32]byte
	for i := range h {
		h[i] = b
	}

	return h
}

// innerHash recomputes the transaction commitment independently of the
// running hash.
func innerHash(inputs []Input, outputs []Output,
	addrs []cipher.Address) [32]byte {

	h := sha256.New()

	var b4 [4]byte
	binary.LittleEndian.PutUint32(b4[:], uint32(len(inputs)))
	h.Write(b4[:])
	for _, in := range inputs {
		h.Write(in.Hash[:])
	}

	binary.LittleEndian.PutUint32(b4[:], uint32(len(outputs)))
	h.Write(b4[:])
	for i, out := range outputs {
		var b8 [8]byte
		h.Write([]byte{addrs[i].Version})
		h.Write(addrs[i].Key[:])
		binary.LittleEndian.PutUint64(b8[:], out.Coins)
		h.Write(b8[:])
		binary.LittleEndian.PutUint64(b8[:], out.Hours)
		h.Write(b8[:])
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))

	return out
}

// TestSignTxEndToEnd streams a full transaction in several rounds and checks
// every signature against the commitment.
func TestSignTxEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	signer := newSeedSigner(testSeed)
	dest := addressAt(t, otherSeed, 0)
	change := addressAt(t, testSeed, 1)
	signer.On("ConfirmOutput", dest.String()).Return(true, nil).Once()

	inputs := []Input{
		{Hash: inputHash(0x11), AddressN: fn.Some(uint32(0))},
		{Hash: inputHash(0x22), AddressN: fn.Some(uint32(1))},
		{Hash: inputHash(0x33)},
	}
	outputs := []Output{
		{Address: dest.String(), Coins: 1_000_000, Hours: 7},
		{
			Address:  change.String(),
			Coins:    2_500_000,
			Hours:    3,
			AddressN: fn.Some(uint32(1)),
		},
	}

	c := NewCtx(signer)

	req, err := c.Begin(ctx, SignTx{
		NbIn:     3,
		NbOut:    2,
		CoinName: "Skycoin",
		Version:  1,
		TxHash:   "tx-1",
	})
	require.NoError(t, err)
	require.Equal(t, &TxRequest{
		Type:         RequestInput,
		RequestIndex: 1,
		TxHash:       "tx-1",
	}, req)
	require.IsType(t, &InnerHashInputs{}, c.State())

	steps := []struct {
		ack   TxAck
		typ   RequestType
		state State
	}{
		{TxAck{Inputs: inputs[:2]}, RequestInput, &InnerHashInputs{}},
		{TxAck{Inputs: inputs[2:]}, RequestOutput, &InnerHashOutputs{}},
		{TxAck{Outputs: outputs[:1]}, RequestOutput,
			&InnerHashOutputs{}},
		{TxAck{Outputs: outputs[1:]}, RequestInput, &Signature{}},
	}
	for i, step := range steps {
		req, err := c.Ack(ctx, step.ack)
		require.NoError(t, err)
		require.Equal(t, step.typ, req.Type)
		require.Equal(t, uint32(i+2), req.RequestIndex)
		require.Equal(t, "tx-1", req.TxHash)
		require.Empty(t, req.SignResults)
		require.IsType(t, step.state, c.State())
	}

	req, err = c.Ack(ctx, TxAck{Inputs: inputs})
	require.NoError(t, err)
	require.Equal(t, RequestFinished, req.Type)
	require.Equal(t, uint32(6), req.RequestIndex)
	require.Equal(t, "tx-1", req.TxHash)
	require.Len(t, req.SignResults, len(inputs))
	require.False(t, c.Active())

	inner := innerHash(inputs, outputs, []cipher.Address{dest, change})
	for i, res := range req.SignResults {
		require.Equal(t, uint32(i), res.Index)

		if inputs[i].AddressN.IsNone() {
			require.True(t, res.Signature.IsNull())
			continue
		}

		digest := cipher.SHA256Two(inner[:], inputs[i].Hash[:])
		pub, err := cipher.RecoverPubKey(res.Signature, digest[:])
		require.NoError(t, err)

		idx := inputs[i].AddressN.UnwrapOr(0)
		require.Equal(t, addressAt(t, testSeed, idx),
			cipher.AddressFromPubKey(pub))
	}

	signer.AssertExpectations(t)
}

// startedCtx opens a 2-in/1-out session.
func startedCtx(t *testing.T, signer Signer) *Ctx {
	t.Helper()

	c := NewCtx(signer)
	_, err := c.Begin(context.Background(), SignTx{
		NbIn: 2, NbOut: 1, TxHash: "tx",
	})
	require.NoError(t, err)

	return c
}

// toOutputs moves a started session into the output rounds.
func toOutputs(t *testing.T, c *Ctx) {
	t.Helper()

	_, err := c.Ack(context.Background(), TxAck{Inputs: []Input{
		{Hash: inputHash(1)}, {Hash: inputHash(2)},
	}})
	require.NoError(t, err)
	require.IsType(t, &InnerHashOutputs{}, c.State())
}

// toSignature moves a started session into the signature rounds.
func toSignature(t *testing.T, c *Ctx, dest string) {
	t.Helper()

	toOutputs(t, c)
	_, err := c.Ack(context.Background(), TxAck{Outputs: []Output{
		{Address: dest, Coins: 1},
	}})
	require.NoError(t, err)
	require.IsType(t, &Signature{}, c.State())
}

// TestOrderingViolations checks that every out of order round destroys the
// session with ErrInvalidArg.
func TestOrderingViolations(t *testing.T) {
	t.Parallel()

	dest := addressAt(t, otherSeed, 3).String()
	in := Input{Hash: inputHash(9)}
	out := Output{Address: dest, Coins: 1}

	tests := []struct {
		name  string
		setup func(*testing.T, *Ctx)
		ack   TxAck
	}{
		{
			name: "outputs while hashing inputs",
			ack:  TxAck{Outputs: []Output{out}},
		},
		{
			name: "mixed round while hashing inputs",
			ack: TxAck{
				Inputs:  []Input{in},
				Outputs: []Output{out},
			},
		},
		{
			name: "empty round",
			ack:  TxAck{},
		},
		{
			name: "more inputs than declared",
			ack:  TxAck{Inputs: []Input{in, in, in}},
		},
		{
			name:  "inputs while hashing outputs",
			setup: toOutputs,
			ack:   TxAck{Inputs: []Input{in}},
		},
		{
			name:  "more outputs than declared",
			setup: toOutputs,
			ack:   TxAck{Outputs: []Output{out, out}},
		},
		{
			name: "outputs while signing",
			setup: func(t *testing.T, c *Ctx) {
				toSignature(t, c, dest)
			},
			ack: TxAck{Outputs: []Output{out}},
		},
		{
			name: "more signatures than declared",
			setup: func(t *testing.T, c *Ctx) {
				toSignature(t, c, dest)
			},
			ack: TxAck{Inputs: []Input{in, in, in}},
		},
		{
			name: "round above the per transaction limit",
			ack: TxAck{
				Inputs: make([]Input, MaxTxInputs+1),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			signer := newSeedSigner(testSeed)
			signer.On("ConfirmOutput", dest).Return(true, nil)

			c := startedCtx(t, signer)
			if tc.setup != nil {
				tc.setup(t, c)
			}

			_, err := c.Ack(context.Background(), tc.ack)
			require.ErrorIs(t, err, ErrInvalidArg)
			require.False(t, c.Active())
			require.IsType(t, &Destroyed{}, c.State())

			_, err = c.Ack(context.Background(), TxAck{
				Inputs: []Input{in},
			})
			require.ErrorIs(t, err, ErrNoSession)
		})
	}
}

func TestBeginValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		nbIn  uint32
		nbOut uint32
	}{
		{"no inputs", 0, 1},
		{"no outputs", 1, 0},
		{"too many inputs", MaxTxInputs + 1, 1},
		{"too many outputs", 1, MaxTxOutputs + 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCtx(newSeedSigner(testSeed))
			_, err := c.Begin(context.Background(), SignTx{
				NbIn: tc.nbIn, NbOut: tc.nbOut,
			})
			require.ErrorIs(t, err, ErrInvalidArg)
			require.False(t, c.Active())
		})
	}
}

func TestAckWithoutSession(t *testing.T) {
	t.Parallel()

	c := NewCtx(newSeedSigner(testSeed))
	_, err := c.Ack(context.Background(), TxAck{
		Inputs: []Input{{Hash: inputHash(1)}},
	})
	require.ErrorIs(t, err, ErrNoSession)
}

// TestBeginDuringSession checks that a second SignTx destroys the open session
// and that a fresh one can be started afterwards.
func TestBeginDuringSession(t *testing.T) {
	t.Parallel()

	c := startedCtx(t, newSeedSigner(testSeed))

	_, err := c.Begin(context.Background(), SignTx{NbIn: 1, NbOut: 1})
	require.ErrorIs(t, err, ErrSessionInProgress)
	require.False(t, c.Active())

	req, err := c.Begin(context.Background(), SignTx{
		NbIn: 1, NbOut: 1, TxHash: "again",
	})
	require.NoError(t, err)
	require.Equal(t, uint32(1), req.RequestIndex)
	require.Equal(t, "again", req.TxHash)
}

func TestMnemonicChangePoisons(t *testing.T) {
	t.Parallel()

	// An idle context is not affected.
	idle := NewCtx(newSeedSigner(testSeed))
	idle.MnemonicChanged()
	_, err := idle.Begin(context.Background(), SignTx{NbIn: 1, NbOut: 1})
	require.NoError(t, err)

	c := startedCtx(t, newSeedSigner(testSeed))
	c.MnemonicChanged()

	_, err = c.Ack(context.Background(), TxAck{
		Inputs: []Input{{Hash: inputHash(1)}},
	})
	require.ErrorIs(t, err, ErrMnemonicChanged)
	require.False(t, c.Active())

	// The poison is cleared with the session.
	_, err = c.Begin(context.Background(), SignTx{NbIn: 1, NbOut: 1})
	require.NoError(t, err)
}

func TestCancel(t *testing.T) {
	t.Parallel()

	c := startedCtx(t, newSeedSigner(testSeed))
	c.Cancel()
	require.False(t, c.Active())

	_, err := c.Ack(context.Background(), TxAck{
		Inputs: []Input{{Hash: inputHash(1)}},
	})
	require.ErrorIs(t, err, ErrNoSession)
}

// TestOutputChecks covers the ways an output can be rejected.
func TestOutputChecks(t *testing.T) {
	t.Parallel()

	dest := addressAt(t, otherSeed, 0).String()
	errUI := errors.New("ui gone")

	tests := []struct {
		name    string
		out     Output
		confirm []any
		err     error
	}{
		{
			name: "undecodable address",
			out:  Output{Address: "not-an-address"},
			err:  ErrInvalidAddress,
		},
		{
			name:    "declined",
			out:     Output{Address: dest},
			confirm: []any{false, nil},
			err:     ErrActionCancelled,
		},
		{
			name:    "ui failure",
			out:     Output{Address: dest},
			confirm: []any{false, errUI},
			err:     errUI,
		},
		{
			name: "change address mismatch",
			out: Output{
				Address:  dest,
				AddressN: fn.Some(uint32(0)),
			},
			err: ErrAddressMismatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			signer := newSeedSigner(testSeed)
			if tc.confirm != nil {
				signer.On("ConfirmOutput", dest).
					Return(tc.confirm...).Once()
			}

			c := startedCtx(t, signer)
			toOutputs(t, c)

			_, err := c.Ack(context.Background(), TxAck{
				Outputs: []Output{tc.out},
			})
			require.ErrorIs(t, err, tc.err)
			require.False(t, c.Active())

			signer.AssertExpectations(t)
		})
	}
}

func TestSignatureNeedsInnerHash(t *testing.T) {
	t.Parallel()

	env := &Environment{nbIn: 1, hash: cipher.NewRunningHash()}
	_, err := (&Signature{}).ProcessEvent(&roundEvent{ack: &TxAck{
		Inputs: []Input{{Hash: inputHash(1)}},
	}}, env)
	require.ErrorIs(t, err, ErrFailed)
}

func TestAddCount(t *testing.T) {
	t.Parallel()

	sum, ok := addCount(3, 2, 5)
	require.True(t, ok)
	require.Equal(t, uint32(5), sum)

	_, ok = addCount(3, 3, 5)
	require.False(t, ok)

	_, ok = addCount(^uint32(0), 1, ^uint32(0))
	require.False(t, ok)

	_, ok = addCount(0, -1, 5)
	require.False(t, ok)
}

// TestRoundSplitsProperty checks that any split of the declared inputs and
// outputs into rounds finishes with one result per input and a request index
// that grows by one per round.
func TestRoundSplitsProperty(t *testing.T) {
	t.Parallel()

	dest := addressAt(t, otherSeed, 1).String()

	rapid.Check(t, func(t *rapid.T) {
		nbIn := rapid.IntRange(1, MaxTxInputs).Draw(t, "nbIn")
		nbOut := rapid.IntRange(1, MaxTxOutputs).Draw(t, "nbOut")

		signer := newSeedSigner(testSeed)
		signer.On("ConfirmOutput", dest).Return(true, nil)

		inputs := make([]Input, nbIn)
		for i := range inputs {
			inputs[i] = Input{Hash: inputHash(byte(i))}
		}
		outputs := make([]Output, nbOut)
		for i := range outputs {
			outputs[i] = Output{Address: dest, Coins: uint64(i)}
		}

		c := NewCtx(signer)
		req, err := c.Begin(context.Background(), SignTx{
			NbIn: uint32(nbIn), NbOut: uint32(nbOut),
		})
		require.NoError(t, err)

		index := req.RequestIndex
		ack := func(a TxAck) *TxRequest {
			req, err := c.Ack(context.Background(), a)
			require.NoError(t, err)
			require.Equal(t, index+1, req.RequestIndex)
			index = req.RequestIndex

			return req
		}

		for rest := inputs; len(rest) > 0; {
			n := rapid.IntRange(1, len(rest)).Draw(t, "inBatch")
			ack(TxAck{Inputs: rest[:n]})
			rest = rest[n:]
		}
		for rest := outputs; len(rest) > 0; {
			n := rapid.IntRange(1, len(rest)).Draw(t, "outBatch")
			ack(TxAck{Outputs: rest[:n]})
			rest = rest[n:]
		}

		var results []SignResult
		for rest := inputs; len(rest) > 0; {
			n := rapid.IntRange(1, len(rest)).Draw(t, "sigBatch")
			req := ack(TxAck{Inputs: rest[:n]})
			results = append(results, req.SignResults...)
			rest = rest[n:]

			if len(rest) == 0 {
				require.Equal(t, RequestFinished, req.Type)
			} else {
				require.Equal(t, RequestInput, req.Type)
			}
		}

		require.Len(t, results, nbIn)
		for i, res := range results {
			require.Equal(t, uint32(i), res.Index)
		}
		require.False(t, c.Active())
	})
}
