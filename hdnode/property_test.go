package hdnode

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestDeriveMatchesHDKeychain cross checks random derivations against the
// btcutil BIP32 implementation.
func TestDeriveMatchesHDKeychain(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.SliceOfN(rapid.Byte(), 16, 64).Draw(t, "seed")
		path := rapid.SliceOfN(rapid.Uint32(), 0, 6).Draw(t, "path")

		want, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
		if err != nil {
			t.Skip("seed rejected by hdkeychain")
		}
		node, err := FromSeed(seed)
		require.NoError(t, err)

		for _, idx := range path {
			want, err = want.Derive(idx)
			if err != nil {
				t.Skip("invalid child")
			}
			require.NoError(t, node.PrivateCKD(idx))
		}

		require.Equal(t, want.String(), node.String())

		wantPub, err := want.Neuter()
		require.NoError(t, err)
		pub, err := node.Neuter()
		require.NoError(t, err)
		require.Equal(t, wantPub.String(), pub.String())
	})
}

// TestPublicPrivateEquivalence checks that neuter-then-derive equals
// derive-then-neuter for normal indices.
func TestPublicPrivateEquivalence(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.SliceOfN(rapid.Byte(), 16, 64).Draw(t, "seed")
		idx := rapid.Uint32Range(0, HardenedKeyStart-1).Draw(t, "index")

		priv, err := FromSeed(seed)
		require.NoError(t, err)
		pub, err := priv.Neuter()
		require.NoError(t, err)

		require.NoError(t, priv.PrivateCKD(idx))
		require.NoError(t, pub.PublicCKD(idx))

		neutered, err := priv.Neuter()
		require.NoError(t, err)
		require.Equal(t, neutered.String(), pub.String())
		require.Equal(
			t, priv.PrivateKeyExtension, pub.PrivateKeyExtension,
		)
	})
}

func TestSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(t, "seed")
		idx := rapid.Uint32().Draw(t, "index")

		node, err := FromSeed(seed)
		require.NoError(t, err)
		require.NoError(t, node.PrivateCKD(idx))

		decoded, err := DeserializeMainNet(node.String())
		require.NoError(t, err)
		require.Equal(t, node.String(), decoded.String())
		require.Equal(t, node.Depth, decoded.Depth)
		require.Equal(t, node.ChildNum, decoded.ChildNum)
		require.Equal(t, node.ChainCode, decoded.ChainCode)

		want, err := node.PublicKeyBytes()
		require.NoError(t, err)
		got, err := decoded.PublicKeyBytes()
		require.NoError(t, err)
		require.Equal(t, want, got)
	})
}
