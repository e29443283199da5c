package cipher

import (
	"errors"
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

const (
	// MnemonicWordCount12 is the word count of a 128-bit mnemonic.
	MnemonicWordCount12 = 12

	// MnemonicWordCount24 is the word count of a 256-bit mnemonic.
	MnemonicWordCount24 = 24
)

// ErrInvalidWordCount is returned for mnemonic strengths other than 12 or 24
// words.
var ErrInvalidWordCount = errors.New("word count must be 12 or 24")

// EntropyLenForWordCount returns the number of entropy bytes needed for a
// mnemonic of the given word count.
func EntropyLenForWordCount(words uint32) (int, error) {
	switch words {
	case MnemonicWordCount12:
		return 16, nil

	case MnemonicWordCount24:
		return 32, nil

	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidWordCount, words)
	}
}

// MnemonicFromEntropy encodes entropy as a BIP39 english mnemonic.
func MnemonicFromEntropy(entropy []byte) (string, error) {
	return bip39.NewMnemonic(entropy)
}

// MnemonicCheck reports whether m is a well formed BIP39 mnemonic with a valid
// checksum.
func MnemonicCheck(m string) bool {
	return bip39.IsMnemonicValid(m)
}

// IsMnemonicWord reports whether word is in the BIP39 english word list.
func IsMnemonicWord(word string) bool {
	_, ok := bip39.GetWordIndex(word)
	return ok
}

// MnemonicToSeed derives the 64-byte BIP39 seed of a mnemonic and passphrase.
func MnemonicToSeed(m, passphrase string) []byte {
	return bip39.NewSeed(m, passphrase)
}
