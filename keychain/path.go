package keychain

import (
	"errors"
	"fmt"

	"github.com/skyhw/signcore/hdnode"
)

var (
	// ErrInvalidPurpose is returned when the purpose of a path is not 44'.
	ErrInvalidPurpose = errors.New("invalid purpose")

	// ErrInvalidCoinType is returned when the coin type of a path is not
	// the signer's coin.
	ErrInvalidCoinType = errors.New("invalid coin type")

	// ErrAccountNotHardened is returned when the account of a path is not
	// a hardened index.
	ErrAccountNotHardened = errors.New("account must be hardened")

	// ErrInvalidChange is returned when the change branch of a path is
	// neither 0 nor 1.
	ErrInvalidChange = errors.New("change must be 0 or 1")

	// ErrAddressIndexHardened is returned when the address index of a path
	// is hardened.
	ErrAddressIndexHardened = errors.New("address index must not be " +
		"hardened")

	// ErrInvalidPathLength is returned when a parsed path does not have
	// exactly five components.
	ErrInvalidPathLength = errors.New("bip44 path must have five " +
		"components")
)

// Path is a BIP44 derivation path m/purpose'/coin'/account'/change/index.
// Purpose, CoinType and Account carry the hardened bit.
type Path struct {
	Purpose      uint32
	CoinType     uint32
	Account      uint32
	Change       uint32
	AddressIndex uint32
}

// NewPath returns the path of the key described by the locator.
func NewPath(loc KeyLocator) Path {
	return Path{
		Purpose:      BIP0044Purpose,
		CoinType:     CoinTypeSkycoin,
		Account:      loc.Account,
		Change:       loc.Change,
		AddressIndex: loc.Index,
	}
}

// Validate checks that the path components form a BIP44 path of the signer's
// coin.
func Validate(purpose, coinType, account, change, addressIndex uint32) error {

	switch {
	case purpose != BIP0044Purpose:
		return fmt.Errorf("%w: %d", ErrInvalidPurpose, purpose)

	case coinType != CoinTypeSkycoin:
		return fmt.Errorf("%w: %d", ErrInvalidCoinType, coinType)

	case account < HardenedKeyStart:
		return fmt.Errorf("%w: %d", ErrAccountNotHardened, account)

	case change != ChangeExternal && change != ChangeInternal:
		return fmt.Errorf("%w: %d", ErrInvalidChange, change)

	case addressIndex >= HardenedKeyStart:
		return fmt.Errorf("%w: %d", ErrAddressIndexHardened,
			addressIndex)
	}

	return nil
}

// Validate checks the components of the path.
func (p Path) Validate() error {
	return Validate(
		p.Purpose, p.CoinType, p.Account, p.Change, p.AddressIndex,
	)
}

// Locator returns the key locator of the path.
func (p Path) Locator() KeyLocator {
	return KeyLocator{
		Account: p.Account,
		Change:  p.Change,
		Index:   p.AddressIndex,
	}
}

// Indices returns the five child indices of the path.
func (p Path) Indices() hdnode.Path {
	return hdnode.Path{
		p.Purpose, p.CoinType, p.Account, p.Change, p.AddressIndex,
	}
}

// String renders the path as m/44'/8000'/0'/0/1.
func (p Path) String() string {
	return p.Indices().String()
}

// ParsePath parses a BIP44 path string. The result is not validated.
func ParsePath(s string) (Path, error) {
	indices, err := hdnode.ParsePath(s)
	if err != nil {
		return Path{}, err
	}
	if len(indices) != 5 {
		return Path{}, fmt.Errorf("%w: got %d", ErrInvalidPathLength,
			len(indices))
	}

	return Path{
		Purpose:      indices[0],
		CoinType:     indices[1],
		Account:      indices[2],
		Change:       indices[3],
		AddressIndex: indices[4],
	}, nil
}
