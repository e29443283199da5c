package device

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"math/bits"
	"strings"

	"github.com/skyhw/signcore/cipher"
	"github.com/skyhw/signcore/keychain"
	"github.com/skyhw/signcore/protect"
	"github.com/skyhw/signcore/storage"
	"github.com/skyhw/signcore/txsign"
)

// MaxAddresses is the largest number of addresses returned by one
// GetAddress request.
const MaxAddresses = 99

// GenerateMnemonic creates and stores a new BIP39 mnemonic of wordCount
// words. Device randomness is salted with any host supplied entropy.
func (d *Device) GenerateMnemonic(ctx context.Context, wordCount uint32,
	passphraseProtection bool) error {

	if err := d.checkHalted(); err != nil {
		return err
	}

	initialized, err := d.cfg.Store.HasMnemonic()
	switch {
	case err != nil:
		return err

	case initialized:
		return ErrInitialized
	}

	entropyLen, err := cipher.EntropyLenForWordCount(wordCount)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArg, err)
	}

	if d.EntropyRequired() {
		return ErrEntropyRequired
	}

	mnemonic, err := d.newMnemonic(ctx, entropyLen, false)
	if err != nil {
		return err
	}

	if err := d.storeMnemonic(mnemonic, func(s *storage.Settings) {
		s.PassphraseProtection = passphraseProtection
	}); err != nil {
		return err
	}

	log.Infof("Generated %d word mnemonic", wordCount)

	return nil
}

// SetMnemonic stores a host supplied mnemonic after checking its checksum.
func (d *Device) SetMnemonic(ctx context.Context, mnemonic string) error {
	if err := d.checkHalted(); err != nil {
		return err
	}

	if !cipher.MnemonicCheck(mnemonic) {
		return ErrInvalidChecksum
	}

	if err := d.storeMnemonic(mnemonic, nil); err != nil {
		return err
	}

	log.Infof("Mnemonic replaced")

	return nil
}

// newMnemonic builds a mnemonic from entropyLen bytes of device randomness
// salted with the entropy pool. With displayRandom the raw device randomness
// is shown to the user first.
func (d *Device) newMnemonic(ctx context.Context, entropyLen int,
	displayRandom bool) (string, error) {

	var random [32]byte
	defer cipher.Zero(random[:])
	if _, err := io.ReadFull(d.cfg.Rand, random[:]); err != nil {
		return "", fmt.Errorf("reading device randomness: %w", err)
	}

	if displayRandom {
		err := d.confirm(
			ctx, protect.ButtonResetDevice, "Internal entropy:",
			hex.EncodeToString(random[:entropyLen]),
		)
		if err != nil {
			return "", err
		}
	}

	mixed := d.pool.Mix256(random[:])
	defer cipher.Zero(mixed[:])

	mnemonic, err := cipher.MnemonicFromEntropy(mixed[:entropyLen])
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFailed, err)
	}
	if !cipher.MnemonicCheck(mnemonic) {
		log.Criticalf("Generated mnemonic failed its own checksum")
		return "", ErrInvalidChecksum
	}

	return mnemonic, nil
}

// storeMnemonic persists a mnemonic, marks it as needing a backup and poisons
// any open signing session.
func (d *Device) storeMnemonic(mnemonic string,
	update func(*storage.Settings)) error {

	if err := d.cfg.Store.SetMnemonic(mnemonic); err != nil {
		return err
	}
	d.tx.MnemonicChanged()

	return d.updateSettings(func(s *storage.Settings) {
		s.NeedsBackup = true
		if update != nil {
			update(s)
		}
	})
}

// messageDigest interprets message as a hex digest if it is one and hashes
// it otherwise.
func messageDigest(message string) ([32]byte, error) {
	if message == "" {
		return [32]byte{}, fmt.Errorf("%w: empty message", ErrInvalidArg)
	}

	if cipher.IsSHA256Hex(message) {
		return cipher.DecodeHex32(message)
	}

	return cipher.SHA256([]byte(message)), nil
}

// SignMessage signs a message or digest with the key at the external chain
// index and returns the hex encoded signature.
func (d *Device) SignMessage(ctx context.Context, index uint32,
	message string) (string, error) {

	if err := d.checkHalted(); err != nil {
		return "", err
	}

	if err := d.unlockSeed(ctx); err != nil {
		return "", err
	}

	digest, err := messageDigest(message)
	if err != nil {
		return "", err
	}

	var sig cipher.Sig
	err = d.withKeyRing(func(ring keychain.SecretKeyRing) error {
		var err error
		sig, err = ring.SignDigestCompact(
			externalLocator(index), digest[:],
		)

		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFailed, err)
	}

	return sig.Hex(), nil
}

// GetAddress returns count external chain addresses starting at startIndex.
// A single address can be shown to the user for confirmation.
func (d *Device) GetAddress(ctx context.Context, count, startIndex uint32,
	confirm bool) ([]string, error) {

	if err := d.checkHalted(); err != nil {
		return nil, err
	}

	if err := d.guard.ProtectPin(ctx, true); err != nil {
		return nil, err
	}

	switch {
	case count > MaxAddresses:
		return nil, fmt.Errorf("%w: %d", ErrTooManyAddresses, count)

	case count == 0:
		return nil, fmt.Errorf("%w: no addresses requested",
			ErrInvalidArg)
	}

	end, carry := bits.Add32(startIndex, count, 0)
	if carry != 0 || end > keychain.HardenedKeyStart {
		return nil, fmt.Errorf("%w: address range %d+%d out of bounds",
			ErrInvalidArg, startIndex, count)
	}

	if err := d.unlockSeed(ctx); err != nil {
		return nil, err
	}

	addrs := make([]string, 0, count)
	err := d.withKeyRing(func(ring keychain.SecretKeyRing) error {
		for i := startIndex; i < end; i++ {
			addr, err := ring.DeriveAddress(externalLocator(i))
			if err != nil {
				return err
			}
			addrs = append(addrs, addr.String())
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAddressGeneration, err)
	}

	if confirm && count == 1 {
		ok, err := d.guard.ProtectButton(
			ctx, protect.ButtonAddress, addrs[0],
		)
		switch {
		case err != nil:
			return nil, err

		case !ok:
			return nil, ErrActionCancelled
		}
	}

	return addrs, nil
}

// CheckMessageSignature recovers the signer of message and checks that it is
// address. The recovered address is returned.
func (d *Device) CheckMessageSignature(address, message,
	sigHex string) (string, error) {

	if err := d.checkHalted(); err != nil {
		return "", err
	}

	digest, err := messageDigest(message)
	if err != nil {
		return "", err
	}

	sig, err := cipher.SigFromHex(sigHex)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	pub, err := cipher.RecoverPubKey(sig, digest[:])
	if err != nil {
		return "", fmt.Errorf("%w: address recovery failed: %w",
			ErrInvalidSignature, err)
	}
	if !cipher.VerifyPubKey(pub.SerializeCompressed()) {
		return "", fmt.Errorf("%w: cannot verify public key",
			ErrAddressGeneration)
	}

	recovered := cipher.AddressFromPubKey(pub).String()
	if recovered != address {
		return "", fmt.Errorf("%w: address does not match",
			ErrInvalidSignature)
	}

	return recovered, nil
}

// SignTx opens a transaction signing session.
func (d *Device) SignTx(ctx context.Context,
	req txsign.SignTx) (*txsign.TxRequest, error) {

	if err := d.checkHalted(); err != nil {
		return nil, err
	}

	if err := d.unlockSeed(ctx); err != nil {
		return nil, err
	}

	return d.tx.Begin(ctx, req)
}

// TxAck feeds one round to the open signing session.
func (d *Device) TxAck(ctx context.Context,
	ack txsign.TxAck) (*txsign.TxRequest, error) {

	if err := d.checkHalted(); err != nil {
		return nil, err
	}

	if err := d.unlockSeed(ctx); err != nil {
		return nil, err
	}

	return d.tx.Ack(ctx, ack)
}

// TransactionSign signs a whole transaction carried in one request and
// returns one signature per input. Every input must name its key. The
// signing runs in a session of its own, so an open SignTx session is left
// alone.
func (d *Device) TransactionSign(ctx context.Context, inputs []txsign.Input,
	outputs []txsign.Output) ([]cipher.Sig, error) {

	if err := d.checkHalted(); err != nil {
		return nil, err
	}
	if err := d.unlockSeed(ctx); err != nil {
		return nil, err
	}

	for i, in := range inputs {
		if in.AddressN.IsNone() {
			return nil, fmt.Errorf("%w: input %d has no address "+
				"index", ErrInvalidArg, i)
		}
	}

	session := txsign.NewCtx(&txSigner{d: d})
	defer session.Destroy()

	resp, err := session.Begin(ctx, txsign.SignTx{
		NbIn:  uint32(len(inputs)),
		NbOut: uint32(len(outputs)),
	})
	if err != nil {
		return nil, err
	}

	// Inputs, outputs, then inputs again for the signatures. Each list
	// fits in a single round.
	rounds := []txsign.TxAck{
		{Inputs: inputs},
		{Outputs: outputs},
		{Inputs: inputs},
	}
	for _, ack := range rounds {
		if resp.Type == txsign.RequestFinished {
			break
		}

		resp, err = session.Ack(ctx, ack)
		if err != nil {
			return nil, err
		}
	}
	if resp.Type != txsign.RequestFinished ||
		len(resp.SignResults) != len(inputs) {

		return nil, fmt.Errorf("%w: signing did not finish", ErrFailed)
	}

	sigs := make([]cipher.Sig, 0, len(inputs))
	for _, res := range resp.SignResults {
		sigs = append(sigs, res.Signature)
	}

	log.Infof("Signed transaction with %d inputs in one request",
		len(sigs))

	return sigs, nil
}

// confirm asks for a button press and maps a rejection to
// ErrActionCancelled.
func (d *Device) confirm(ctx context.Context, kind protect.ButtonKind,
	text ...string) error {

	ok, err := d.guard.ProtectButton(ctx, kind, text...)
	switch {
	case err != nil:
		return err

	case !ok:
		return ErrActionCancelled
	}

	return nil
}

// ChangePin sets, changes or removes the PIN. The current PIN is always
// requested.
func (d *Device) ChangePin(ctx context.Context, remove bool) error {
	if err := d.checkHalted(); err != nil {
		return err
	}

	text := "Change PIN?"
	if remove {
		text = "Remove PIN?"
	}
	if err := d.confirm(ctx, protect.ButtonProtectCall, text); err != nil {
		return err
	}

	if err := d.guard.ProtectPin(ctx, false); err != nil {
		return err
	}

	if remove {
		return d.guard.RemovePin()
	}

	return d.guard.ChangePin(ctx)
}

// WipeDevice erases the storage after confirmation.
func (d *Device) WipeDevice(ctx context.Context) error {
	if err := d.checkHalted(); err != nil {
		return err
	}

	err := d.confirm(
		ctx, protect.ButtonWipeDevice, "Wipe the device?",
		"All data will be lost.",
	)
	if err != nil {
		return err
	}

	d.tx.Cancel()
	d.guard.Session().Clear()
	d.pool.Reset()

	if err := d.cfg.Store.Wipe(); err != nil {
		return err
	}

	log.Infof("Device wiped")

	return nil
}

// ApplySettings updates the label, language or passphrase protection.
func (d *Device) ApplySettings(ctx context.Context, u SettingsUpdate) error {
	if err := d.checkHalted(); err != nil {
		return err
	}

	if u.Label.IsNone() && u.Language.IsNone() &&
		u.UsePassphrase.IsNone() {

		return ErrPreconditionFailed
	}

	lang := u.Language.UnwrapOr(storage.DefaultLanguage)
	if lang != storage.DefaultLanguage {
		return fmt.Errorf("%w: unsupported language %q",
			ErrInvalidValue, lang)
	}

	if err := d.confirm(ctx, protect.ButtonProtectCall,
		"Apply settings?"); err != nil {

		return err
	}
	if err := d.guard.ProtectPin(ctx, true); err != nil {
		return err
	}

	return d.updateSettings(func(s *storage.Settings) {
		u.Label.WhenSome(func(l string) {
			s.Label = l
		})
		u.Language.WhenSome(func(l string) {
			s.Language = l
		})
		u.UsePassphrase.WhenSome(func(p bool) {
			s.PassphraseProtection = p
		})
	})
}

// Ping echoes msg after the requested protections pass.
func (d *Device) Ping(ctx context.Context, msg string, pin, passphrase,
	button bool) (string, error) {

	if err := d.checkHalted(); err != nil {
		return "", err
	}

	if button {
		if err := d.confirm(ctx, protect.ButtonProtectCall,
			msg); err != nil {

			return "", err
		}
	}

	if pin {
		if err := d.guard.ProtectPin(ctx, true); err != nil {
			return "", err
		}
	}

	if passphrase {
		ok, err := d.guard.ProtectPassphrase(ctx)
		switch {
		case err != nil:
			return "", err

		case !ok:
			return "", ErrActionCancelled
		}
	}

	return msg, nil
}

// BackupDevice shows the mnemonic word by word and clears the backup flag
// once every word was confirmed.
func (d *Device) BackupDevice(ctx context.Context) error {
	if err := d.checkHalted(); err != nil {
		return err
	}

	settings, err := d.cfg.Store.Settings()
	if err != nil {
		return err
	}
	if !settings.NeedsBackup {
		return fmt.Errorf("%w: seed already backed up",
			ErrUnexpectedMessage)
	}

	mnemonic, err := d.cfg.Store.Mnemonic()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMnemonicRequired, err)
	}

	return d.backupWords(ctx, mnemonic)
}

// backupWords shows the mnemonic word by word and clears the backup flag once
// every word was confirmed.
func (d *Device) backupWords(ctx context.Context, mnemonic string) error {
	words := strings.Fields(mnemonic)
	for i, word := range words {
		err := d.confirm(
			ctx, protect.ButtonConfirmWord,
			fmt.Sprintf("Word %d of %d", i+1, len(words)), word,
		)
		if err != nil {
			return err
		}
	}

	if err := d.updateSettings(func(s *storage.Settings) {
		s.NeedsBackup = false
	}); err != nil {
		return err
	}

	log.Infof("Mnemonic backed up")

	return nil
}
