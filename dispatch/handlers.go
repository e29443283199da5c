package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/skyhw/signcore/device"
	"github.com/skyhw/signcore/hwwire"
	"github.com/skyhw/signcore/txsign"
)

// defaultWordCount is used when GenerateMnemonic carries no word count.
const defaultWordCount = 12

func success(msg string) *hwwire.Success {
	return &hwwire.Success{Message: msg}
}

// handle runs the device handler for msg and returns its response.
func (s *Server) handle(ctx context.Context,
	msg hwwire.Message) (hwwire.Message, error) {

	d := s.dev

	switch m := msg.(type) {
	case *hwwire.Initialize:
		features, err := d.Initialize()
		if err != nil {
			return nil, err
		}

		return featuresMsg(features), nil

	case *hwwire.GetFeatures:
		features, err := d.GetFeatures()
		if err != nil {
			return nil, err
		}

		return featuresMsg(features), nil

	case *hwwire.Cancel:
		d.Cancel()
		return nil, fmt.Errorf("%w: aborted", device.ErrActionCancelled)

	case *hwwire.Ping:
		echo, err := d.Ping(
			ctx, m.Message, m.PinProtection, m.PassphraseProtection,
			m.ButtonProtection,
		)
		if err != nil {
			return nil, err
		}

		return success(echo), nil

	case *hwwire.GenerateMnemonic:
		err := s.generateMnemonic(ctx, m)
		return success("Mnemonic successfully configured"), err

	case *hwwire.SetMnemonic:
		err := d.SetMnemonic(ctx, m.Mnemonic)
		return success("Mnemonic successfully configured"), err

	case *hwwire.EntropyAck:
		err := d.EntropyAck(m.Entropy)
		return success("External entropy updated"), err

	case *hwwire.GetAddress:
		addrs, err := d.GetAddress(
			ctx, m.AddressN, m.StartIndex.UnwrapOr(0),
			m.ConfirmAddress,
		)
		if err != nil {
			return nil, err
		}

		return &hwwire.ResponseAddress{Addresses: addrs}, nil

	case *hwwire.SignMessage:
		sig, err := d.SignMessage(ctx, m.AddressN, m.Message)
		if err != nil {
			return nil, err
		}

		return &hwwire.ResponseSignMessage{Signature: sig}, nil

	case *hwwire.CheckMessageSignature:
		addr, err := d.CheckMessageSignature(
			m.Address, m.Message, m.Signature,
		)
		return success(addr), err

	case *hwwire.ChangePin:
		if err := d.ChangePin(ctx, m.Remove); err != nil {
			return nil, err
		}
		if m.Remove {
			return success("PIN removed"), nil
		}

		return success("PIN changed"), nil

	case *hwwire.WipeDevice:
		err := d.WipeDevice(ctx)
		return success("Device wiped"), err

	case *hwwire.ApplySettings:
		err := d.ApplySettings(ctx, device.SettingsUpdate{
			Label:         m.Label,
			Language:      m.Language,
			UsePassphrase: m.UsePassphrase,
		})
		return success("Settings applied"), err

	case *hwwire.BackupDevice:
		err := d.BackupDevice(ctx)
		return success("Device successfully backed up"), err

	case *hwwire.SignTx:
		req, err := d.SignTx(ctx, signTxFromWire(m))
		if err != nil {
			return nil, err
		}

		return txRequestMsg(req), nil

	case *hwwire.TxAck:
		req, err := d.TxAck(ctx, txAckFromWire(m))
		if err != nil {
			return nil, err
		}

		return txRequestMsg(req), nil

	case *hwwire.TransactionSign:
		ack := txAckFromWire(&hwwire.TxAck{
			Inputs: m.Inputs, Outputs: m.Outputs,
		})
		sigs, err := d.TransactionSign(ctx, ack.Inputs, ack.Outputs)
		if err != nil {
			return nil, err
		}

		resp := &hwwire.ResponseTransactionSign{}
		for _, sig := range sigs {
			resp.Signatures = append(resp.Signatures, sig.Hex())
		}

		return resp, nil

	case *hwwire.GetRawEntropy:
		b, err := d.GetRawEntropy(ctx, m.Size)
		if err != nil {
			return nil, err
		}

		return &hwwire.Entropy{Entropy: b}, nil

	case *hwwire.GetMixedEntropy:
		b, err := d.GetMixedEntropy(ctx, m.Size)
		if err != nil {
			return nil, err
		}

		return &hwwire.Entropy{Entropy: b}, nil

	case *hwwire.LoadDevice:
		err := d.LoadDevice(ctx, device.LoadRequest{
			Mnemonic:             m.Mnemonic,
			SkipChecksum:         m.SkipChecksum,
			Pin:                  m.Pin,
			PassphraseProtection: m.PassphraseProtection,
			Label:                m.Label,
		})
		return success("Device loaded"), err

	case *hwwire.ResetDevice:
		req := device.ResetRequest{
			Strength:             m.Strength.UnwrapOr(0),
			DisplayRandom:        m.DisplayRandom,
			PassphraseProtection: m.PassphraseProtection,
			PinProtection:        m.PinProtection,
			Label:                m.Label,
			SkipBackup:           m.SkipBackup,
		}
		err := s.withHostEntropy(ctx, func() error {
			return d.ResetDevice(ctx, req)
		})
		return success("Device successfully initialized"), err

	case *hwwire.RecoveryDevice:
		err := d.RecoveryDevice(ctx, device.RecoveryRequest{
			WordCount:            m.WordCount.UnwrapOr(0),
			PassphraseProtection: m.PassphraseProtection,
			PinProtection:        m.PinProtection,
			Label:                m.Label,
			DryRun:               m.DryRun,
		})
		if m.DryRun {
			return success("The seed is valid and matches the one " +
				"in the device"), err
		}

		return success("Device recovered"), err

	default:
		return nil, fmt.Errorf("%w: %v", device.ErrUnexpectedMessage,
			msg.MsgType())
	}
}

// generateMnemonic runs GenerateMnemonic, asking the host for entropy first
// when the device needs it.
func (s *Server) generateMnemonic(ctx context.Context,
	m *hwwire.GenerateMnemonic) error {

	count := m.WordCount.UnwrapOr(defaultWordCount)

	return s.withHostEntropy(ctx, func() error {
		return s.dev.GenerateMnemonic(ctx, count, m.PassphraseProtection)
	})
}

// withHostEntropy runs f once more after an EntropyRequest round trip when
// its first run reports that the device lacks host entropy.
func (s *Server) withHostEntropy(ctx context.Context, f func() error) error {
	err := f()
	if !errors.Is(err, device.ErrEntropyRequired) {
		return err
	}

	reply, err := s.request(ctx, &hwwire.EntropyRequest{})
	if err != nil {
		return err
	}
	ack, ok := reply.(*hwwire.EntropyAck)
	if !ok {
		return unexpectedReply(reply, hwwire.MsgEntropyRequest)
	}
	if err := s.dev.EntropyAck(ack.Entropy); err != nil {
		return err
	}

	return f()
}

func joinLines(text []string) string {
	return strings.Join(text, "\n")
}

func featuresMsg(f *device.Features) *hwwire.Features {
	return &hwwire.Features{
		Vendor:               f.Vendor,
		Version:              f.Version,
		Model:                f.Model,
		DeviceID:             f.DeviceID,
		Label:                f.Label,
		Language:             f.Language,
		Initialized:          f.Initialized,
		PinProtection:        f.PinProtection,
		PassphraseProtection: f.PassphraseProtection,
		PinCached:            f.PinCached,
		PassphraseCached:     f.PassphraseCached,
		NeedsBackup:          f.NeedsBackup,
		Emulator:             f.Emulator,
	}
}

func signTxFromWire(m *hwwire.SignTx) txsign.SignTx {
	return txsign.SignTx{
		NbIn:     m.NbIn,
		NbOut:    m.NbOut,
		CoinName: m.CoinName,
		Version:  m.Version,
		LockTime: m.LockTime,
		TxHash:   m.TxHash,
	}
}

func txAckFromWire(m *hwwire.TxAck) txsign.TxAck {
	var ack txsign.TxAck
	for _, in := range m.Inputs {
		ack.Inputs = append(ack.Inputs, txsign.Input{
			Hash:     in.Hash,
			AddressN: in.AddressN,
		})
	}
	for _, out := range m.Outputs {
		ack.Outputs = append(ack.Outputs, txsign.Output{
			Address:  out.Address,
			Coins:    out.Coins,
			Hours:    out.Hours,
			AddressN: out.AddressN,
		})
	}

	return ack
}

func txRequestMsg(req *txsign.TxRequest) *hwwire.TxRequest {
	msg := &hwwire.TxRequest{
		Type:         uint8(req.Type),
		RequestIndex: req.RequestIndex,
		TxHash:       req.TxHash,
	}
	for _, res := range req.SignResults {
		msg.SignResults = append(msg.SignResults, hwwire.TxSignResult{
			Index:     res.Index,
			Signature: res.Signature,
		})
	}

	return msg
}
