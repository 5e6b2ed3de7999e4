package wire

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// SignedDeviceIdentityHMAC is the advertisement envelope the primary
// device sends during pairing: the identity details plus an HMAC under
// the companion advertisement secret.
type SignedDeviceIdentityHMAC struct {
	Details []byte
	HMAC    []byte
}

// Marshal renders the envelope.
func (m *SignedDeviceIdentityHMAC) Marshal() []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendBytes(out, m.Details)
	out = protowire.AppendTag(out, 2, protowire.BytesType)
	out = protowire.AppendBytes(out, m.HMAC)
	return out
}

// ParseSignedDeviceIdentityHMAC decodes the envelope.
func ParseSignedDeviceIdentityHMAC(body []byte) (*SignedDeviceIdentityHMAC, error) {
	m := &SignedDeviceIdentityHMAC{}
	err := scanFields(body, func(num protowire.Number, typ protowire.Type, body []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			m.Details = v
			return n, err
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			m.HMAC = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SignedDeviceIdentity carries the companion identity, the primary
// account's signature over it, and (after pairing completes) the
// companion device's counter-signature.
type SignedDeviceIdentity struct {
	Details             []byte
	AccountSignatureKey []byte
	AccountSignature    []byte
	DeviceSignature     []byte
}

// Marshal renders the identity record.
func (m *SignedDeviceIdentity) Marshal() []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendBytes(out, m.Details)
	out = protowire.AppendTag(out, 2, protowire.BytesType)
	out = protowire.AppendBytes(out, m.AccountSignatureKey)
	out = protowire.AppendTag(out, 3, protowire.BytesType)
	out = protowire.AppendBytes(out, m.AccountSignature)
	if m.DeviceSignature != nil {
		out = protowire.AppendTag(out, 4, protowire.BytesType)
		out = protowire.AppendBytes(out, m.DeviceSignature)
	}
	return out
}

// ParseSignedDeviceIdentity decodes the identity record.
func ParseSignedDeviceIdentity(body []byte) (*SignedDeviceIdentity, error) {
	m := &SignedDeviceIdentity{}
	err := scanFields(body, func(num protowire.Number, typ protowire.Type, body []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			m.Details = v
			return n, err
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			m.AccountSignatureKey = v
			return n, err
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			m.AccountSignature = v
			return n, err
		case num == 4 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			m.DeviceSignature = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SyncActionData is the decrypted payload of an app-state mutation:
// the JSON index naming the target, the opaque action value, and
// padding.
type SyncActionData struct {
	Index   []byte
	Value   []byte
	Padding []byte
	Version uint32
}

// Marshal renders the action payload.
func (m *SyncActionData) Marshal() []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendBytes(out, m.Index)
	out = protowire.AppendTag(out, 2, protowire.BytesType)
	out = protowire.AppendBytes(out, m.Value)
	if m.Padding != nil {
		out = protowire.AppendTag(out, 3, protowire.BytesType)
		out = protowire.AppendBytes(out, m.Padding)
	}
	out = protowire.AppendTag(out, 4, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(m.Version))
	return out
}

// ParseSyncActionData decodes the action payload.
func ParseSyncActionData(body []byte) (*SyncActionData, error) {
	m := &SyncActionData{}
	err := scanFields(body, func(num protowire.Number, typ protowire.Type, body []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			m.Index = v
			return n, err
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			m.Value = v
			return n, err
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			m.Padding = v
			return n, err
		case num == 4 && typ == protowire.VarintType:
			v, n, err := consumeVarintField(body)
			m.Version = uint32(v)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
