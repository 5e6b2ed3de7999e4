package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ssouza/wamd/internal/domain"
)

const (
	// CurrentVersion is the ratchet message version in use.
	CurrentVersion = 3
	// VersionByte packs the current version into both nibbles.
	VersionByte = byte(CurrentVersion<<4 | CurrentVersion)

	// MACSize is the truncated HMAC trailing every whisper message.
	MACSize = 8
	// SignatureSize trails every sender-key message.
	SignatureSize = 64
)

// CheckVersion validates a frame's leading version byte.
func CheckVersion(b byte) error {
	if b>>4 != CurrentVersion || b&0x0F > CurrentVersion {
		return fmt.Errorf("%w: %#x", domain.ErrInvalidVersion, b)
	}
	return nil
}

func consumePubField(body []byte, pub *domain.X25519Public) (int, error) {
	v, n := protowire.ConsumeBytes(body)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	if len(v) != 32 {
		return 0, fmt.Errorf("public key length %d", len(v))
	}
	copy(pub[:], v)
	return n, nil
}

// WhisperMessage is the Double Ratchet envelope.
type WhisperMessage struct {
	RatchetKey      domain.X25519Public
	Counter         uint32
	PreviousCounter uint32
	Ciphertext      []byte
}

// Marshal renders version byte plus protobuf body. The caller appends
// the truncated MAC.
func (m *WhisperMessage) Marshal() []byte {
	out := []byte{VersionByte}
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendBytes(out, m.RatchetKey.Slice())
	out = protowire.AppendTag(out, 2, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(m.Counter))
	out = protowire.AppendTag(out, 3, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(m.PreviousCounter))
	out = protowire.AppendTag(out, 4, protowire.BytesType)
	out = protowire.AppendBytes(out, m.Ciphertext)
	return out
}

// ParseWhisperMessage splits a framed whisper message into body and
// trailing MAC. The returned frame is the portion the MAC covers.
func ParseWhisperMessage(payload []byte) (msg *WhisperMessage, frame, mac []byte, err error) {
	if len(payload) < 1+MACSize {
		return nil, nil, nil, fmt.Errorf("whisper message too short: %d bytes", len(payload))
	}
	if err := CheckVersion(payload[0]); err != nil {
		return nil, nil, nil, err
	}
	frame = payload[:len(payload)-MACSize]
	mac = payload[len(payload)-MACSize:]

	msg = &WhisperMessage{}
	err = scanFields(frame[1:], func(num protowire.Number, typ protowire.Type, body []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumePubField(body, &msg.RatchetKey)
		case num == 2 && typ == protowire.VarintType:
			v, n, err := consumeVarintField(body)
			msg.Counter = uint32(v)
			return n, err
		case num == 3 && typ == protowire.VarintType:
			v, n, err := consumeVarintField(body)
			msg.PreviousCounter = uint32(v)
			return n, err
		case num == 4 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			msg.Ciphertext = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return msg, frame, mac, nil
}

// PreKeyWhisperMessage wraps the first whisper messages of a session
// together with the X3DH public material.
type PreKeyWhisperMessage struct {
	RegistrationID uint32
	PreKeyID       *uint32
	SignedPreKeyID uint32
	BaseKey        domain.X25519Public
	IdentityKey    domain.X25519Public
	Message        []byte // a framed WhisperMessage, MAC included
}

// Marshal renders version byte plus protobuf body.
func (m *PreKeyWhisperMessage) Marshal() []byte {
	out := []byte{VersionByte}
	if m.PreKeyID != nil {
		out = protowire.AppendTag(out, 1, protowire.VarintType)
		out = protowire.AppendVarint(out, uint64(*m.PreKeyID))
	}
	out = protowire.AppendTag(out, 2, protowire.BytesType)
	out = protowire.AppendBytes(out, m.BaseKey.Slice())
	out = protowire.AppendTag(out, 3, protowire.BytesType)
	out = protowire.AppendBytes(out, m.IdentityKey.Slice())
	out = protowire.AppendTag(out, 4, protowire.BytesType)
	out = protowire.AppendBytes(out, m.Message)
	out = protowire.AppendTag(out, 5, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(m.RegistrationID))
	out = protowire.AppendTag(out, 6, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(m.SignedPreKeyID))
	return out
}

// ParsePreKeyWhisperMessage decodes a framed pre-key message.
func ParsePreKeyWhisperMessage(payload []byte) (*PreKeyWhisperMessage, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("pre-key message too short: %d bytes", len(payload))
	}
	if err := CheckVersion(payload[0]); err != nil {
		return nil, err
	}
	msg := &PreKeyWhisperMessage{}
	err := scanFields(payload[1:], func(num protowire.Number, typ protowire.Type, body []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarintField(body)
			id := uint32(v)
			msg.PreKeyID = &id
			return n, err
		case num == 2 && typ == protowire.BytesType:
			return consumePubField(body, &msg.BaseKey)
		case num == 3 && typ == protowire.BytesType:
			return consumePubField(body, &msg.IdentityKey)
		case num == 4 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			msg.Message = v
			return n, err
		case num == 5 && typ == protowire.VarintType:
			v, n, err := consumeVarintField(body)
			msg.RegistrationID = uint32(v)
			return n, err
		case num == 6 && typ == protowire.VarintType:
			v, n, err := consumeVarintField(body)
			msg.SignedPreKeyID = uint32(v)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// SenderKeyMessage is the group ratchet envelope. The signature over
// the frame trails it.
type SenderKeyMessage struct {
	KeyID      uint32
	Iteration  uint32
	Ciphertext []byte
}

// Marshal renders version byte plus protobuf body. The caller appends
// the signature.
func (m *SenderKeyMessage) Marshal() []byte {
	out := []byte{VersionByte}
	out = protowire.AppendTag(out, 1, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(m.KeyID))
	out = protowire.AppendTag(out, 2, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(m.Iteration))
	out = protowire.AppendTag(out, 3, protowire.BytesType)
	out = protowire.AppendBytes(out, m.Ciphertext)
	return out
}

// ParseSenderKeyMessage splits a framed sender-key message into body
// and trailing signature. The returned frame is the signed portion.
func ParseSenderKeyMessage(payload []byte) (msg *SenderKeyMessage, frame []byte, sig domain.Signature, err error) {
	if len(payload) < 1+SignatureSize {
		return nil, nil, sig, fmt.Errorf("sender-key message too short: %d bytes", len(payload))
	}
	if err := CheckVersion(payload[0]); err != nil {
		return nil, nil, sig, err
	}
	frame = payload[:len(payload)-SignatureSize]
	copy(sig[:], payload[len(payload)-SignatureSize:])

	msg = &SenderKeyMessage{}
	err = scanFields(frame[1:], func(num protowire.Number, typ protowire.Type, body []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarintField(body)
			msg.KeyID = uint32(v)
			return n, err
		case num == 2 && typ == protowire.VarintType:
			v, n, err := consumeVarintField(body)
			msg.Iteration = uint32(v)
			return n, err
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			msg.Ciphertext = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, nil, sig, err
	}
	return msg, frame, sig, nil
}

// SenderKeyDistributionMessage hands a group ratchet state to a
// recipient over a pairwise session.
type SenderKeyDistributionMessage struct {
	KeyID      uint32
	Iteration  uint32
	ChainKey   []byte
	SigningKey domain.X25519Public
}

// Marshal renders version byte plus protobuf body.
func (m *SenderKeyDistributionMessage) Marshal() []byte {
	out := []byte{VersionByte}
	out = protowire.AppendTag(out, 1, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(m.KeyID))
	out = protowire.AppendTag(out, 2, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(m.Iteration))
	out = protowire.AppendTag(out, 3, protowire.BytesType)
	out = protowire.AppendBytes(out, m.ChainKey)
	out = protowire.AppendTag(out, 4, protowire.BytesType)
	out = protowire.AppendBytes(out, m.SigningKey.Slice())
	return out
}

// ParseSenderKeyDistributionMessage decodes a framed distribution
// message.
func ParseSenderKeyDistributionMessage(payload []byte) (*SenderKeyDistributionMessage, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("distribution message too short: %d bytes", len(payload))
	}
	if err := CheckVersion(payload[0]); err != nil {
		return nil, err
	}
	msg := &SenderKeyDistributionMessage{}
	err := scanFields(payload[1:], func(num protowire.Number, typ protowire.Type, body []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarintField(body)
			msg.KeyID = uint32(v)
			return n, err
		case num == 2 && typ == protowire.VarintType:
			v, n, err := consumeVarintField(body)
			msg.Iteration = uint32(v)
			return n, err
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			msg.ChainKey = v
			return n, err
		case num == 4 && typ == protowire.BytesType:
			return consumePubField(body, &msg.SigningKey)
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}
