package wire_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ssouza/wamd/internal/crypto"
	"github.com/ssouza/wamd/internal/domain"
	"github.com/ssouza/wamd/internal/wire"
)

func randomPub(t *testing.T) domain.X25519Public {
	t.Helper()
	var pub domain.X25519Public
	copy(pub[:], crypto.Random(32))
	return pub
}

func TestWhisperMessage_RoundTrip(t *testing.T) {
	in := &wire.WhisperMessage{
		RatchetKey:      randomPub(t),
		Counter:         7,
		PreviousCounter: 3,
		Ciphertext:      []byte("ciphertext"),
	}
	frame := in.Marshal()
	mac := bytes.Repeat([]byte{0xAB}, wire.MACSize)
	payload := append(append([]byte(nil), frame...), mac...)

	out, gotFrame, gotMAC, err := wire.ParseWhisperMessage(payload)
	if err != nil {
		t.Fatalf("ParseWhisperMessage: %v", err)
	}
	if out.RatchetKey != in.RatchetKey || out.Counter != 7 || out.PreviousCounter != 3 {
		t.Fatalf("fields: %+v", out)
	}
	if !bytes.Equal(out.Ciphertext, in.Ciphertext) {
		t.Fatal("ciphertext mismatch")
	}
	if !bytes.Equal(gotFrame, frame) || !bytes.Equal(gotMAC, mac) {
		t.Fatal("frame/mac split mismatch")
	}
}

func TestWhisperMessage_RejectsBadVersion(t *testing.T) {
	in := &wire.WhisperMessage{RatchetKey: randomPub(t), Ciphertext: []byte("x")}
	payload := in.Marshal()
	payload = append(payload, bytes.Repeat([]byte{0}, wire.MACSize)...)
	payload[0] = 0x22 // version 2

	if _, _, _, err := wire.ParseWhisperMessage(payload); !errors.Is(err, domain.ErrInvalidVersion) {
		t.Fatalf("got %v, want ErrInvalidVersion", err)
	}
}

func TestPreKeyWhisperMessage_RoundTrip(t *testing.T) {
	id := uint32(42)
	in := &wire.PreKeyWhisperMessage{
		RegistrationID: 99,
		PreKeyID:       &id,
		SignedPreKeyID: 7,
		BaseKey:        randomPub(t),
		IdentityKey:    randomPub(t),
		Message:        []byte("inner whisper"),
	}
	out, err := wire.ParsePreKeyWhisperMessage(in.Marshal())
	if err != nil {
		t.Fatalf("ParsePreKeyWhisperMessage: %v", err)
	}
	if out.RegistrationID != 99 || out.SignedPreKeyID != 7 {
		t.Fatalf("fields: %+v", out)
	}
	if out.PreKeyID == nil || *out.PreKeyID != 42 {
		t.Fatalf("pre-key id: %v", out.PreKeyID)
	}
	if out.BaseKey != in.BaseKey || out.IdentityKey != in.IdentityKey {
		t.Fatal("key mismatch")
	}
	if !bytes.Equal(out.Message, in.Message) {
		t.Fatal("inner message mismatch")
	}
}

func TestPreKeyWhisperMessage_OptionalPreKeyID(t *testing.T) {
	in := &wire.PreKeyWhisperMessage{
		RegistrationID: 1,
		SignedPreKeyID: 2,
		BaseKey:        randomPub(t),
		IdentityKey:    randomPub(t),
		Message:        []byte("m"),
	}
	out, err := wire.ParsePreKeyWhisperMessage(in.Marshal())
	if err != nil {
		t.Fatalf("ParsePreKeyWhisperMessage: %v", err)
	}
	if out.PreKeyID != nil {
		t.Fatalf("pre-key id should be absent, got %d", *out.PreKeyID)
	}
}

func TestSenderKeyMessage_RoundTrip(t *testing.T) {
	in := &wire.SenderKeyMessage{KeyID: 5, Iteration: 11, Ciphertext: []byte("group ct")}
	frame := in.Marshal()
	var sig domain.Signature
	copy(sig[:], crypto.Random(64))
	payload := append(append([]byte(nil), frame...), sig[:]...)

	out, gotFrame, gotSig, err := wire.ParseSenderKeyMessage(payload)
	if err != nil {
		t.Fatalf("ParseSenderKeyMessage: %v", err)
	}
	if out.KeyID != 5 || out.Iteration != 11 || !bytes.Equal(out.Ciphertext, in.Ciphertext) {
		t.Fatalf("fields: %+v", out)
	}
	if !bytes.Equal(gotFrame, frame) || gotSig != sig {
		t.Fatal("frame/signature split mismatch")
	}
}

func TestSenderKeyDistributionMessage_RoundTrip(t *testing.T) {
	in := &wire.SenderKeyDistributionMessage{
		KeyID:      31,
		Iteration:  4,
		ChainKey:   crypto.Random(32),
		SigningKey: randomPub(t),
	}
	out, err := wire.ParseSenderKeyDistributionMessage(in.Marshal())
	if err != nil {
		t.Fatalf("ParseSenderKeyDistributionMessage: %v", err)
	}
	if out.KeyID != 31 || out.Iteration != 4 || out.SigningKey != in.SigningKey {
		t.Fatalf("fields: %+v", out)
	}
	if !bytes.Equal(out.ChainKey, in.ChainKey) {
		t.Fatal("chain key mismatch")
	}
}
