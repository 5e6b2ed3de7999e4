package crypto_test

import (
	"testing"

	"github.com/ssouza/wamd/internal/crypto"
	"github.com/ssouza/wamd/internal/domain"
)

// makeKeyPair returns a fresh X25519 key pair.
func makeKeyPair(t *testing.T) domain.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return kp
}

func TestSignVerify_RoundTrip(t *testing.T) {
	kp := makeKeyPair(t)
	msg := []byte("signed pre-key public")

	sig, err := crypto.Sign(kp.Priv, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !crypto.Verify(kp.Pub, msg, sig) {
		t.Fatal("signature did not verify")
	}
}

func TestVerify_RejectsTamperedMessage(t *testing.T) {
	kp := makeKeyPair(t)
	msg := []byte("original")

	sig, err := crypto.Sign(kp.Priv, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if crypto.Verify(kp.Pub, []byte("tampered"), sig) {
		t.Fatal("tampered message verified")
	}
}

func TestVerify_RejectsTamperedSignature(t *testing.T) {
	kp := makeKeyPair(t)
	msg := []byte("payload")

	sig, err := crypto.Sign(kp.Priv, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig[5] ^= 0x01
	if crypto.Verify(kp.Pub, msg, sig) {
		t.Fatal("tampered signature verified")
	}
}

func TestVerify_RejectsWrongKey(t *testing.T) {
	kp := makeKeyPair(t)
	other := makeKeyPair(t)
	msg := []byte("payload")

	sig, err := crypto.Sign(kp.Priv, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if crypto.Verify(other.Pub, msg, sig) {
		t.Fatal("signature verified under the wrong key")
	}
}

func TestSign_SignaturesDifferPerCall(t *testing.T) {
	// The nonce mixes fresh randomness, so two signatures over the same
	// message must differ while both verify.
	kp := makeKeyPair(t)
	msg := []byte("payload")

	sig1, err := crypto.Sign(kp.Priv, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig2, err := crypto.Sign(kp.Priv, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if sig1 == sig2 {
		t.Fatal("two signatures over the same message are identical")
	}
	if !crypto.Verify(kp.Pub, msg, sig1) || !crypto.Verify(kp.Pub, msg, sig2) {
		t.Fatal("randomized signatures did not both verify")
	}
}
