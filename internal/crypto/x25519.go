package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"

	"github.com/ssouza/wamd/internal/domain"
)

// GenerateKeyPair returns a fresh Curve25519 key pair.
// The private key is clamped per RFC 7748.
func GenerateKeyPair() (domain.KeyPair, error) {
	var priv domain.X25519Private
	if _, err := rand.Read(priv[:]); err != nil {
		return domain.KeyPair{}, err
	}
	clamp(&priv)
	return KeyPairFromPrivate(priv)
}

// KeyPairFromPrivate recomputes the public point for a private scalar.
func KeyPairFromPrivate(priv domain.X25519Private) (domain.KeyPair, error) {
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return domain.KeyPair{}, err
	}
	var pub domain.X25519Public
	copy(pub[:], pb)
	return domain.KeyPair{Priv: priv, Pub: pub}, nil
}

// DH computes X25519 Diffie–Hellman.
func DH(priv domain.X25519Private, pub domain.X25519Public) (out [32]byte, err error) {
	secret, err := curve25519.X25519(priv.Slice(), pub.Slice())
	if err != nil {
		return out, err
	}
	copy(out[:], secret)
	return out, nil
}

// Random returns n cryptographically random bytes.
func Random(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err) // the platform CSPRNG never fails on supported targets
	}
	return b
}

func clamp(k *domain.X25519Private) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
