package x3dh

import (
	"github.com/ssouza/wamd/internal/crypto"
	"github.com/ssouza/wamd/internal/domain"
	"github.com/ssouza/wamd/internal/util/memzero"
)

var infoText = []byte("WhisperText")

// discover is the all-0xFF block prepended to the DH transcript so the
// derivation domain never collides with a raw DH output.
var discover = func() []byte {
	b := make([]byte, 32)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}()

// Keys is the agreed secret split into root and first chain key.
type Keys struct {
	RootKey  []byte
	ChainKey []byte
}

// InitiatorKeys derives the session secret on the initiating side.
// ourEph is the fresh base key; peerOPK may be nil.
func InitiatorKeys(
	ourIdentity domain.KeyPair,
	ourEph domain.KeyPair,
	peerIdentity domain.X25519Public,
	peerSPK domain.X25519Public,
	peerOPK *domain.X25519Public,
) (Keys, error) {
	dh1, err := crypto.DH(ourIdentity.Priv, peerSPK)
	if err != nil {
		return Keys{}, err
	}
	dh2, err := crypto.DH(ourEph.Priv, peerIdentity)
	if err != nil {
		return Keys{}, err
	}
	dh3, err := crypto.DH(ourEph.Priv, peerSPK)
	if err != nil {
		return Keys{}, err
	}
	var dh4 *[32]byte
	if peerOPK != nil {
		v, err := crypto.DH(ourEph.Priv, *peerOPK)
		if err != nil {
			return Keys{}, err
		}
		dh4 = &v
	}
	return derive(dh1, dh2, dh3, dh4)
}

// ResponderKeys mirrors InitiatorKeys with the local private halves.
// ourOPK may be nil when the initiator used no one-time pre-key.
func ResponderKeys(
	ourIdentity domain.KeyPair,
	ourSPK domain.KeyPair,
	ourOPK *domain.KeyPair,
	peerIdentity domain.X25519Public,
	peerBaseKey domain.X25519Public,
) (Keys, error) {
	dh1, err := crypto.DH(ourSPK.Priv, peerIdentity)
	if err != nil {
		return Keys{}, err
	}
	dh2, err := crypto.DH(ourIdentity.Priv, peerBaseKey)
	if err != nil {
		return Keys{}, err
	}
	dh3, err := crypto.DH(ourSPK.Priv, peerBaseKey)
	if err != nil {
		return Keys{}, err
	}
	var dh4 *[32]byte
	if ourOPK != nil {
		v, err := crypto.DH(ourOPK.Priv, peerBaseKey)
		if err != nil {
			return Keys{}, err
		}
		dh4 = &v
	}
	return derive(dh1, dh2, dh3, dh4)
}

// VerifySignedPreKey checks the bundle signature over the signed
// pre-key public.
func VerifySignedPreKey(identity domain.X25519Public, spk domain.X25519Public, sig domain.Signature) bool {
	return crypto.Verify(identity, spk.Slice(), sig)
}

func derive(dh1, dh2, dh3 [32]byte, dh4 *[32]byte) (Keys, error) {
	master := make([]byte, 0, 32*5)
	master = append(master, discover...)
	master = append(master, dh1[:]...)
	master = append(master, dh2[:]...)
	master = append(master, dh3[:]...)
	if dh4 != nil {
		master = append(master, dh4[:]...)
	}
	okm, err := crypto.HKDF(master, nil, infoText, 64)
	memzero.Zero(master)
	memzero.Zero(dh1[:])
	memzero.Zero(dh2[:])
	memzero.Zero(dh3[:])
	if dh4 != nil {
		memzero.Zero(dh4[:])
	}
	if err != nil {
		return Keys{}, err
	}
	return Keys{RootKey: okm[:32], ChainKey: okm[32:]}, nil
}
