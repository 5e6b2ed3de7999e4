package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"math/big"

	"filippo.io/edwards25519"

	"github.com/ssouza/wamd/internal/domain"
	"github.com/ssouza/wamd/internal/util/memzero"
)

// XEdDSA: Ed25519-compatible signatures produced with Curve25519 key
// pairs. The signer derives the Edwards public point from the
// Montgomery scalar and carries its sign bit in the high bit of the
// final signature byte; the verifier maps the Montgomery public key
// onto the birationally equivalent Edwards point using that bit.

var curveP, _ = new(big.Int).SetString(
	"57896044618658097711785492504343953926634992332820282019728792003956564819949", 10)

// Sign produces a 64-byte XEdDSA signature over msg with a Curve25519
// private key. The per-signature nonce mixes the private key, the
// message and 64 fresh random bytes, so a broken RNG degrades to
// deterministic signing rather than nonce reuse.
func Sign(priv domain.X25519Private, msg []byte) (domain.Signature, error) {
	var sig domain.Signature

	a, err := edwards25519.NewScalar().SetBytesWithClamping(priv.Slice())
	if err != nil {
		return sig, err
	}
	A := (&edwards25519.Point{}).ScalarBaseMult(a)
	ab := A.Bytes()
	signBit := ab[31] & 0x80

	z := make([]byte, 64)
	if _, err := rand.Read(z); err != nil {
		return sig, err
	}
	ikm := make([]byte, 0, 32+len(msg)+64)
	ikm = append(ikm, priv.Slice()...)
	ikm = append(ikm, msg...)
	ikm = append(ikm, z...)
	nonce, err := HKDF(ikm, nil, []byte("XEdDSA Nonce"), 64)
	memzero.Zero(ikm)
	if err != nil {
		return sig, err
	}
	r, err := edwards25519.NewScalar().SetUniformBytes(nonce)
	memzero.Zero(nonce)
	if err != nil {
		return sig, err
	}
	R := (&edwards25519.Point{}).ScalarBaseMult(r)
	rb := R.Bytes()

	h := sha512.New()
	h.Write(rb)
	h.Write(ab)
	h.Write(msg)
	k, err := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	if err != nil {
		return sig, err
	}
	s := edwards25519.NewScalar().MultiplyAdd(k, a, r)

	copy(sig[:32], rb)
	copy(sig[32:], s.Bytes())
	sig[63] |= signBit
	return sig, nil
}

// Verify checks an XEdDSA signature against a Curve25519 public key.
func Verify(pub domain.X25519Public, msg []byte, sig domain.Signature) bool {
	edPub, ok := montgomeryToEdwards(pub, sig[63]&0x80)
	if !ok {
		return false
	}
	var clean [64]byte
	copy(clean[:], sig[:])
	clean[63] &= 0x7f
	return ed25519.Verify(ed25519.PublicKey(edPub), msg, clean[:])
}

// montgomeryToEdwards maps u to the Edwards y-coordinate
// y = (u - 1) / (u + 1) mod p and stamps the given sign bit. Public
// inputs only, so big.Int arithmetic is acceptable here.
func montgomeryToEdwards(pub domain.X25519Public, signBit byte) ([]byte, bool) {
	ub := make([]byte, 32)
	for i := range ub {
		ub[i] = pub[31-i]
	}
	ub[0] &= 0x7f // the Montgomery encoding ignores the top bit

	u := new(big.Int).SetBytes(ub)
	if u.Cmp(curveP) >= 0 {
		return nil, false
	}
	one := big.NewInt(1)
	den := new(big.Int).Add(u, one)
	den.Mod(den, curveP)
	if den.Sign() == 0 {
		return nil, false
	}
	den.ModInverse(den, curveP)
	y := new(big.Int).Sub(u, one)
	y.Mul(y, den)
	y.Mod(y, curveP)

	out := make([]byte, 32)
	yb := y.Bytes()
	for i := range yb {
		out[i] = yb[len(yb)-1-i]
	}
	out[31] |= signBit

	// Reject encodings that do not land on the curve.
	if _, err := (&edwards25519.Point{}).SetBytes(out); err != nil {
		return nil, false
	}
	return out, true
}
