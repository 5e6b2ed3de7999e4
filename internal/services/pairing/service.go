package pairing

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ssouza/wamd/internal/crypto"
	"github.com/ssouza/wamd/internal/domain"
	"github.com/ssouza/wamd/internal/keys"
	"github.com/ssouza/wamd/internal/wire"
)

// State is the handshake position.
type State int

// Handshake states, in order.
const (
	StateUnpaired State = iota
	StateAdvertisementSent
	StateIdentityProvided
	StatePaired
)

func (s State) String() string {
	switch s {
	case StateUnpaired:
		return "unpaired"
	case StateAdvertisementSent:
		return "advertisement-sent"
	case StateIdentityProvided:
		return "identity-provided"
	case StatePaired:
		return "paired"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Signature prefixes separating the primary's signature domain from
// the companion's.
var (
	accountSignaturePrefix = []byte{0x06, 0x00}
	deviceSignaturePrefix  = []byte{0x06, 0x01}
)

// Service runs the pairing state machine once at session bootstrap.
type Service struct {
	keys *keys.Keys

	mu    sync.Mutex
	state State
	ref   string
}

// New constructs the pairing service. A keys state that already has a
// companion starts out paired.
func New(ks *keys.Keys) *Service {
	s := &Service{keys: ks}
	if ks.HasCompanion() {
		s.state = StatePaired
	}
	return s
}

// State returns the current handshake position.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Advertise opens the handshake and returns the advertisement
// reference the primary device scans.
func (s *Service) Advertise(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnpaired {
		return "", fmt.Errorf("%w: advertise in state %s", domain.ErrPairingRejected, s.state)
	}
	s.ref = uuid.NewString()
	s.state = StateAdvertisementSent
	return s.ref, nil
}

// ProcessIdentity verifies the primary-signed companion identity,
// counter-signs it, persists the binding, and returns the record to
// send back. Any verification failure resets the handshake.
func (s *Service) ProcessIdentity(ctx context.Context, payload []byte, companion string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAdvertisementSent {
		return nil, fmt.Errorf("%w: identity in state %s", domain.ErrPairingRejected, s.state)
	}

	envelope, err := wire.ParseSignedDeviceIdentityHMAC(payload)
	if err != nil {
		return nil, err
	}
	wantHMAC := crypto.HMACSHA256(s.keys.CompanionSecret, envelope.Details)
	if !crypto.HMACEqual(wantHMAC, envelope.HMAC) {
		s.state = StateUnpaired
		return nil, fmt.Errorf("%w: advertisement hmac", domain.ErrPairingRejected)
	}

	identity, err := wire.ParseSignedDeviceIdentity(envelope.Details)
	if err != nil {
		return nil, err
	}
	if len(identity.AccountSignatureKey) != 32 {
		s.state = StateUnpaired
		return nil, fmt.Errorf("%w: account signature key length %d", domain.ErrPairingRejected, len(identity.AccountSignatureKey))
	}
	var accountKey domain.X25519Public
	copy(accountKey[:], identity.AccountSignatureKey)
	var accountSig domain.Signature
	if len(identity.AccountSignature) != len(accountSig) {
		s.state = StateUnpaired
		return nil, fmt.Errorf("%w: account signature length %d", domain.ErrPairingRejected, len(identity.AccountSignature))
	}
	copy(accountSig[:], identity.AccountSignature)

	signed := concat(accountSignaturePrefix, identity.Details, s.keys.IdentityKeyPair.Pub.Slice())
	if !crypto.Verify(accountKey, signed, accountSig) {
		s.state = StateUnpaired
		return nil, fmt.Errorf("%w: account signature", domain.ErrPairingRejected)
	}
	s.state = StateIdentityProvided

	toSign := concat(deviceSignaturePrefix, identity.Details, s.keys.IdentityKeyPair.Pub.Slice(), identity.AccountSignatureKey)
	deviceSig, err := crypto.Sign(s.keys.IdentityKeyPair.Priv, toSign)
	if err != nil {
		return nil, err
	}
	identity.DeviceSignature = deviceSig.Slice()

	record := identity.Marshal()
	s.keys.SetCompanion(companion, record)
	s.state = StatePaired
	return record, nil
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
