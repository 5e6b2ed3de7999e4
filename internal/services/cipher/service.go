package cipher

import (
	"context"
	"errors"
	"fmt"

	"github.com/ssouza/wamd/internal/crypto"
	"github.com/ssouza/wamd/internal/domain"
	"github.com/ssouza/wamd/internal/keys"
	"github.com/ssouza/wamd/internal/protocol/ratchet"
	"github.com/ssouza/wamd/internal/protocol/x3dh"
	"github.com/ssouza/wamd/internal/services/groups"
	"github.com/ssouza/wamd/internal/wire"
)

// Kind tags a ciphertext envelope.
type Kind string

// Envelope kinds as they appear on the wire.
const (
	KindPreKey    Kind = "pkmsg"
	KindMessage   Kind = "msg"
	KindSenderKey Kind = "skmsg"
)

// Config bounds the ratchet state.
type Config struct {
	MaxSkippedPerChain int
	MaxTotalSkipped    int
	MaxReceiveChains   int
}

// DefaultConfig mirrors the protocol limits.
func DefaultConfig() Config {
	return Config{
		MaxSkippedPerChain: 2000,
		MaxTotalSkipped:    2000,
		MaxReceiveChains:   5,
	}
}

// Envelope is one inbound ciphertext with its routing tags. Chat names
// the group for sender-key messages and is empty otherwise.
type Envelope struct {
	Kind    Kind
	From    domain.SessionAddress
	Chat    string
	Payload []byte
}

// Service is the session cipher and inbound/outbound dispatcher.
type Service struct {
	keys   *keys.Keys
	groups *groups.Service
	cfg    Config
}

// New constructs the cipher service.
func New(ks *keys.Keys, gs *groups.Service, cfg Config) *Service {
	return &Service{keys: ks, groups: gs, cfg: cfg}
}

// InitiateSession runs X3DH against a peer bundle and stores the
// pending session. Until the peer answers, outbound messages carry the
// handshake as pkmsg.
func (s *Service) InitiateSession(ctx context.Context, to domain.SessionAddress, bundle *domain.PreKeyBundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !x3dh.VerifySignedPreKey(bundle.IdentityKey, bundle.SignedPreKey, bundle.SignedPreKeySignature) {
		return fmt.Errorf("%w: signed pre-key of %s", domain.ErrInvalidSignature, to)
	}
	if err := s.keys.TrustIdentity(to, bundle.IdentityKey); err != nil {
		return err
	}

	baseKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	sess, err := initiatorSession(s.keys.IdentityKeyPair, baseKey, bundle)
	if err != nil {
		return err
	}
	s.keys.PutSession(to, sess)
	return nil
}

// ProcessOutbound encrypts plaintext for one recipient and reports the
// envelope kind it produced. A sender-key hint routes through the
// group ratchet for chat.
func (s *Service) ProcessOutbound(ctx context.Context, to domain.SessionAddress, chat string, plaintext []byte, hint Kind) (Kind, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if hint == KindSenderKey {
		name := domain.NewSenderKeyName(chat, to)
		ct, err := s.groups.Encrypt(ctx, name, plaintext)
		return KindSenderKey, ct, err
	}
	return s.encryptMessage(to, plaintext)
}

// ProcessInbound routes one ciphertext envelope and returns the
// plaintext. Identity mismatches and exhausted counters destroy the
// session before the error is surfaced.
func (s *Service) ProcessInbound(ctx context.Context, env Envelope) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		pt  []byte
		err error
	)
	switch env.Kind {
	case KindPreKey:
		pt, err = s.decryptPreKeyMessage(env.From, env.Payload)
	case KindMessage:
		pt, err = s.decryptWhisperMessage(env.From, env.Payload)
	case KindSenderKey:
		pt, err = s.groups.Decrypt(ctx, domain.NewSenderKeyName(env.Chat, env.From), env.Payload)
	default:
		return nil, fmt.Errorf("unknown envelope kind %q", env.Kind)
	}
	if errors.Is(err, domain.ErrUntrustedIdentity) || errors.Is(err, domain.ErrCounterOverflow) {
		s.keys.DeleteSession(env.From)
	}
	return pt, err
}

// encryptMessage walks the sending chain one step and frames the
// ciphertext, wrapping it as pkmsg while the handshake is unconfirmed.
func (s *Service) encryptMessage(to domain.SessionAddress, plaintext []byte) (Kind, []byte, error) {
	sess, ok := s.keys.Session(to)
	if !ok || sess.Closed || sess.Sending == nil {
		return "", nil, fmt.Errorf("%w: %s", domain.ErrNoValidSessions, to)
	}
	work := sess.Clone()

	seed := ratchet.MessageKeySeed(work.Sending.ChainKey)
	mk, err := ratchet.DeriveMessageKeys(seed)
	if err != nil {
		return "", nil, err
	}
	defer mk.Wipe()

	ct, err := crypto.EncryptCBC(mk.CipherKey, mk.IV, plaintext)
	if err != nil {
		return "", nil, err
	}
	msg := &wire.WhisperMessage{
		RatchetKey:      work.Sending.RatchetPub,
		Counter:         work.Sending.Counter,
		PreviousCounter: work.Sending.PreviousCounter,
		Ciphertext:      ct,
	}
	frame := msg.Marshal()
	mac := whisperMAC(mk.MacKey, s.keys.IdentityKeyPair.Pub, work.TheirIdentity, frame)
	payload := append(frame, mac...)

	work.Sending.ChainKey = ratchet.NextChainKey(work.Sending.ChainKey)
	work.Sending.Counter++

	kind := KindMessage
	if work.Pending != nil {
		pkmsg := &wire.PreKeyWhisperMessage{
			RegistrationID: s.keys.ID,
			PreKeyID:       work.Pending.PreKeyID,
			SignedPreKeyID: work.Pending.SignedPreKeyID,
			BaseKey:        work.Pending.BaseKey,
			IdentityKey:    s.keys.IdentityKeyPair.Pub,
			Message:        payload,
		}
		payload = pkmsg.Marshal()
		kind = KindPreKey
	}

	s.keys.PutSession(to, work)
	return kind, payload, nil
}

// decryptWhisperMessage decrypts a msg envelope against the stored
// session.
func (s *Service) decryptWhisperMessage(from domain.SessionAddress, payload []byte) ([]byte, error) {
	sess, ok := s.keys.Session(from)
	if !ok || sess.Closed {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoValidSessions, from)
	}
	work := sess.Clone()
	pt, err := s.decryptInto(work, payload)
	if err != nil {
		return nil, err
	}
	if err := s.keys.ApplyInbound(from, work, nil, nil); err != nil {
		return nil, err
	}
	return pt, nil
}

// decryptPreKeyMessage handles a pkmsg: prefer the existing session
// (retransmissions land here), otherwise bootstrap the responder side
// from the named pre-keys and decrypt the embedded whisper message.
func (s *Service) decryptPreKeyMessage(from domain.SessionAddress, payload []byte) ([]byte, error) {
	msg, err := wire.ParsePreKeyWhisperMessage(payload)
	if err != nil {
		return nil, err
	}
	if pinned, ok := s.keys.TrustedIdentity(from); ok && pinned != msg.IdentityKey {
		return nil, fmt.Errorf("%w: %s", domain.ErrUntrustedIdentity, from)
	}

	if sess, ok := s.keys.Session(from); ok && !sess.Closed && sess.TheirIdentity == msg.IdentityKey {
		work := sess.Clone()
		if pt, err := s.decryptInto(work, msg.Message); err == nil {
			if err := s.keys.ApplyInbound(from, work, nil, nil); err != nil {
				return nil, err
			}
			return pt, nil
		}
	}

	signed, err := s.keys.SignedPreKeyByID(msg.SignedPreKeyID)
	if err != nil {
		return nil, fmt.Errorf("%w: signed pre-key %d", domain.ErrInvalidKeyID, msg.SignedPreKeyID)
	}
	var oneTime *domain.KeyPair
	if msg.PreKeyID != nil {
		pk, ok := s.keys.PreKey(*msg.PreKeyID)
		if !ok {
			return nil, fmt.Errorf("%w: one-time pre-key %d", domain.ErrInvalidKeyID, *msg.PreKeyID)
		}
		oneTime = &pk.KeyPair
	}

	work, err := responderSession(s.keys.IdentityKeyPair, signed.KeyPair, oneTime, msg)
	if err != nil {
		return nil, err
	}
	pt, err := s.decryptInto(work, msg.Message)
	if err != nil {
		return nil, err
	}
	if err := s.keys.ApplyInbound(from, work, msg.PreKeyID, &msg.IdentityKey); err != nil {
		if errors.Is(err, domain.ErrPreKeyNotFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidKeyID, err)
		}
		return nil, err
	}
	return pt, nil
}

// decryptInto performs the ratchet receive on a working session copy.
func (s *Service) decryptInto(work *domain.Session, payload []byte) ([]byte, error) {
	msg, frame, mac, err := wire.ParseWhisperMessage(payload)
	if err != nil {
		return nil, err
	}

	chain := work.ReceivingChainFor(msg.RatchetKey)
	if chain == nil {
		chain, err = s.stepReceivingRatchet(work, msg.RatchetKey, msg.PreviousCounter)
		if err != nil {
			return nil, err
		}
	}
	seed, err := s.messageKeySeed(work, chain, msg.Counter)
	if err != nil {
		return nil, err
	}
	mk, err := ratchet.DeriveMessageKeys(seed)
	if err != nil {
		return nil, err
	}
	defer mk.Wipe()

	want := whisperMAC(mk.MacKey, work.TheirIdentity, s.keys.IdentityKeyPair.Pub, frame)
	if !crypto.HMACEqual(want, mac) {
		return nil, fmt.Errorf("%w: whisper message", domain.ErrMacMismatch)
	}
	pt, err := crypto.DecryptCBC(mk.CipherKey, mk.IV, msg.Ciphertext)
	if err != nil {
		return nil, err
	}
	work.Pending = nil
	return pt, nil
}
