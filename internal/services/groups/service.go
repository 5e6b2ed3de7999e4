package groups

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ssouza/wamd/internal/crypto"
	"github.com/ssouza/wamd/internal/domain"
	"github.com/ssouza/wamd/internal/keys"
	"github.com/ssouza/wamd/internal/protocol/ratchet"
	"github.com/ssouza/wamd/internal/wire"
)

// Config bounds the group ratchet state.
type Config struct {
	MaxStates      int
	MaxMessageKeys int
}

// DefaultConfig mirrors the protocol limits.
func DefaultConfig() Config {
	return Config{MaxStates: 5, MaxMessageKeys: 2000}
}

// Service manages sender-key records through the keys aggregate.
type Service struct {
	keys *keys.Keys
	cfg  Config
}

// New constructs the group service.
func New(ks *keys.Keys, cfg Config) *Service {
	return &Service{keys: ks, cfg: cfg}
}

// CreateDistribution returns the framed distribution message for our
// own ratchet in name's group, creating the ratchet on first use. The
// message carries the current iteration so late joiners only read
// forward.
func (s *Service) CreateDistribution(ctx context.Context, name domain.SenderKeyName) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := s.keys.SenderKey(name)
	var work *domain.SenderKeyRecord
	if ok {
		work = rec.Clone()
	} else {
		work = &domain.SenderKeyRecord{}
	}

	st := work.Current()
	if st == nil || st.SigningPriv == nil {
		signing, err := crypto.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		st = &domain.SenderKeyState{
			KeyID:       randomKeyID(),
			ChainKey:    crypto.Random(32),
			SigningPub:  signing.Pub,
			SigningPriv: &signing.Priv,
			MessageKeys: make(map[uint32][]byte),
		}
		work.States = append([]*domain.SenderKeyState{st}, work.States...)
		if len(work.States) > s.cfg.MaxStates {
			work.States = work.States[:s.cfg.MaxStates]
		}
		s.keys.PutSenderKey(name, work)
	}

	msg := &wire.SenderKeyDistributionMessage{
		KeyID:      st.KeyID,
		Iteration:  st.Counter,
		ChainKey:   append([]byte(nil), st.ChainKey...),
		SigningKey: st.SigningPub,
	}
	return msg.Marshal(), nil
}

// ProcessDistribution installs a peer's ratchet state for name.
func (s *Service) ProcessDistribution(ctx context.Context, name domain.SenderKeyName, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := wire.ParseSenderKeyDistributionMessage(payload)
	if err != nil {
		return err
	}

	rec, ok := s.keys.SenderKey(name)
	var work *domain.SenderKeyRecord
	if ok {
		work = rec.Clone()
	} else {
		work = &domain.SenderKeyRecord{}
	}
	work.States = append([]*domain.SenderKeyState{{
		KeyID:       msg.KeyID,
		ChainKey:    append([]byte(nil), msg.ChainKey...),
		Counter:     msg.Iteration,
		SigningPub:  msg.SigningKey,
		MessageKeys: make(map[uint32][]byte),
	}}, work.States...)
	if len(work.States) > s.cfg.MaxStates {
		work.States = work.States[:s.cfg.MaxStates]
	}
	s.keys.PutSenderKey(name, work)
	return nil
}

// Encrypt walks our group chain one step and returns the signed frame.
func (s *Service) Encrypt(ctx context.Context, name domain.SenderKeyName, plaintext []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := s.keys.SenderKey(name)
	if !ok {
		return nil, fmt.Errorf("%w: sender key %s", domain.ErrNoValidSessions, name)
	}
	work := rec.Clone()
	st := work.Current()
	if st == nil || st.SigningPriv == nil {
		return nil, fmt.Errorf("%w: no sending state for %s", domain.ErrNoValidSessions, name)
	}

	seed := ratchet.MessageKeySeed(st.ChainKey)
	gk, err := ratchet.DeriveGroupKeys(seed)
	if err != nil {
		return nil, err
	}
	defer gk.Wipe()

	ct, err := crypto.EncryptCBC(gk.CipherKey, gk.IV, plaintext)
	if err != nil {
		return nil, err
	}
	msg := &wire.SenderKeyMessage{KeyID: st.KeyID, Iteration: st.Counter, Ciphertext: ct}
	frame := msg.Marshal()
	sig, err := crypto.Sign(*st.SigningPriv, frame)
	if err != nil {
		return nil, err
	}

	st.ChainKey = ratchet.NextChainKey(st.ChainKey)
	st.Counter++
	s.keys.PutSenderKey(name, work)
	return append(frame, sig[:]...), nil
}

// Decrypt verifies and opens one group frame from name's sender.
func (s *Service) Decrypt(ctx context.Context, name domain.SenderKeyName, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := s.keys.SenderKey(name)
	if !ok {
		return nil, fmt.Errorf("%w: sender key %s", domain.ErrNoValidSessions, name)
	}
	msg, frame, sig, err := wire.ParseSenderKeyMessage(payload)
	if err != nil {
		return nil, err
	}

	work := rec.Clone()
	st := work.State(msg.KeyID)
	if st == nil {
		return nil, fmt.Errorf("%w: sender key id %d", domain.ErrInvalidKeyID, msg.KeyID)
	}
	if !crypto.Verify(st.SigningPub, frame, sig) {
		return nil, fmt.Errorf("%w: sender key frame", domain.ErrInvalidSignature)
	}

	seed, err := s.messageKeySeed(st, msg.Iteration)
	if err != nil {
		return nil, err
	}
	gk, err := ratchet.DeriveGroupKeys(seed)
	if err != nil {
		return nil, err
	}
	defer gk.Wipe()

	pt, err := crypto.DecryptCBC(gk.CipherKey, gk.IV, msg.Ciphertext)
	if err != nil {
		return nil, err
	}
	s.keys.PutSenderKey(name, work)
	return pt, nil
}

// messageKeySeed resolves the seed for one iteration, stashing seeds
// for skipped iterations within the bounded-map policy.
func (s *Service) messageKeySeed(st *domain.SenderKeyState, iteration uint32) ([]byte, error) {
	if iteration < st.Counter {
		seed, ok := st.MessageKeys[iteration]
		if !ok {
			return nil, fmt.Errorf("%w: iteration %d", domain.ErrDuplicateMessage, iteration)
		}
		delete(st.MessageKeys, iteration)
		return seed, nil
	}
	needed := int(iteration - st.Counter)
	if len(st.MessageKeys)+needed > s.cfg.MaxMessageKeys {
		evict := len(st.MessageKeys) + needed - s.cfg.MaxMessageKeys
		evictOldest(st.MessageKeys, evict)
		if len(st.MessageKeys)+needed > s.cfg.MaxMessageKeys {
			return nil, fmt.Errorf("%w: %d pending for sender key", domain.ErrTooManySkipped, needed)
		}
	}
	if st.MessageKeys == nil {
		st.MessageKeys = make(map[uint32][]byte, needed)
	}
	for n := st.Counter; n < iteration; n++ {
		st.MessageKeys[n] = ratchet.MessageKeySeed(st.ChainKey)
		st.ChainKey = ratchet.NextChainKey(st.ChainKey)
	}
	seed := ratchet.MessageKeySeed(st.ChainKey)
	st.ChainKey = ratchet.NextChainKey(st.ChainKey)
	st.Counter = iteration + 1
	return seed, nil
}

func evictOldest(m map[uint32][]byte, n int) {
	for ; n > 0 && len(m) > 0; n-- {
		oldest := uint32(0)
		first := true
		for k := range m {
			if first || k < oldest {
				oldest = k
				first = false
			}
		}
		delete(m, oldest)
	}
}

// randomKeyID draws a 31-bit id so it survives signed transports.
func randomKeyID() uint32 {
	b := crypto.Random(4)
	return binary.BigEndian.Uint32(b) & 0x7FFFFFFF
}
