package cipher

import (
	"fmt"

	"github.com/ssouza/wamd/internal/crypto"
	"github.com/ssouza/wamd/internal/domain"
	"github.com/ssouza/wamd/internal/protocol/ratchet"
	"github.com/ssouza/wamd/internal/protocol/x3dh"
	"github.com/ssouza/wamd/internal/util/memzero"
	"github.com/ssouza/wamd/internal/wire"
)

// initiatorSession builds the PENDING_INITIATOR session from a peer
// bundle: X3DH, an initial receiving chain keyed by the signed
// pre-key, and a first DH ratchet step that seeds the sending chain.
func initiatorSession(
	ourIdentity domain.KeyPair,
	baseKey domain.KeyPair,
	bundle *domain.PreKeyBundle,
) (*domain.Session, error) {
	agreed, err := x3dh.InitiatorKeys(ourIdentity, baseKey, bundle.IdentityKey, bundle.SignedPreKey, bundle.PreKey)
	if err != nil {
		return nil, err
	}

	ratchetPair, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	dh, err := crypto.DH(ratchetPair.Priv, bundle.SignedPreKey)
	if err != nil {
		return nil, err
	}
	root, sendChain, err := ratchet.StepRootKey(agreed.RootKey, dh[:])
	memzero.Zero(dh[:])
	if err != nil {
		return nil, err
	}

	return &domain.Session{
		RootKey: root,
		Sending: &domain.SendingChain{
			ChainKey:        sendChain,
			RatchetPriv:     ratchetPair.Priv,
			RatchetPub:      ratchetPair.Pub,
			TheirRatchetPub: bundle.SignedPreKey,
		},
		Receiving: []*domain.ReceivingChain{{
			RatchetPub: bundle.SignedPreKey,
			ChainKey:   agreed.ChainKey,
			Skipped:    make(map[uint32][]byte),
		}},
		Pending: &domain.PendingPreKey{
			PreKeyID:       bundle.PreKeyID,
			SignedPreKeyID: bundle.SignedPreKeyID,
			BaseKey:        baseKey.Pub,
		},
		RegistrationID: bundle.RegistrationID,
		TheirIdentity:  bundle.IdentityKey,
	}, nil
}

// responderSession mirrors the X3DH with the local private halves. The
// signed pre-key pair doubles as the first ratchet key pair, so the
// initiator's first whisper message triggers a normal DH ratchet step.
func responderSession(
	ourIdentity domain.KeyPair,
	signedPreKey domain.KeyPair,
	oneTime *domain.KeyPair,
	msg *wire.PreKeyWhisperMessage,
) (*domain.Session, error) {
	agreed, err := x3dh.ResponderKeys(ourIdentity, signedPreKey, oneTime, msg.IdentityKey, msg.BaseKey)
	if err != nil {
		return nil, err
	}
	return &domain.Session{
		RootKey: agreed.RootKey,
		Sending: &domain.SendingChain{
			ChainKey:        agreed.ChainKey,
			RatchetPriv:     signedPreKey.Priv,
			RatchetPub:      signedPreKey.Pub,
			TheirRatchetPub: msg.BaseKey,
		},
		RegistrationID: msg.RegistrationID,
		TheirIdentity:  msg.IdentityKey,
	}, nil
}

// stepReceivingRatchet handles an unseen ratchet key: close out the
// newest receiving chain at the sender's previous counter, derive the
// chain for the new key, and replace the sending chain under a fresh
// ratchet pair.
func (s *Service) stepReceivingRatchet(sess *domain.Session, theirRatchet domain.X25519Public, previousCounter uint32) (*domain.ReceivingChain, error) {
	if sess.Sending == nil {
		return nil, fmt.Errorf("%w: session has no sending chain", domain.ErrNoValidSessions)
	}
	if len(sess.Receiving) > 0 {
		if err := s.stashSkipped(sess, sess.Receiving[0], previousCounter); err != nil {
			return nil, err
		}
	}

	dh, err := crypto.DH(sess.Sending.RatchetPriv, theirRatchet)
	if err != nil {
		return nil, err
	}
	root, recvChain, err := ratchet.StepRootKey(sess.RootKey, dh[:])
	memzero.Zero(dh[:])
	if err != nil {
		return nil, err
	}

	next, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	dh2, err := crypto.DH(next.Priv, theirRatchet)
	if err != nil {
		return nil, err
	}
	root, sendChain, err := ratchet.StepRootKey(root, dh2[:])
	memzero.Zero(dh2[:])
	if err != nil {
		return nil, err
	}

	chain := &domain.ReceivingChain{
		RatchetPub: theirRatchet,
		ChainKey:   recvChain,
		Skipped:    make(map[uint32][]byte),
	}
	sess.Receiving = append([]*domain.ReceivingChain{chain}, sess.Receiving...)
	if len(sess.Receiving) > s.cfg.MaxReceiveChains {
		sess.Receiving = sess.Receiving[:s.cfg.MaxReceiveChains]
	}

	sess.RootKey = root
	sess.Sending = &domain.SendingChain{
		ChainKey:        sendChain,
		PreviousCounter: sess.Sending.Counter,
		RatchetPriv:     next.Priv,
		RatchetPub:      next.Pub,
		TheirRatchetPub: theirRatchet,
	}
	return chain, nil
}

// messageKeySeed resolves the seed for the given counter: a stashed
// skipped key for counters behind the chain, or chain advancement
// (stashing everything in between) for counters at or ahead of it.
func (s *Service) messageKeySeed(sess *domain.Session, chain *domain.ReceivingChain, counter uint32) ([]byte, error) {
	if counter < chain.Counter {
		seed, ok := chain.Skipped[counter]
		if !ok {
			return nil, fmt.Errorf("%w: counter %d", domain.ErrDuplicateMessage, counter)
		}
		delete(chain.Skipped, counter)
		return seed, nil
	}
	if err := s.stashSkipped(sess, chain, counter); err != nil {
		return nil, err
	}
	seed := ratchet.MessageKeySeed(chain.ChainKey)
	chain.ChainKey = ratchet.NextChainKey(chain.ChainKey)
	chain.Counter = counter + 1
	return seed, nil
}

// stashSkipped derives and stores message keys from the chain position
// up to (not including) until. Exceeding the per-chain cap fails with
// ErrTooManySkipped at once. For the whole-session cap the oldest
// receiving chains are evicted first, and ErrTooManySkipped is returned
// only when that is not enough.
func (s *Service) stashSkipped(sess *domain.Session, chain *domain.ReceivingChain, until uint32) error {
	if until <= chain.Counter {
		return nil
	}
	needed := int(until - chain.Counter)
	if len(chain.Skipped)+needed > s.cfg.MaxSkippedPerChain {
		return fmt.Errorf("%w: %d pending on one chain", domain.ErrTooManySkipped, len(chain.Skipped)+needed)
	}
	for sess.SkippedTotal()+needed > s.cfg.MaxTotalSkipped && len(sess.Receiving) > 1 {
		last := sess.Receiving[len(sess.Receiving)-1]
		if last == chain {
			break
		}
		sess.Receiving = sess.Receiving[:len(sess.Receiving)-1]
	}
	if sess.SkippedTotal()+needed > s.cfg.MaxTotalSkipped {
		return fmt.Errorf("%w: %d pending across chains", domain.ErrTooManySkipped, sess.SkippedTotal()+needed)
	}

	if chain.Skipped == nil {
		chain.Skipped = make(map[uint32][]byte, needed)
	}
	for n := chain.Counter; n < until; n++ {
		chain.Skipped[n] = ratchet.MessageKeySeed(chain.ChainKey)
		chain.ChainKey = ratchet.NextChainKey(chain.ChainKey)
	}
	chain.Counter = until
	return nil
}

// whisperMAC computes the truncated frame MAC binding both identities.
func whisperMAC(macKey []byte, sender, receiver domain.X25519Public, frame []byte) []byte {
	full := crypto.HMACSHA256(macKey, sender.Slice(), receiver.Slice(), frame)
	return full[:wire.MACSize]
}
