package domain

// SendingChain is the single outbound ratchet chain of a session.
type SendingChain struct {
	ChainKey        []byte        `json:"chain_key"`
	Counter         uint32        `json:"counter"`
	PreviousCounter uint32        `json:"previous_counter"`
	RatchetPriv     X25519Private `json:"ratchet_private"`
	RatchetPub      X25519Public  `json:"ratchet_public"`
	TheirRatchetPub X25519Public  `json:"their_ratchet_public"`
}

// ReceivingChain is one inbound ratchet chain, keyed by the peer's
// ratchet public key. Counter is the next expected message counter;
// Skipped stashes message keys derived for counters that have not
// arrived yet.
type ReceivingChain struct {
	RatchetPub X25519Public      `json:"ratchet_public"`
	ChainKey   []byte            `json:"chain_key"`
	Counter    uint32            `json:"counter"`
	Skipped    map[uint32][]byte `json:"skipped,omitempty"`
}

// PendingPreKey records which of the peer's pre-keys the initiator
// used, so every outbound message can carry the handshake until the
// first inbound message confirms it.
type PendingPreKey struct {
	PreKeyID       *uint32      `json:"pre_key_id,omitempty"`
	SignedPreKeyID uint32       `json:"signed_pre_key_id"`
	BaseKey        X25519Public `json:"base_key"`
}

// Session is the pairwise Double Ratchet state for one address.
// Receiving chains are ordered most-recently-created first.
type Session struct {
	RootKey        []byte            `json:"root_key"`
	Sending        *SendingChain     `json:"sending,omitempty"`
	Receiving      []*ReceivingChain `json:"receiving,omitempty"`
	Pending        *PendingPreKey    `json:"pending,omitempty"`
	RegistrationID uint32            `json:"registration_id"`
	TheirIdentity  X25519Public      `json:"their_identity"`
	Closed         bool              `json:"closed,omitempty"`
}

// ReceivingChainFor returns the receiving chain keyed by pub, if any.
func (s *Session) ReceivingChainFor(pub X25519Public) *ReceivingChain {
	for _, c := range s.Receiving {
		if c.RatchetPub == pub {
			return c
		}
	}
	return nil
}

// SkippedTotal counts stashed message keys across all receiving chains.
func (s *Session) SkippedTotal() int {
	total := 0
	for _, c := range s.Receiving {
		total += len(c.Skipped)
	}
	return total
}

// Clone deep-copies the session so callers can mutate a working copy
// and commit it only after every check passed.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := &Session{
		RootKey:        append([]byte(nil), s.RootKey...),
		RegistrationID: s.RegistrationID,
		TheirIdentity:  s.TheirIdentity,
		Closed:         s.Closed,
	}
	if s.Sending != nil {
		sc := *s.Sending
		sc.ChainKey = append([]byte(nil), s.Sending.ChainKey...)
		out.Sending = &sc
	}
	for _, c := range s.Receiving {
		rc := &ReceivingChain{
			RatchetPub: c.RatchetPub,
			ChainKey:   append([]byte(nil), c.ChainKey...),
			Counter:    c.Counter,
		}
		if c.Skipped != nil {
			rc.Skipped = make(map[uint32][]byte, len(c.Skipped))
			for n, mk := range c.Skipped {
				rc.Skipped[n] = append([]byte(nil), mk...)
			}
		}
		out.Receiving = append(out.Receiving, rc)
	}
	if s.Pending != nil {
		p := *s.Pending
		if s.Pending.PreKeyID != nil {
			id := *s.Pending.PreKeyID
			p.PreKeyID = &id
		}
		out.Pending = &p
	}
	return out
}
