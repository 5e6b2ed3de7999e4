package domain

// SenderKeyState is one group ratchet epoch: a chain key plus the
// signing pair (or only its public half on the receiving side).
type SenderKeyState struct {
	KeyID       uint32            `json:"key_id"`
	ChainKey    []byte            `json:"chain_key"`
	Counter     uint32            `json:"counter"`
	SigningPub  X25519Public      `json:"signing_public"`
	SigningPriv *X25519Private    `json:"signing_private,omitempty"`
	MessageKeys map[uint32][]byte `json:"message_keys,omitempty"`
}

// SenderKeyRecord holds the recent states for one (group, sender)
// pair, most recent first.
type SenderKeyRecord struct {
	States []*SenderKeyState `json:"states"`
}

// State returns the state with the given key id, if any.
func (r *SenderKeyRecord) State(keyID uint32) *SenderKeyState {
	for _, st := range r.States {
		if st.KeyID == keyID {
			return st
		}
	}
	return nil
}

// Current returns the most recent state, if any.
func (r *SenderKeyRecord) Current() *SenderKeyState {
	if len(r.States) == 0 {
		return nil
	}
	return r.States[0]
}

// Clone deep-copies the record.
func (r *SenderKeyRecord) Clone() *SenderKeyRecord {
	if r == nil {
		return nil
	}
	out := &SenderKeyRecord{}
	for _, st := range r.States {
		c := &SenderKeyState{
			KeyID:      st.KeyID,
			ChainKey:   append([]byte(nil), st.ChainKey...),
			Counter:    st.Counter,
			SigningPub: st.SigningPub,
		}
		if st.SigningPriv != nil {
			priv := *st.SigningPriv
			c.SigningPriv = &priv
		}
		if st.MessageKeys != nil {
			c.MessageKeys = make(map[uint32][]byte, len(st.MessageKeys))
			for n, mk := range st.MessageKeys {
				c.MessageKeys[n] = append([]byte(nil), mk...)
			}
		}
		out.States = append(out.States, c)
	}
	return out
}
