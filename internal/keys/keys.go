package keys

import (
	"bytes"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ssouza/wamd/internal/crypto"
	"github.com/ssouza/wamd/internal/domain"
	"github.com/ssouza/wamd/internal/store"
)

// signedPreKeyIDMask keeps rolling ids inside the unsigned 24-bit space.
const signedPreKeyIDMask = 0xFFFFFF

// Keys is the durable key-material aggregate. Exported fields are the
// on-disk schema; unknown JSON fields are ignored on load.
type Keys struct {
	mu    sync.RWMutex
	prefs *store.Prefs

	ID                uint32                             `json:"id"`
	CompanionKeyPair  domain.KeyPair                     `json:"companion_key_pair"`
	EphemeralKeyPair  domain.KeyPair                     `json:"ephemeral_key_pair"`
	IdentityKeyPair   domain.KeyPair                     `json:"identity_key_pair"`
	SignedPreKey      domain.SignedKeyPair               `json:"signed_pre_key"`
	CompanionSecret   []byte                             `json:"companion_secret"`
	Companion         string                             `json:"companion,omitempty"`
	CompanionIdentity []byte                             `json:"companion_identity,omitempty"`
	PreKeys           []*domain.PreKey                   `json:"pre_keys"`
	NextPreKeyID      uint32                             `json:"next_pre_key_id"`
	SenderKeys        map[string]*domain.SenderKeyRecord `json:"sender_keys"`
	Sessions          map[string]*domain.Session         `json:"sessions"`
	TrustedIdentities map[string]domain.X25519Public     `json:"trusted_identities"`
	HashStates        map[string]*domain.LTHashState     `json:"hash_states"`
	AppStateKeys      []*domain.AppStateSyncKey          `json:"app_state_keys"`
	WriteKey          []byte                             `json:"write_key,omitempty"`
	ReadKey           []byte                             `json:"read_key,omitempty"`
	WriteCounter      uint64                             `json:"write_counter"`
	ReadCounter       uint64                             `json:"read_counter"`
}

// NewRandom allocates fresh key material for id and persists it.
func NewRandom(prefs *store.Prefs, id uint32) (*Keys, error) {
	companion, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	ephemeral, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	identity, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	signed, err := NewSignedPreKey(identity, id&signedPreKeyIDMask)
	if err != nil {
		return nil, err
	}

	k := &Keys{
		prefs:             prefs,
		ID:                id,
		CompanionKeyPair:  companion,
		EphemeralKeyPair:  ephemeral,
		IdentityKeyPair:   identity,
		SignedPreKey:      signed,
		CompanionSecret:   crypto.Random(32),
		NextPreKeyID:      1,
		SenderKeys:        make(map[string]*domain.SenderKeyRecord),
		Sessions:          make(map[string]*domain.Session),
		TrustedIdentities: make(map[string]domain.X25519Public),
		HashStates:        make(map[string]*domain.LTHashState),
	}
	if err := k.Save(); err != nil {
		return nil, err
	}
	return k, nil
}

// Load reads the keys state for id, falling back to NewRandom when no
// document exists.
func Load(prefs *store.Prefs, id uint32) (*Keys, error) {
	k := &Keys{prefs: prefs}
	found, err := prefs.ReadKeys(id, k)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewRandom(prefs, id)
	}
	if k.SenderKeys == nil {
		k.SenderKeys = make(map[string]*domain.SenderKeyRecord)
	}
	if k.Sessions == nil {
		k.Sessions = make(map[string]*domain.Session)
	}
	if k.TrustedIdentities == nil {
		k.TrustedIdentities = make(map[string]domain.X25519Public)
	}
	if k.HashStates == nil {
		k.HashStates = make(map[string]*domain.LTHashState)
	}
	return k, nil
}

// NewSignedPreKey generates a key pair and signs its public component
// with the identity key. The id is masked to the rolling 24-bit space.
func NewSignedPreKey(identity domain.KeyPair, id uint32) (domain.SignedKeyPair, error) {
	pair, err := crypto.GenerateKeyPair()
	if err != nil {
		return domain.SignedKeyPair{}, err
	}
	sig, err := crypto.Sign(identity.Priv, pair.Pub.Slice())
	if err != nil {
		return domain.SignedKeyPair{}, err
	}
	return domain.SignedKeyPair{ID: id & signedPreKeyIDMask, KeyPair: pair, Signature: sig}, nil
}

// Save serializes the full state under keys/<id>.json.
func (k *Keys) Save() error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.prefs.WriteKeys(k.ID, k)
}

// SaveAsync persists in the background; the channel delivers the
// outcome exactly once.
func (k *Keys) SaveAsync() <-chan error {
	done := make(chan error, 1)
	go func() { done <- k.Save() }()
	return done
}

// Delete removes this state from durable storage.
func (k *Keys) Delete() error {
	return k.prefs.Delete(k.ID)
}

// ---------- sessions & trust ----------

// Session returns the pairwise session for addr. The record stays
// owned by the aggregate: clone before mutating.
func (k *Keys) Session(addr domain.SessionAddress) (*domain.Session, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.Sessions[addr.String()]
	return s, ok
}

// PutSession stores the session for addr.
func (k *Keys) PutSession(addr domain.SessionAddress, s *domain.Session) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Sessions[addr.String()] = s
}

// DeleteSession destroys the session for addr. Future sends and
// receives fail with ErrNoValidSessions until reinitialized.
func (k *Keys) DeleteSession(addr domain.SessionAddress) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.Sessions, addr.String())
}

// TrustedIdentity returns the pinned identity for addr, if any.
func (k *Keys) TrustedIdentity(addr domain.SessionAddress) (domain.X25519Public, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pub, ok := k.TrustedIdentities[addr.String()]
	return pub, ok
}

// TrustIdentity enforces trust-on-first-use: an unseen address pins
// identity, a matching pin passes, a mismatch fails without touching
// the pin.
func (k *Keys) TrustIdentity(addr domain.SessionAddress, identity domain.X25519Public) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.trustLocked(addr, identity)
}

func (k *Keys) trustLocked(addr domain.SessionAddress, identity domain.X25519Public) error {
	pinned, ok := k.TrustedIdentities[addr.String()]
	if !ok {
		k.TrustedIdentities[addr.String()] = identity
		return nil
	}
	if pinned != identity {
		return fmt.Errorf("%w: %s", domain.ErrUntrustedIdentity, addr)
	}
	return nil
}

// ApplyInbound commits the result of a successful inbound decryption
// in one step: pin the sender identity, consume the one-time pre-key a
// pkmsg named, and store the updated session. Nothing is written when
// any check fails.
func (k *Keys) ApplyInbound(addr domain.SessionAddress, s *domain.Session, preKeyID *uint32, identity *domain.X25519Public) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if identity != nil {
		if err := k.trustLocked(addr, *identity); err != nil {
			return err
		}
	}
	if preKeyID != nil {
		if _, err := k.consumePreKeyLocked(*preKeyID); err != nil {
			return err
		}
	}
	k.Sessions[addr.String()] = s
	return nil
}

// ---------- sender keys ----------

// SenderKey returns the record for name, if any.
func (k *Keys) SenderKey(name domain.SenderKeyName) (*domain.SenderKeyRecord, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	r, ok := k.SenderKeys[name.String()]
	return r, ok
}

// PutSenderKey stores the record for name.
func (k *Keys) PutSenderKey(name domain.SenderKeyName, r *domain.SenderKeyRecord) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.SenderKeys[name.String()] = r
}

// ---------- pre-keys ----------

// SignedPreKeyByID returns the current signed pre-key, failing with
// ErrIDMismatch when id names any other.
func (k *Keys) SignedPreKeyByID(id uint32) (domain.SignedKeyPair, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if id != k.SignedPreKey.ID {
		return domain.SignedKeyPair{}, fmt.Errorf("%w: %d != %d", domain.ErrIDMismatch, id, k.SignedPreKey.ID)
	}
	return k.SignedPreKey, nil
}

// RotateSignedPreKey replaces the signed pre-key, keeping its id bound
// to the keys id.
func (k *Keys) RotateSignedPreKey() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	signed, err := NewSignedPreKey(k.IdentityKeyPair, k.ID&signedPreKeyIDMask)
	if err != nil {
		return err
	}
	k.SignedPreKey = signed
	return nil
}

// PreKey looks a one-time pre-key up without consuming it.
func (k *Keys) PreKey(id uint32) (*domain.PreKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, pk := range k.PreKeys {
		if pk.ID == id {
			return pk, true
		}
	}
	return nil, false
}

// ConsumePreKey removes and returns the pre-key with the given id.
// Consumption is monotonic: a consumed id is refused forever after.
func (k *Keys) ConsumePreKey(id uint32) (*domain.PreKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.consumePreKeyLocked(id)
}

func (k *Keys) consumePreKeyLocked(id uint32) (*domain.PreKey, error) {
	for i, pk := range k.PreKeys {
		if pk.ID == id {
			k.PreKeys = append(k.PreKeys[:i], k.PreKeys[i+1:]...)
			return pk, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", domain.ErrPreKeyNotFound, id)
}

// GeneratePreKeys appends n fresh one-time pre-keys with strictly
// increasing ids and returns them.
func (k *Keys) GeneratePreKeys(n int) ([]*domain.PreKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.NextPreKeyID == 0 {
		k.NextPreKeyID = 1
	}
	out := make([]*domain.PreKey, 0, n)
	for i := 0; i < n; i++ {
		pair, err := crypto.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		pk := &domain.PreKey{ID: k.NextPreKeyID, KeyPair: pair}
		k.NextPreKeyID++
		k.PreKeys = append(k.PreKeys, pk)
		out = append(out, pk)
	}
	return out, nil
}

// HasPreKeys reports whether any one-time pre-keys remain.
func (k *Keys) HasPreKeys() bool {
	return k.PreKeyCount() > 0
}

// PreKeyCount reports the size of the one-time pre-key pool.
func (k *Keys) PreKeyCount() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.PreKeys)
}

// FirstPreKey returns the oldest unconsumed pre-key, if any.
func (k *Keys) FirstPreKey() (*domain.PreKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if len(k.PreKeys) == 0 {
		return nil, false
	}
	return k.PreKeys[0], true
}

// ---------- app state ----------

// AppStateKey returns the sync key with the given id, if any.
func (k *Keys) AppStateKey(keyID []byte) (*domain.AppStateSyncKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, key := range k.AppStateKeys {
		if bytes.Equal(key.KeyID, keyID) {
			return key, true
		}
	}
	return nil, false
}

// AddAppStateKey inserts a sync key. Keys are immutable: re-adding an
// id with different material is an error, re-adding the same material
// is a no-op.
func (k *Keys) AddAppStateKey(key *domain.AppStateSyncKey) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, existing := range k.AppStateKeys {
		if bytes.Equal(existing.KeyID, key.KeyID) {
			if !bytes.Equal(existing.KeyData, key.KeyData) {
				return fmt.Errorf("app state key %x already present with different material", key.KeyID)
			}
			return nil
		}
	}
	if key.Timestamp == 0 {
		key.Timestamp = time.Now().Unix()
	}
	k.AppStateKeys = append(k.AppStateKeys, key)
	return nil
}

// HashState returns the LTHash state for a collection, if any.
func (k *Keys) HashState(name string) (*domain.LTHashState, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	st, ok := k.HashStates[name]
	return st, ok
}

// PutHashState stores the LTHash state for a collection.
func (k *Keys) PutHashState(name string, st *domain.LTHashState) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.HashStates[name] = st
}

// ---------- companion ----------

// SetCompanion records the paired companion jid and its signed
// identity.
func (k *Keys) SetCompanion(jid string, identity []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Companion = jid
	k.CompanionIdentity = append([]byte(nil), identity...)
}

// HasCompanion reports whether pairing completed.
func (k *Keys) HasCompanion() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.Companion != ""
}

// ---------- transport ----------

// SetTransportKeys installs the socket read/write keys negotiated by
// the outer handshake and resets both counters.
func (k *Keys) SetTransportKeys(writeKey, readKey []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.WriteKey = append([]byte(nil), writeKey...)
	k.ReadKey = append([]byte(nil), readKey...)
	k.WriteCounter = 0
	k.ReadCounter = 0
}

// ClearTransport drops the socket keys and counters, as happens on
// socket restart.
func (k *Keys) ClearTransport() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.WriteKey = nil
	k.ReadKey = nil
	k.WriteCounter = 0
	k.ReadCounter = 0
}

// TransportKeys returns the current socket keys.
func (k *Keys) TransportKeys() (writeKey, readKey []byte) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.WriteKey, k.ReadKey
}

// BumpWriteCounter returns the next outbound nonce counter. A counter
// can never repeat: exhausting the space is a fatal error.
func (k *Keys) BumpWriteCounter() (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.WriteCounter == math.MaxUint64 {
		return 0, fmt.Errorf("%w: write counter", domain.ErrCounterOverflow)
	}
	v := k.WriteCounter
	k.WriteCounter++
	return v, nil
}

// BumpReadCounter returns the next inbound nonce counter.
func (k *Keys) BumpReadCounter() (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ReadCounter == math.MaxUint64 {
		return 0, fmt.Errorf("%w: read counter", domain.ErrCounterOverflow)
	}
	v := k.ReadCounter
	k.ReadCounter++
	return v, nil
}
