package prekey

import (
	"context"
	"fmt"

	"github.com/ssouza/wamd/internal/domain"
	"github.com/ssouza/wamd/internal/keys"
)

// Service manages the pre-key pool.
type Service struct {
	keys  *keys.Keys
	batch int
}

// New constructs the pre-key service with the configured batch size.
func New(ks *keys.Keys, batch int) *Service {
	return &Service{keys: ks, batch: batch}
}

// TopUp generates pre-keys until the pool holds a full batch and
// returns the newly created ones, ready for upload.
func (s *Service) TopUp(ctx context.Context) ([]*domain.PreKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	missing := s.batch - s.keys.PreKeyCount()
	if missing <= 0 {
		return nil, nil
	}
	return s.keys.GeneratePreKeys(missing)
}

// Bundle assembles our public pre-key bundle with the first available
// one-time pre-key attached. An empty pool is topped up first; if it
// is still empty after that, Bundle fails. The pre-key is not consumed
// here; the server hands each out once.
func (s *Service) Bundle(ctx context.Context) (*domain.PreKeyBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.keys.HasPreKeys() {
		if _, err := s.TopUp(ctx); err != nil {
			return nil, err
		}
	}
	b := &domain.PreKeyBundle{
		RegistrationID:        s.keys.ID,
		IdentityKey:           s.keys.IdentityKeyPair.Pub,
		SignedPreKeyID:        s.keys.SignedPreKey.ID,
		SignedPreKey:          s.keys.SignedPreKey.KeyPair.Pub,
		SignedPreKeySignature: s.keys.SignedPreKey.Signature,
	}
	first, ok := s.keys.FirstPreKey()
	if !ok {
		return nil, fmt.Errorf("pre-key pool empty after top-up")
	}
	id := first.ID
	pub := first.KeyPair.Pub
	b.PreKeyID = &id
	b.PreKey = &pub
	return b, nil
}
