package appstate

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ssouza/wamd/internal/crypto"
	"github.com/ssouza/wamd/internal/domain"
	"github.com/ssouza/wamd/internal/keys"
	"github.com/ssouza/wamd/internal/protocol/lthash"
	"github.com/ssouza/wamd/internal/wire"
)

const ivSize = 16

var expandInfo = []byte("WhatsApp Mutation Keys")

// ErrMissingPreviousValue is returned when a REMOVE names an index the
// collection does not hold.
var ErrMissingPreviousValue = errors.New("remove without previous value")

// BlobFetcher retrieves external snapshot blobs. The transport layer
// provides the implementation.
type BlobFetcher interface {
	Fetch(ctx context.Context, ref *wire.ExternalBlobReference) ([]byte, error)
}

// mutationKeys is the expansion of one sync key.
type mutationKeys struct {
	index       []byte
	valueCipher []byte
	valueMAC    []byte
	snapshotMAC []byte
	patchMAC    []byte
}

func expandKey(keyData []byte) (mutationKeys, error) {
	okm, err := crypto.HKDF(keyData, nil, expandInfo, 160)
	if err != nil {
		return mutationKeys{}, err
	}
	return mutationKeys{
		index:       okm[0:32],
		valueCipher: okm[32:64],
		valueMAC:    okm[64:96],
		snapshotMAC: okm[96:128],
		patchMAC:    okm[128:160],
	}, nil
}

type bufferedPatch struct {
	collection string
	patch      *wire.PatchSync
}

// Service applies app-state patches and snapshots against the keys
// aggregate.
type Service struct {
	keys  *keys.Keys
	fetch BlobFetcher

	mu      sync.Mutex
	pending map[string][]bufferedPatch // keyed by IndexKey of the sync key id
}

// New constructs the app-state service. fetch may be nil when external
// snapshots are not used.
func New(ks *keys.Keys, fetch BlobFetcher) *Service {
	return &Service{keys: ks, fetch: fetch, pending: make(map[string][]bufferedPatch)}
}

// ApplyPatch verifies and applies one patch to the named collection
// and returns its decoded mutations. A patch whose sync key is unknown
// is buffered and ErrMissingAppStateKey reported with the key id; a
// version other than the next one reports ErrVersionGap.
func (s *Service) ApplyPatch(ctx context.Context, collection string, patch *wire.PatchSync) ([]domain.Mutation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, ok := s.keys.AppStateKey(patch.KeyID)
	if !ok {
		s.buffer(collection, patch)
		return nil, fmt.Errorf("%w: key %x", domain.ErrMissingAppStateKey, patch.KeyID)
	}
	mk, err := expandKey(key.KeyData)
	if err != nil {
		return nil, err
	}

	work := s.workState(collection)
	if patch.External != nil {
		if work, err = s.fetchSnapshot(ctx, collection, patch.External, mk); err != nil {
			return nil, err
		}
	}
	if patch.Version != work.Version+1 {
		return nil, fmt.Errorf("%w: have %d, patch %d", domain.ErrVersionGap, work.Version, patch.Version)
	}

	muts, valueMACs, err := applyMutations(work, patch.Mutations, mk)
	if err != nil {
		return nil, err
	}
	work.Version = patch.Version

	wantPatch := patchMAC(mk.patchMAC, valueMACs, patch.Version, collection)
	if !crypto.HMACEqual(wantPatch, patch.PatchMAC) {
		return nil, fmt.Errorf("%w: patch mac for %s@%d", domain.ErrMacMismatch, collection, patch.Version)
	}
	wantSnapshot := snapshotMAC(mk.snapshotMAC, work.Hash, work.Version, collection)
	if !crypto.HMACEqual(wantSnapshot, patch.SnapshotMAC) {
		return nil, fmt.Errorf("%w: snapshot mac for %s@%d", domain.ErrMacMismatch, collection, patch.Version)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.keys.PutHashState(collection, work)
	return muts, nil
}

// ApplySnapshot replaces the collection state with a verified compacted
// snapshot.
func (s *Service) ApplySnapshot(ctx context.Context, collection string, snap *wire.SnapshotSync) ([]domain.Mutation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, ok := s.keys.AppStateKey(snap.KeyID)
	if !ok {
		return nil, fmt.Errorf("%w: key %x", domain.ErrMissingAppStateKey, snap.KeyID)
	}
	mk, err := expandKey(key.KeyData)
	if err != nil {
		return nil, err
	}
	work, muts, err := buildSnapshotState(collection, snap, mk)
	if err != nil {
		return nil, err
	}
	s.keys.PutHashState(collection, work)
	return muts, nil
}

// AddKey installs a sync key and drains, in version order, any patches
// that were waiting for it. Decoded mutations from drained patches are
// returned.
func (s *Service) AddKey(ctx context.Context, key *domain.AppStateSyncKey) ([]domain.Mutation, error) {
	if err := s.keys.AddAppStateKey(key); err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := domain.IndexKey(key.KeyID)
	queued := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()

	sort.SliceStable(queued, func(i, j int) bool {
		return queued[i].patch.Version < queued[j].patch.Version
	})
	var out []domain.Mutation
	for _, b := range queued {
		muts, err := s.ApplyPatch(ctx, b.collection, b.patch)
		if err != nil {
			return out, err
		}
		out = append(out, muts...)
	}
	return out, nil
}

// PendingFor reports how many patches wait for the given sync key.
func (s *Service) PendingFor(keyID []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[domain.IndexKey(keyID)])
}

func (s *Service) buffer(collection string, patch *wire.PatchSync) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := domain.IndexKey(patch.KeyID)
	s.pending[id] = append(s.pending[id], bufferedPatch{collection: collection, patch: patch})
}

func (s *Service) workState(collection string) *domain.LTHashState {
	if st, ok := s.keys.HashState(collection); ok {
		return st.Clone()
	}
	return domain.NewLTHashState()
}

func (s *Service) fetchSnapshot(ctx context.Context, collection string, ref *wire.ExternalBlobReference, mk mutationKeys) (*domain.LTHashState, error) {
	if s.fetch == nil {
		return nil, fmt.Errorf("external snapshot for %s but no blob fetcher configured", collection)
	}
	blob, err := s.fetch.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	snap, err := wire.ParseSnapshotSync(blob)
	if err != nil {
		return nil, err
	}
	work, _, err := buildSnapshotState(collection, snap, mk)
	return work, err
}

func buildSnapshotState(collection string, snap *wire.SnapshotSync, mk mutationKeys) (*domain.LTHashState, []domain.Mutation, error) {
	work := domain.NewLTHashState()
	muts, _, err := applyMutations(work, snap.Records, mk)
	if err != nil {
		return nil, nil, err
	}
	work.Version = snap.Version
	want := snapshotMAC(mk.snapshotMAC, work.Hash, work.Version, collection)
	if !crypto.HMACEqual(want, snap.MAC) {
		return nil, nil, fmt.Errorf("%w: snapshot mac for %s@%d", domain.ErrMacMismatch, collection, snap.Version)
	}
	return work, muts, nil
}

// applyMutations decrypts and verifies each mutation in order against
// work, updating the index map and the running hash. The concatenated
// value MACs feed the patch MAC.
func applyMutations(work *domain.LTHashState, mutations []*wire.MutationSync, mk mutationKeys) ([]domain.Mutation, [][]byte, error) {
	var (
		out       []domain.Mutation
		valueMACs [][]byte
	)
	for _, mut := range mutations {
		if len(mut.EncryptedAction) < ivSize+1 {
			return nil, nil, fmt.Errorf("encrypted action too short: %d bytes", len(mut.EncryptedAction))
		}
		iv := mut.EncryptedAction[:ivSize]
		ct := mut.EncryptedAction[ivSize:]
		plain, err := crypto.DecryptCBC(mk.valueCipher, iv, ct)
		if err != nil {
			return nil, nil, err
		}
		action, err := wire.ParseSyncActionData(plain)
		if err != nil {
			return nil, nil, err
		}

		wantIndex := crypto.HMACSHA256(mk.index, action.Index)
		if !crypto.HMACEqual(wantIndex, mut.IndexMAC) {
			return nil, nil, fmt.Errorf("%w: mutation index", domain.ErrMacMismatch)
		}
		wantValue := valueMAC(mk.valueMAC, mut.Operation, mut.IndexMAC, mut.EncryptedAction)
		if !crypto.HMACEqual(wantValue, mut.ValueMAC) {
			return nil, nil, fmt.Errorf("%w: mutation value", domain.ErrMacMismatch)
		}

		idx := domain.IndexKey(mut.IndexMAC)
		prev, hadPrev := work.IndexValueMap[idx]
		switch mut.Operation {
		case domain.MutationSet:
			if hadPrev {
				if err := lthash.Subtract(work.Hash, prev); err != nil {
					return nil, nil, err
				}
			}
			if err := lthash.Add(work.Hash, mut.ValueMAC); err != nil {
				return nil, nil, err
			}
			work.IndexValueMap[idx] = append([]byte(nil), mut.ValueMAC...)
		case domain.MutationRemove:
			if !hadPrev {
				return nil, nil, fmt.Errorf("%w: index %s", ErrMissingPreviousValue, idx)
			}
			if err := lthash.Subtract(work.Hash, prev); err != nil {
				return nil, nil, err
			}
			delete(work.IndexValueMap, idx)
		}

		valueMACs = append(valueMACs, mut.ValueMAC)
		out = append(out, domain.Mutation{
			Operation: mut.Operation,
			Index:     action.Index,
			Action:    action.Value,
			IndexMAC:  mut.IndexMAC,
			ValueMAC:  mut.ValueMAC,
		})
	}
	return out, valueMACs, nil
}

// valueMAC authenticates one encrypted mutation: operation byte, index
// MAC, then IV and ciphertext. HMAC-SHA512 truncated to 32 bytes.
func valueMAC(key []byte, op domain.MutationOperation, indexMAC, encrypted []byte) []byte {
	full := crypto.HMACSHA512(key, []byte{byte(op)}, indexMAC, encrypted)
	return full[:32]
}

func patchMAC(key []byte, valueMACs [][]byte, version uint64, collection string) []byte {
	parts := make([][]byte, 0, len(valueMACs)+2)
	parts = append(parts, valueMACs...)
	parts = append(parts, le64(version), []byte(collection))
	return crypto.HMACSHA256(key, parts...)
}

func snapshotMAC(key []byte, hash []byte, version uint64, collection string) []byte {
	return crypto.HMACSHA256(key, hash, le64(version), []byte(collection))
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
