package domain

import "encoding/base64"

// LTHashSize is the width of the homomorphic set hash.
const LTHashSize = 128

// LTHashState tracks one app-state collection: its version, the
// running set hash, and the index-mac to value-mac map the hash
// attests. Map keys are base64 of the index MAC (JSON-safe).
type LTHashState struct {
	Version       uint64            `json:"version"`
	Hash          []byte            `json:"hash"`
	IndexValueMap map[string][]byte `json:"index_value_map,omitempty"`
}

// NewLTHashState returns an empty state at version zero.
func NewLTHashState() *LTHashState {
	return &LTHashState{
		Hash:          make([]byte, LTHashSize),
		IndexValueMap: make(map[string][]byte),
	}
}

// IndexKey converts an index MAC into the map key form.
func IndexKey(indexMAC []byte) string {
	return base64.StdEncoding.EncodeToString(indexMAC)
}

// Clone deep-copies the state for verify-then-commit application.
func (s *LTHashState) Clone() *LTHashState {
	if s == nil {
		return nil
	}
	out := &LTHashState{
		Version: s.Version,
		Hash:    append([]byte(nil), s.Hash...),
	}
	if s.IndexValueMap != nil {
		out.IndexValueMap = make(map[string][]byte, len(s.IndexValueMap))
		for k, v := range s.IndexValueMap {
			out.IndexValueMap[k] = append([]byte(nil), v...)
		}
	}
	return out
}

// MutationOperation tags an app-state mutation.
type MutationOperation uint8

// Mutation operations. The wire encoding of the operation byte used in
// MACs is the enum value itself.
const (
	MutationSet MutationOperation = iota
	MutationRemove
)

// Mutation is one decoded app-state change emitted after a patch
// verified end to end.
type Mutation struct {
	Operation MutationOperation
	Index     []byte // JSON array describing the action target
	Action    []byte // opaque action payload
	IndexMAC  []byte
	ValueMAC  []byte
}
