package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ssouza/wamd/internal/domain"
)

// MutationSync is one encrypted app-state change inside a patch or
// snapshot.
type MutationSync struct {
	Operation       domain.MutationOperation
	IndexMAC        []byte
	ValueMAC        []byte
	KeyID           []byte
	EncryptedAction []byte
}

// PatchSync is an ordered batch of mutations plus the MACs attesting
// it.
type PatchSync struct {
	Version     uint64
	Mutations   []*MutationSync
	External    *ExternalBlobReference
	SnapshotMAC []byte
	PatchMAC    []byte
	KeyID       []byte
}

// SnapshotSync is a compacted collection state, usually fetched
// through an external blob reference.
type SnapshotSync struct {
	Version uint64
	Records []*MutationSync
	MAC     []byte
	KeyID   []byte
}

// ExternalBlobReference points at a compacted snapshot stored outside
// the patch stream.
type ExternalBlobReference struct {
	MediaKey      []byte
	DirectPath    string
	Handle        string
	FileSize      uint64
	FileSHA256    []byte
	FileEncSHA256 []byte
}

// scanFields walks a protobuf body, invoking fn after each tag. fn
// returns how many value bytes it consumed; zero means the field was
// not recognized and scanFields skips it.
func scanFields(body []byte, fn func(num protowire.Number, typ protowire.Type, body []byte) (int, error)) error {
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return protowire.ParseError(n)
		}
		body = body[n:]
		used, err := fn(num, typ, body)
		if err != nil {
			return err
		}
		if used == 0 {
			used = protowire.ConsumeFieldValue(num, typ, body)
			if used < 0 {
				return protowire.ParseError(used)
			}
		}
		body = body[used:]
	}
	return nil
}

func consumeBytesField(body []byte) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(body)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return append([]byte(nil), v...), n, nil
}

func consumeVarintField(body []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(body)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

// Marshal renders the mutation record.
func (m *MutationSync) Marshal() []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(m.Operation))
	out = protowire.AppendTag(out, 2, protowire.BytesType)
	out = protowire.AppendBytes(out, m.IndexMAC)
	out = protowire.AppendTag(out, 3, protowire.BytesType)
	out = protowire.AppendBytes(out, m.ValueMAC)
	out = protowire.AppendTag(out, 4, protowire.BytesType)
	out = protowire.AppendBytes(out, m.KeyID)
	out = protowire.AppendTag(out, 5, protowire.BytesType)
	out = protowire.AppendBytes(out, m.EncryptedAction)
	return out
}

// ParseMutationSync decodes one mutation record.
func ParseMutationSync(body []byte) (*MutationSync, error) {
	m := &MutationSync{}
	err := scanFields(body, func(num protowire.Number, typ protowire.Type, body []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarintField(body)
			if err != nil {
				return 0, err
			}
			if v > uint64(domain.MutationRemove) {
				return 0, fmt.Errorf("unknown mutation operation %d", v)
			}
			m.Operation = domain.MutationOperation(v)
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			m.IndexMAC = v
			return n, err
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			m.ValueMAC = v
			return n, err
		case num == 4 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			m.KeyID = v
			return n, err
		case num == 5 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			m.EncryptedAction = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Marshal renders the patch record.
func (p *PatchSync) Marshal() []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.VarintType)
	out = protowire.AppendVarint(out, p.Version)
	for _, m := range p.Mutations {
		out = protowire.AppendTag(out, 2, protowire.BytesType)
		out = protowire.AppendBytes(out, m.Marshal())
	}
	if p.External != nil {
		out = protowire.AppendTag(out, 3, protowire.BytesType)
		out = protowire.AppendBytes(out, p.External.Marshal())
	}
	out = protowire.AppendTag(out, 4, protowire.BytesType)
	out = protowire.AppendBytes(out, p.SnapshotMAC)
	out = protowire.AppendTag(out, 5, protowire.BytesType)
	out = protowire.AppendBytes(out, p.PatchMAC)
	out = protowire.AppendTag(out, 6, protowire.BytesType)
	out = protowire.AppendBytes(out, p.KeyID)
	return out
}

// ParsePatchSync decodes a patch record.
func ParsePatchSync(body []byte) (*PatchSync, error) {
	p := &PatchSync{}
	err := scanFields(body, func(num protowire.Number, typ protowire.Type, body []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarintField(body)
			p.Version = v
			return n, err
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			m, err := ParseMutationSync(v)
			if err != nil {
				return 0, err
			}
			p.Mutations = append(p.Mutations, m)
			return n, nil
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			ext, err := ParseExternalBlobReference(v)
			if err != nil {
				return 0, err
			}
			p.External = ext
			return n, nil
		case num == 4 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			p.SnapshotMAC = v
			return n, err
		case num == 5 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			p.PatchMAC = v
			return n, err
		case num == 6 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			p.KeyID = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Marshal renders the snapshot record.
func (s *SnapshotSync) Marshal() []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.VarintType)
	out = protowire.AppendVarint(out, s.Version)
	for _, m := range s.Records {
		out = protowire.AppendTag(out, 2, protowire.BytesType)
		out = protowire.AppendBytes(out, m.Marshal())
	}
	out = protowire.AppendTag(out, 3, protowire.BytesType)
	out = protowire.AppendBytes(out, s.MAC)
	out = protowire.AppendTag(out, 4, protowire.BytesType)
	out = protowire.AppendBytes(out, s.KeyID)
	return out
}

// ParseSnapshotSync decodes a snapshot record.
func ParseSnapshotSync(body []byte) (*SnapshotSync, error) {
	s := &SnapshotSync{}
	err := scanFields(body, func(num protowire.Number, typ protowire.Type, body []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarintField(body)
			s.Version = v
			return n, err
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			m, err := ParseMutationSync(v)
			if err != nil {
				return 0, err
			}
			s.Records = append(s.Records, m)
			return n, nil
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			s.MAC = v
			return n, err
		case num == 4 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			s.KeyID = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Marshal renders the blob reference.
func (e *ExternalBlobReference) Marshal() []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendBytes(out, e.MediaKey)
	out = protowire.AppendTag(out, 2, protowire.BytesType)
	out = protowire.AppendString(out, e.DirectPath)
	out = protowire.AppendTag(out, 3, protowire.BytesType)
	out = protowire.AppendString(out, e.Handle)
	out = protowire.AppendTag(out, 4, protowire.VarintType)
	out = protowire.AppendVarint(out, e.FileSize)
	out = protowire.AppendTag(out, 5, protowire.BytesType)
	out = protowire.AppendBytes(out, e.FileSHA256)
	out = protowire.AppendTag(out, 6, protowire.BytesType)
	out = protowire.AppendBytes(out, e.FileEncSHA256)
	return out
}

// ParseExternalBlobReference decodes a blob reference.
func ParseExternalBlobReference(body []byte) (*ExternalBlobReference, error) {
	e := &ExternalBlobReference{}
	err := scanFields(body, func(num protowire.Number, typ protowire.Type, body []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			e.MediaKey = v
			return n, err
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			e.DirectPath = string(v)
			return n, err
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			e.Handle = string(v)
			return n, err
		case num == 4 && typ == protowire.VarintType:
			v, n, err := consumeVarintField(body)
			e.FileSize = v
			return n, err
		case num == 5 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			e.FileSHA256 = v
			return n, err
		case num == 6 && typ == protowire.BytesType:
			v, n, err := consumeBytesField(body)
			e.FileEncSHA256 = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}
