package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/ssouza/wamd/internal/domain"
)

const keysDir = "keys"

// Prefs is a handle on the preferences root. One handle is created at
// startup and passed to everything that loads or saves durable state.
type Prefs struct {
	root       string
	passphrase string
	mu         sync.Mutex
}

// NewPrefs opens (and creates if needed) a preferences root. The
// passphrase may be empty, in which case documents are stored as plain
// JSON.
func NewPrefs(root, passphrase string) (*Prefs, error) {
	if err := os.MkdirAll(filepath.Join(root, keysDir), 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return &Prefs{root: root, passphrase: passphrase}, nil
}

// Root returns the preferences root directory.
func (p *Prefs) Root() string { return p.root }

// ReadKeys loads the keys document for id into out. The second return
// is false when no document exists.
func (p *Prefs) ReadKeys(id uint32, out any) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw, err := os.ReadFile(p.keysPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if p.passphrase != "" {
		raw, err = openEnvelope(p.passphrase, raw)
		if err != nil {
			return false, err
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("%w: decode keys/%d: %v", domain.ErrPersistence, id, err)
	}
	return true, nil
}

// WriteKeys saves the keys document for id and records the id in the
// index.
func (p *Prefs) WriteKeys(id uint32, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode keys/%d: %v", domain.ErrPersistence, id, err)
	}
	if p.passphrase != "" {
		raw, err = sealEnvelope(p.passphrase, raw)
		if err != nil {
			return err
		}
	}
	if err := p.writeAtomic(p.keysPath(id), raw); err != nil {
		return err
	}
	return p.addToIndex(id)
}

// KnownIDs returns the registration ids present in the index.
func (p *Prefs) KnownIDs() ([]uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readIndex()
}

// Delete removes the keys document for id and drops it from the index.
func (p *Prefs) Delete(id uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.Remove(p.keysPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	ids, err := p.readIndex()
	if err != nil {
		return err
	}
	ids = slices.DeleteFunc(ids, func(v uint32) bool { return v == id })
	return p.writeIndex(ids)
}

// DeleteAll removes every keys document and the index by clearing
// <root>/keys, which is left in place empty. Other files under the
// root are not touched.
func (p *Prefs) DeleteAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(p.root, keysDir)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if err := os.MkdirAll(filepath.Join(p.root, keysDir), 0o700); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (p *Prefs) keysPath(id uint32) string {
	return filepath.Join(p.root, keysDir, fmt.Sprintf("%d.json", id))
}

func (p *Prefs) indexPath() string {
	return filepath.Join(p.root, keysDir, "index.json")
}

func (p *Prefs) readIndex() ([]uint32, error) {
	raw, err := os.ReadFile(p.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	var ids []uint32
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: decode index: %v", domain.ErrPersistence, err)
	}
	return ids, nil
}

func (p *Prefs) writeIndex(ids []uint32) error {
	raw, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode index: %v", domain.ErrPersistence, err)
	}
	return p.writeAtomic(p.indexPath(), raw)
}

func (p *Prefs) addToIndex(id uint32) error {
	ids, err := p.readIndex()
	if err != nil {
		return err
	}
	if slices.Contains(ids, id) {
		return nil
	}
	return p.writeIndex(append(ids, id))
}

// writeAtomic writes via a temp file then rename.
func (p *Prefs) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}
