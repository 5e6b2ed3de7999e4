package lthash

import (
	"encoding/binary"

	"github.com/ssouza/wamd/internal/crypto"
)

// Size is the width of the accumulator in bytes.
const Size = 128

var expandInfo = []byte("WhatsApp Patch Integrity")

// Add folds items into the accumulator. The accumulator is mutated in
// place and must be Size bytes.
func Add(acc []byte, items ...[]byte) error {
	return fold(acc, false, items)
}

// Subtract removes items from the accumulator.
func Subtract(acc []byte, items ...[]byte) error {
	return fold(acc, true, items)
}

// Mix subtracts then adds in one pass, the shape every SET-over-SET
// mutation takes.
func Mix(acc []byte, remove, add [][]byte) error {
	if err := fold(acc, true, remove); err != nil {
		return err
	}
	return fold(acc, false, add)
}

func fold(acc []byte, subtract bool, items [][]byte) error {
	for _, item := range items {
		elem, err := crypto.HKDF(item, nil, expandInfo, Size)
		if err != nil {
			return err
		}
		combine(acc, elem, subtract)
	}
	return nil
}

func combine(acc, elem []byte, subtract bool) {
	for i := 0; i < Size; i += 2 {
		a := binary.LittleEndian.Uint16(acc[i:])
		e := binary.LittleEndian.Uint16(elem[i:])
		if subtract {
			a -= e
		} else {
			a += e
		}
		binary.LittleEndian.PutUint16(acc[i:], a)
	}
}
