package ratchet_test

import (
	"bytes"
	"testing"

	"github.com/ssouza/wamd/internal/crypto"
	"github.com/ssouza/wamd/internal/protocol/ratchet"
)

func TestChainStep_DeterministicAndDistinct(t *testing.T) {
	ck := crypto.Random(32)

	next1 := ratchet.NextChainKey(ck)
	next2 := ratchet.NextChainKey(ck)
	if !bytes.Equal(next1, next2) {
		t.Fatal("chain step is not deterministic")
	}
	if bytes.Equal(next1, ck) {
		t.Fatal("chain key did not advance")
	}
	if bytes.Equal(ratchet.MessageKeySeed(ck), next1) {
		t.Fatal("message seed equals next chain key")
	}
}

func TestDeriveMessageKeys_Widths(t *testing.T) {
	seed := ratchet.MessageKeySeed(crypto.Random(32))
	mk, err := ratchet.DeriveMessageKeys(seed)
	if err != nil {
		t.Fatalf("DeriveMessageKeys: %v", err)
	}
	if len(mk.CipherKey) != 32 || len(mk.MacKey) != 32 || len(mk.IV) != 16 {
		t.Fatalf("widths: cipher %d, mac %d, iv %d", len(mk.CipherKey), len(mk.MacKey), len(mk.IV))
	}
	if bytes.Equal(mk.CipherKey, mk.MacKey) {
		t.Fatal("cipher and mac keys are equal")
	}
}

func TestStepRootKey_FreshPerDH(t *testing.T) {
	root := crypto.Random(32)
	dh1 := crypto.Random(32)
	dh2 := crypto.Random(32)

	root1, chain1, err := ratchet.StepRootKey(root, dh1)
	if err != nil {
		t.Fatalf("StepRootKey: %v", err)
	}
	root2, chain2, err := ratchet.StepRootKey(root, dh2)
	if err != nil {
		t.Fatalf("StepRootKey: %v", err)
	}
	if bytes.Equal(root1, root2) || bytes.Equal(chain1, chain2) {
		t.Fatal("different DH outputs produced matching chains")
	}
	if bytes.Equal(root1, root) {
		t.Fatal("root key did not advance")
	}
}

func TestDeriveGroupKeys_Widths(t *testing.T) {
	seed := ratchet.MessageKeySeed(crypto.Random(32))
	gk, err := ratchet.DeriveGroupKeys(seed)
	if err != nil {
		t.Fatalf("DeriveGroupKeys: %v", err)
	}
	if len(gk.IV) != 16 || len(gk.CipherKey) != 32 {
		t.Fatalf("widths: iv %d, cipher %d", len(gk.IV), len(gk.CipherKey))
	}
}
