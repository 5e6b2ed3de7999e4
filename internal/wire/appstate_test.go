package wire_test

import (
	"bytes"
	"testing"

	"github.com/ssouza/wamd/internal/crypto"
	"github.com/ssouza/wamd/internal/domain"
	"github.com/ssouza/wamd/internal/wire"
)

func TestPatchSync_RoundTrip(t *testing.T) {
	in := &wire.PatchSync{
		Version: 12,
		Mutations: []*wire.MutationSync{
			{
				Operation:       domain.MutationSet,
				IndexMAC:        crypto.Random(32),
				ValueMAC:        crypto.Random(32),
				KeyID:           []byte{1, 2, 3},
				EncryptedAction: crypto.Random(48),
			},
			{
				Operation:       domain.MutationRemove,
				IndexMAC:        crypto.Random(32),
				ValueMAC:        crypto.Random(32),
				KeyID:           []byte{1, 2, 3},
				EncryptedAction: crypto.Random(32),
			},
		},
		External: &wire.ExternalBlobReference{
			MediaKey:   crypto.Random(32),
			DirectPath: "/v/t62.1234",
			Handle:     "handle",
			FileSize:   1024,
			FileSHA256: crypto.Random(32),
		},
		SnapshotMAC: crypto.Random(32),
		PatchMAC:    crypto.Random(32),
		KeyID:       []byte{1, 2, 3},
	}
	out, err := wire.ParsePatchSync(in.Marshal())
	if err != nil {
		t.Fatalf("ParsePatchSync: %v", err)
	}
	if out.Version != 12 || len(out.Mutations) != 2 {
		t.Fatalf("fields: version %d, mutations %d", out.Version, len(out.Mutations))
	}
	if out.Mutations[0].Operation != domain.MutationSet || out.Mutations[1].Operation != domain.MutationRemove {
		t.Fatal("operations mismatch")
	}
	if !bytes.Equal(out.Mutations[0].IndexMAC, in.Mutations[0].IndexMAC) {
		t.Fatal("index mac mismatch")
	}
	if out.External == nil || out.External.DirectPath != "/v/t62.1234" || out.External.FileSize != 1024 {
		t.Fatalf("external: %+v", out.External)
	}
	if !bytes.Equal(out.PatchMAC, in.PatchMAC) || !bytes.Equal(out.SnapshotMAC, in.SnapshotMAC) {
		t.Fatal("mac mismatch")
	}
}

func TestSnapshotSync_RoundTrip(t *testing.T) {
	in := &wire.SnapshotSync{
		Version: 5,
		Records: []*wire.MutationSync{{
			Operation:       domain.MutationSet,
			IndexMAC:        crypto.Random(32),
			ValueMAC:        crypto.Random(32),
			EncryptedAction: crypto.Random(64),
		}},
		MAC:   crypto.Random(32),
		KeyID: []byte{9},
	}
	out, err := wire.ParseSnapshotSync(in.Marshal())
	if err != nil {
		t.Fatalf("ParseSnapshotSync: %v", err)
	}
	if out.Version != 5 || len(out.Records) != 1 || !bytes.Equal(out.MAC, in.MAC) {
		t.Fatalf("fields: %+v", out)
	}
}

func TestSyncActionData_RoundTrip(t *testing.T) {
	in := &wire.SyncActionData{
		Index:   []byte(`["mute","123@g.us"]`),
		Value:   []byte("opaque action"),
		Padding: []byte{0, 0, 0},
		Version: 2,
	}
	out, err := wire.ParseSyncActionData(in.Marshal())
	if err != nil {
		t.Fatalf("ParseSyncActionData: %v", err)
	}
	if !bytes.Equal(out.Index, in.Index) || !bytes.Equal(out.Value, in.Value) || out.Version != 2 {
		t.Fatalf("fields: %+v", out)
	}
}

func TestSignedDeviceIdentity_RoundTrip(t *testing.T) {
	in := &wire.SignedDeviceIdentity{
		Details:             crypto.Random(80),
		AccountSignatureKey: crypto.Random(32),
		AccountSignature:    crypto.Random(64),
	}
	out, err := wire.ParseSignedDeviceIdentity(in.Marshal())
	if err != nil {
		t.Fatalf("ParseSignedDeviceIdentity: %v", err)
	}
	if !bytes.Equal(out.Details, in.Details) || !bytes.Equal(out.AccountSignature, in.AccountSignature) {
		t.Fatal("field mismatch")
	}
	if out.DeviceSignature != nil {
		t.Fatal("device signature should be absent")
	}
}
