package cipher_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ssouza/wamd/internal/domain"
	"github.com/ssouza/wamd/internal/keys"
	"github.com/ssouza/wamd/internal/services/cipher"
	"github.com/ssouza/wamd/internal/services/groups"
	"github.com/ssouza/wamd/internal/services/prekey"
	"github.com/ssouza/wamd/internal/store"
)

// party bundles one device's keys state and services.
type party struct {
	addr    domain.SessionAddress
	keys    *keys.Keys
	cipher  *cipher.Service
	prekeys *prekey.Service
}

func newParty(t *testing.T, user string, id uint32) *party {
	t.Helper()
	prefs, err := store.NewPrefs(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewPrefs: %v", err)
	}
	ks, err := keys.NewRandom(prefs, id)
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	gs := groups.New(ks, groups.DefaultConfig())
	return &party{
		addr:    domain.NewSessionAddress(user, 0),
		keys:    ks,
		cipher:  cipher.New(ks, gs, cipher.DefaultConfig()),
		prekeys: prekey.New(ks, 5),
	}
}

// connect runs X3DH from initiator to responder using a fresh bundle.
func connect(t *testing.T, initiator, responder *party) *domain.PreKeyBundle {
	t.Helper()
	bundle, err := responder.prekeys.Bundle(context.Background())
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if err := initiator.cipher.InitiateSession(context.Background(), responder.addr, bundle); err != nil {
		t.Fatalf("InitiateSession: %v", err)
	}
	return bundle
}

func send(t *testing.T, from *party, to *party, plaintext string) (cipher.Kind, []byte) {
	t.Helper()
	kind, payload, err := from.cipher.ProcessOutbound(context.Background(), to.addr, "", []byte(plaintext), cipher.KindMessage)
	if err != nil {
		t.Fatalf("ProcessOutbound(%q): %v", plaintext, err)
	}
	return kind, payload
}

func receive(t *testing.T, at *party, from *party, kind cipher.Kind, payload []byte) string {
	t.Helper()
	pt, err := at.cipher.ProcessInbound(context.Background(), cipher.Envelope{
		Kind: kind, From: from.addr, Payload: payload,
	})
	if err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}
	return string(pt)
}

func TestSession_FirstMessageRoundTrip(t *testing.T) {
	alice := newParty(t, "alice", 1)
	bob := newParty(t, "bob", 2)
	connect(t, alice, bob)

	kind, payload := send(t, alice, bob, "hello bob")
	if kind != cipher.KindPreKey {
		t.Fatalf("first message kind %q, want pkmsg", kind)
	}
	if got := receive(t, bob, alice, kind, payload); got != "hello bob" {
		t.Fatalf("got %q", got)
	}

	// Bob's reply is a plain whisper message and confirms the session:
	// Alice drops her pending handshake once she decrypts it.
	kind, payload = send(t, bob, alice, "hello alice")
	if kind != cipher.KindMessage {
		t.Fatalf("reply kind %q, want msg", kind)
	}
	if got := receive(t, alice, bob, kind, payload); got != "hello alice" {
		t.Fatalf("got %q", got)
	}

	kind, _, err := alice.cipher.ProcessOutbound(context.Background(), bob.addr, "", []byte("x"), cipher.KindMessage)
	if err != nil {
		t.Fatalf("ProcessOutbound: %v", err)
	}
	if kind != cipher.KindMessage {
		t.Fatalf("post-confirmation kind %q, want msg", kind)
	}
}

func TestSession_RatchetRotationAcrossTurns(t *testing.T) {
	alice := newParty(t, "alice", 1)
	bob := newParty(t, "bob", 2)
	connect(t, alice, bob)

	// Alternate speakers for several turns; every turn rotates the DH
	// ratchet and both sides must stay in sync.
	msgs := []string{"one", "two", "three", "four", "five", "six"}
	for i, m := range msgs {
		a, b := alice, bob
		if i%2 == 1 {
			a, b = bob, alice
		}
		kind, payload := send(t, a, b, m)
		if got := receive(t, b, a, kind, payload); got != m {
			t.Fatalf("turn %d: got %q, want %q", i, got, m)
		}
	}
}

func TestSession_BurstWithinOneChain(t *testing.T) {
	alice := newParty(t, "alice", 1)
	bob := newParty(t, "bob", 2)
	connect(t, alice, bob)

	kinds := make([]cipher.Kind, 0, 4)
	payloads := make([][]byte, 0, 4)
	for _, m := range []string{"m0", "m1", "m2", "m3"} {
		k, p := send(t, alice, bob, m)
		kinds = append(kinds, k)
		payloads = append(payloads, p)
	}
	for i, want := range []string{"m0", "m1", "m2", "m3"} {
		if got := receive(t, bob, alice, kinds[i], payloads[i]); got != want {
			t.Fatalf("message %d: got %q", i, got)
		}
	}
}

func TestSession_OutOfOrderDelivery(t *testing.T) {
	alice := newParty(t, "alice", 1)
	bob := newParty(t, "bob", 2)
	connect(t, alice, bob)

	kindHello, hello := send(t, alice, bob, "hello")
	kindWorld, world := send(t, alice, bob, "world")

	// "world" (counter 1) arrives first: its decrypt must stash the
	// message key for counter 0.
	if got := receive(t, bob, alice, kindWorld, world); got != "world" {
		t.Fatalf("got %q", got)
	}
	sess, ok := bob.keys.Session(alice.addr)
	if !ok {
		t.Fatal("no session after decrypt")
	}
	if n := sess.SkippedTotal(); n != 1 {
		t.Fatalf("skipped keys after out-of-order decrypt: %d, want 1", n)
	}

	// "hello" consumes the stashed key and erases it.
	if got := receive(t, bob, alice, kindHello, hello); got != "hello" {
		t.Fatalf("got %q", got)
	}
	sess, _ = bob.keys.Session(alice.addr)
	if n := sess.SkippedTotal(); n != 0 {
		t.Fatalf("skipped keys after catch-up: %d, want 0", n)
	}
}

func TestSession_DuplicateMessageRejected(t *testing.T) {
	alice := newParty(t, "alice", 1)
	bob := newParty(t, "bob", 2)
	connect(t, alice, bob)

	kind, payload := send(t, alice, bob, "hi")
	receive(t, bob, alice, kind, payload)
	kind, payload = send(t, bob, alice, "hi back")
	receive(t, alice, bob, kind, payload)

	// An established-session whisper message replayed verbatim.
	kind, payload = send(t, alice, bob, "again")
	receive(t, bob, alice, kind, payload)
	_, err := bob.cipher.ProcessInbound(context.Background(), cipher.Envelope{
		Kind: kind, From: alice.addr, Payload: payload,
	})
	if !errors.Is(err, domain.ErrDuplicateMessage) {
		t.Fatalf("replay: got %v, want ErrDuplicateMessage", err)
	}
}

func TestSession_PreKeyReuseRejected(t *testing.T) {
	alice := newParty(t, "alice", 1)
	bob := newParty(t, "bob", 2)
	carol := newParty(t, "carol", 3)

	bundle := connect(t, alice, bob)
	kind, payload := send(t, alice, bob, "first")
	receive(t, bob, alice, kind, payload)

	// Carol initiates with the same bundle: the one-time pre-key id was
	// consumed by Alice's message and must be refused.
	if err := carol.cipher.InitiateSession(context.Background(), bob.addr, bundle); err != nil {
		t.Fatalf("InitiateSession: %v", err)
	}
	_, payload2, err := carol.cipher.ProcessOutbound(context.Background(), bob.addr, "", []byte("second"), cipher.KindMessage)
	if err != nil {
		t.Fatalf("ProcessOutbound: %v", err)
	}
	_, err = bob.cipher.ProcessInbound(context.Background(), cipher.Envelope{
		Kind: cipher.KindPreKey, From: carol.addr, Payload: payload2,
	})
	if !errors.Is(err, domain.ErrInvalidKeyID) {
		t.Fatalf("pre-key reuse: got %v, want ErrInvalidKeyID", err)
	}
}

func TestSession_TamperedMACLeavesStateUntouched(t *testing.T) {
	alice := newParty(t, "alice", 1)
	bob := newParty(t, "bob", 2)
	connect(t, alice, bob)

	kind, payload := send(t, alice, bob, "hi")
	receive(t, bob, alice, kind, payload)
	kind, payload = send(t, bob, alice, "ok")
	receive(t, alice, bob, kind, payload)

	kind, payload = send(t, alice, bob, "target")
	before, _ := bob.keys.Session(alice.addr)
	beforeChains := len(before.Receiving)

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-1] ^= 0x01
	_, err := bob.cipher.ProcessInbound(context.Background(), cipher.Envelope{
		Kind: kind, From: alice.addr, Payload: tampered,
	})
	if !errors.Is(err, domain.ErrMacMismatch) {
		t.Fatalf("tampered mac: got %v, want ErrMacMismatch", err)
	}

	after, _ := bob.keys.Session(alice.addr)
	if len(after.Receiving) != beforeChains {
		t.Fatal("failed decrypt mutated receiving chains")
	}
	// The untampered original still decrypts.
	if got := receive(t, bob, alice, kind, payload); got != "target" {
		t.Fatalf("got %q", got)
	}
}

func TestSession_NoValidSessions(t *testing.T) {
	alice := newParty(t, "alice", 1)
	bob := newParty(t, "bob", 2)

	_, _, err := alice.cipher.ProcessOutbound(context.Background(), bob.addr, "", []byte("x"), cipher.KindMessage)
	if !errors.Is(err, domain.ErrNoValidSessions) {
		t.Fatalf("send without session: got %v, want ErrNoValidSessions", err)
	}
	_, err = alice.cipher.ProcessInbound(context.Background(), cipher.Envelope{
		Kind: cipher.KindMessage, From: bob.addr, Payload: []byte("junk"),
	})
	if !errors.Is(err, domain.ErrNoValidSessions) {
		t.Fatalf("receive without session: got %v, want ErrNoValidSessions", err)
	}
}

func TestSession_UntrustedIdentityDestroysSession(t *testing.T) {
	alice := newParty(t, "alice", 1)
	bob := newParty(t, "bob", 2)
	mallory := newParty(t, "mallory", 3)

	connect(t, alice, bob)
	kind, payload := send(t, alice, bob, "real")
	receive(t, bob, alice, kind, payload)

	// Mallory replays a handshake under Alice's address with her own
	// identity key. The pinned identity must win and the poisoned
	// session must be destroyed.
	bundle, err := bob.prekeys.Bundle(context.Background())
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if err := mallory.cipher.InitiateSession(context.Background(), bob.addr, bundle); err != nil {
		t.Fatalf("InitiateSession: %v", err)
	}
	_, forged, err := mallory.cipher.ProcessOutbound(context.Background(), bob.addr, "", []byte("fake"), cipher.KindMessage)
	if err != nil {
		t.Fatalf("ProcessOutbound: %v", err)
	}
	_, err = bob.cipher.ProcessInbound(context.Background(), cipher.Envelope{
		Kind: cipher.KindPreKey, From: alice.addr, Payload: forged,
	})
	if !errors.Is(err, domain.ErrUntrustedIdentity) {
		t.Fatalf("forged identity: got %v, want ErrUntrustedIdentity", err)
	}
	if _, ok := bob.keys.Session(alice.addr); ok {
		t.Fatal("session survived an identity mismatch")
	}
}

func TestSession_CancelledContext(t *testing.T) {
	alice := newParty(t, "alice", 1)
	bob := newParty(t, "bob", 2)
	connect(t, alice, bob)
	kind, payload := send(t, alice, bob, "hi")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bob.cipher.ProcessInbound(ctx, cipher.Envelope{Kind: kind, From: alice.addr, Payload: payload})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	// The cancelled receive left no session behind; the payload still
	// decrypts afterwards.
	if got := receive(t, bob, alice, kind, payload); got != "hi" {
		t.Fatalf("got %q", got)
	}
}
