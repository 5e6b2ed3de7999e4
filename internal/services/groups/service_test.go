package groups_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ssouza/wamd/internal/domain"
	"github.com/ssouza/wamd/internal/keys"
	"github.com/ssouza/wamd/internal/services/groups"
	"github.com/ssouza/wamd/internal/store"
	"github.com/ssouza/wamd/internal/wire"
)

func newService(t *testing.T, id uint32) (*groups.Service, *keys.Keys) {
	t.Helper()
	prefs, err := store.NewPrefs(t.TempDir(), "")
	require.NoError(t, err)
	ks, err := keys.NewRandom(prefs, id)
	require.NoError(t, err)
	return groups.New(ks, groups.DefaultConfig()), ks
}

func TestGroup_DistributeEncryptDecrypt(t *testing.T) {
	ctx := context.Background()
	sender, _ := newService(t, 1)
	receiver, _ := newService(t, 2)

	name := domain.NewSenderKeyName("group@g.us", domain.NewSessionAddress("alice", 0))

	dist, err := sender.CreateDistribution(ctx, name)
	require.NoError(t, err)
	require.NoError(t, receiver.ProcessDistribution(ctx, name, dist))

	ct, err := sender.Encrypt(ctx, name, []byte("to the group"))
	require.NoError(t, err)
	pt, err := receiver.Decrypt(ctx, name, ct)
	require.NoError(t, err)
	require.Equal(t, "to the group", string(pt))
}

func TestGroup_OutOfOrderDelivery(t *testing.T) {
	ctx := context.Background()
	sender, _ := newService(t, 1)
	receiver, receiverKeys := newService(t, 2)
	name := domain.NewSenderKeyName("group@g.us", domain.NewSessionAddress("alice", 0))

	dist, err := sender.CreateDistribution(ctx, name)
	require.NoError(t, err)
	require.NoError(t, receiver.ProcessDistribution(ctx, name, dist))

	a, err := sender.Encrypt(ctx, name, []byte("A")) // iteration 0
	require.NoError(t, err)
	b, err := sender.Encrypt(ctx, name, []byte("B")) // iteration 1
	require.NoError(t, err)

	// B first: the key for iteration 0 must be stashed.
	pt, err := receiver.Decrypt(ctx, name, b)
	require.NoError(t, err)
	require.Equal(t, "B", string(pt))

	rec, ok := receiverKeys.SenderKey(name)
	require.True(t, ok)
	require.Len(t, rec.Current().MessageKeys, 1)

	pt, err = receiver.Decrypt(ctx, name, a)
	require.NoError(t, err)
	require.Equal(t, "A", string(pt))

	rec, _ = receiverKeys.SenderKey(name)
	require.Empty(t, rec.Current().MessageKeys, "stashed key must be erased after use")

	// Replaying A is a duplicate.
	_, err = receiver.Decrypt(ctx, name, a)
	require.ErrorIs(t, err, domain.ErrDuplicateMessage)
}

func TestGroup_LateJoinerReadsForwardOnly(t *testing.T) {
	ctx := context.Background()
	sender, _ := newService(t, 1)
	late, _ := newService(t, 2)
	name := domain.NewSenderKeyName("group@g.us", domain.NewSessionAddress("alice", 0))

	_, err := sender.CreateDistribution(ctx, name)
	require.NoError(t, err)
	early, err := sender.Encrypt(ctx, name, []byte("before join"))
	require.NoError(t, err)

	// The late joiner receives a distribution at the current iteration.
	dist, err := sender.CreateDistribution(ctx, name)
	require.NoError(t, err)
	require.NoError(t, late.ProcessDistribution(ctx, name, dist))

	after, err := sender.Encrypt(ctx, name, []byte("after join"))
	require.NoError(t, err)
	pt, err := late.Decrypt(ctx, name, after)
	require.NoError(t, err)
	require.Equal(t, "after join", string(pt))

	// Messages from before the join are out of reach.
	_, err = late.Decrypt(ctx, name, early)
	require.ErrorIs(t, err, domain.ErrDuplicateMessage)
}

func TestGroup_TamperedSignature(t *testing.T) {
	ctx := context.Background()
	sender, _ := newService(t, 1)
	receiver, _ := newService(t, 2)
	name := domain.NewSenderKeyName("group@g.us", domain.NewSessionAddress("alice", 0))

	dist, err := sender.CreateDistribution(ctx, name)
	require.NoError(t, err)
	require.NoError(t, receiver.ProcessDistribution(ctx, name, dist))

	ct, err := sender.Encrypt(ctx, name, []byte("payload"))
	require.NoError(t, err)
	ct[len(ct)-1] ^= 0x01
	_, err = receiver.Decrypt(ctx, name, ct)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestGroup_UnknownKeyID(t *testing.T) {
	ctx := context.Background()
	sender, _ := newService(t, 1)
	receiver, _ := newService(t, 2)
	name := domain.NewSenderKeyName("group@g.us", domain.NewSessionAddress("alice", 0))

	dist, err := sender.CreateDistribution(ctx, name)
	require.NoError(t, err)
	require.NoError(t, receiver.ProcessDistribution(ctx, name, dist))

	ct, err := sender.Encrypt(ctx, name, []byte("payload"))
	require.NoError(t, err)

	msg, _, sig, err := wire.ParseSenderKeyMessage(ct)
	require.NoError(t, err)
	msg.KeyID++
	forged := append(msg.Marshal(), sig[:]...)

	_, err = receiver.Decrypt(ctx, name, forged)
	require.ErrorIs(t, err, domain.ErrInvalidKeyID)
}

func TestGroup_EncryptWithoutStateFails(t *testing.T) {
	ctx := context.Background()
	receiver, _ := newService(t, 2)
	name := domain.NewSenderKeyName("group@g.us", domain.NewSessionAddress("alice", 0))

	_, err := receiver.Encrypt(ctx, name, []byte("payload"))
	require.ErrorIs(t, err, domain.ErrNoValidSessions)
}
