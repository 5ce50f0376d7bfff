package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vanpelt/livesync/internal/livesync"
	"github.com/vanpelt/livesync/internal/models"
	"github.com/vanpelt/livesync/internal/protocol"
	"github.com/vanpelt/livesync/internal/store"
)

func newEditing(t *testing.T) *EditingService {
	t.Helper()
	svc := NewEditingService(store.NewMemory())
	t.Cleanup(func() { _ = svc.Close() })
	_, err := svc.Put(context.Background(), "img-1", models.ResourcePutRequest{
		Kind:   "image",
		Fields: map[string]any{"name": "web", "ports": []any{"80"}},
	})
	require.NoError(t, err)
	return svc
}

func TestEditing_SnapshotIsFullResource(t *testing.T) {
	svc := newEditing(t)

	sub := &recorder{id: "s"}
	require.NoError(t, svc.Registry().Subscribe(context.Background(), "img-1", sub))
	msg := sub.last(t)
	require.Equal(t, protocol.TypeUpdate, msg.Type)
	assert.Equal(t, "web", msg.Payload.(*protocol.UpdatePayload).Fields["name"])

	err := svc.Registry().Subscribe(context.Background(), "missing", &recorder{id: "x"})
	assert.ErrorIs(t, err, livesync.ErrUnknownResource)
}

func TestEditing_ApplyBroadcastsToOthersOnly(t *testing.T) {
	svc := newEditing(t)
	ctx := context.Background()

	sender, other := &recorder{id: "sender"}, &recorder{id: "other"}
	require.NoError(t, svc.Registry().Subscribe(ctx, "img-1", sender))
	require.NoError(t, svc.Registry().Subscribe(ctx, "img-1", other))

	res, err := svc.Apply(ctx, "sender", &protocol.PatchPayload{
		ID:           "img-1",
		Fields:       map[string]any{"tag": "v2"},
		ResetSection: "ports",
	})
	require.NoError(t, err)
	assert.Equal(t, "v2", res.Fields["tag"])
	assert.Nil(t, res.Fields["ports"])

	assert.Len(t, sender.messages(t), 1, "sender only has its initial snapshot")

	update := other.last(t).Payload.(*protocol.UpdatePayload)
	assert.Equal(t, map[string]any{"tag": "v2", "ports": nil}, update.Fields)

	// A fresh subscriber sees the patched state
	late := &recorder{id: "late"}
	require.NoError(t, svc.Registry().Subscribe(ctx, "img-1", late))
	assert.Equal(t, "v2", late.last(t).Payload.(*protocol.UpdatePayload).Fields["tag"])
}

func TestEditing_ResetUserSectionRestoresDefault(t *testing.T) {
	svc := newEditing(t)
	ctx := context.Background()

	other := &recorder{id: "other"}
	require.NoError(t, svc.Registry().Subscribe(ctx, "img-1", other))

	_, err := svc.Apply(ctx, "sender", &protocol.PatchPayload{ID: "img-1", Fields: map[string]any{"user": 1000}})
	require.NoError(t, err)

	res, err := svc.Apply(ctx, "sender", &protocol.PatchPayload{ID: "img-1", ResetSection: "user"})
	require.NoError(t, err)
	assert.EqualValues(t, -1, res.Fields["user"])

	update := other.last(t).Payload.(*protocol.UpdatePayload)
	require.Contains(t, update.Fields, "user")
	assert.EqualValues(t, -1, update.Fields["user"])

	stored, err := svc.Get(ctx, "img-1")
	require.NoError(t, err)
	assert.EqualValues(t, -1, stored.Fields["user"])
	assert.Nil(t, ResetValue("ports"), "other sections reset to null")
}

func TestEditing_DeleteNotifiesEveryone(t *testing.T) {
	svc := newEditing(t)
	ctx := context.Background()

	sub := &recorder{id: "s"}
	require.NoError(t, svc.Registry().Subscribe(ctx, "img-1", sub))
	require.NoError(t, svc.Delete(ctx, "img-1"))

	msg := sub.last(t)
	require.Equal(t, protocol.TypeDeleted, msg.Type)
	assert.Equal(t, "img-1", msg.Payload.(*protocol.DeletedPayload).ID)

	assert.ErrorIs(t, svc.Delete(ctx, "img-1"), livesync.ErrUnknownResource)
	_, ok := svc.Registry().Snapshot("img-1")
	assert.False(t, ok)
}

func startEditor(t *testing.T, svc *EditingService, editor models.Editor) (*livesync.Session, *pipeConn) {
	t.Helper()
	conn := newPipeConn()
	sess := livesync.NewSession(conn, livesync.SessionConfig{
		Identity: editor,
		Registry: svc.Registry(),
		Presence: svc.Presence(),
		Handlers: svc.Handlers("img-1"),
	})
	go func() { _ = sess.Run(context.Background()) }()
	t.Cleanup(func() { _ = sess.Close() })
	return sess, conn
}

func TestEditing_SessionFlow(t *testing.T) {
	svc := newEditing(t)

	alice, aliceConn := startEditor(t, svc, models.Editor{ID: "alice"})
	_, bobConn := startEditor(t, svc, models.Editor{ID: "bob"})

	// Without a resource id the session watches its version
	aliceConn.send(t, protocol.TypeWatchRequest, protocol.WatchRequestPayload{Prefix: "ignored"})
	aliceConn.expect(t, protocol.TypeUpdate)
	bobConn.send(t, protocol.TypeWatchRequest, protocol.WatchRequestPayload{ResourceID: "img-1"})
	bobConn.expect(t, protocol.TypeUpdate)

	aliceConn.send(t, protocol.TypePresenceJoin, protocol.PresencePayload{EditorID: "mallory"})
	join := aliceConn.expect(t, protocol.TypePresenceJoin).Payload.(*protocol.PresencePayload)
	assert.Equal(t, "alice", join.EditorID, "identity comes from the connection")
	bobConn.expect(t, protocol.TypePresenceJoin)

	aliceConn.send(t, protocol.TypePatch, protocol.PatchPayload{ID: "img-1", Fields: map[string]any{"name": "api"}})
	ack := aliceConn.expect(t, protocol.TypePatchReceived)
	assert.Equal(t, "img-1", ack.Payload.(*protocol.PatchReceivedPayload).ID)
	update := bobConn.expect(t, protocol.TypeUpdate)
	assert.Equal(t, "api", update.Payload.(*protocol.UpdatePayload).Fields["name"])

	aliceConn.send(t, protocol.TypePatch, protocol.PatchPayload{ID: "img-2", Fields: map[string]any{"name": "x"}})
	msg := aliceConn.expect(t, protocol.TypeError)
	assert.Equal(t, protocol.CodeBadRequest, msg.Payload.(*protocol.ErrorPayload).Code)

	require.NoError(t, alice.Close())
	leave := bobConn.expect(t, protocol.TypePresenceLeave).Payload.(*protocol.PresencePayload)
	assert.Equal(t, "alice", leave.EditorID)
	assert.Empty(t, leave.Editors)
	assert.False(t, svc.Presence().IsEditing("img-1", "alice"))
}
