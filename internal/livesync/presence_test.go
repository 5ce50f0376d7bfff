package livesync

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vanpelt/livesync/internal/models"
	"github.com/vanpelt/livesync/internal/protocol"
)

func TestPresence_JoinLeaveBroadcastsFullSet(t *testing.T) {
	r := NewRegistry("editing")
	defer r.Close()
	p := NewPresenceTracker(r)

	watcher := newRecorder("watcher")
	require.NoError(t, r.Subscribe(context.Background(), "img-1", watcher))

	alice := models.Editor{ID: "alice", Name: "Alice"}
	bob := models.Editor{ID: "bob"}

	assert.True(t, p.Join("img-1", alice, "sa"))
	assert.False(t, p.Join("img-1", alice, "sa"), "second join is a no-op")
	assert.True(t, p.Join("img-1", bob, "sb"))

	assert.Equal(t, []models.Editor{alice, bob}, p.Editors("img-1"))
	assert.True(t, p.IsEditing("img-1", "bob"))

	assert.True(t, p.Leave("img-1", "alice", "sa"))
	assert.False(t, p.Leave("img-1", "alice", "sa"), "second leave is a no-op")

	frames := watcher.Frames()
	require.Len(t, frames, 3)

	last, err := protocol.Decode(frames[2])
	require.NoError(t, err)
	assert.Equal(t, protocol.TypePresenceLeave, last.Type)
	payload := last.Payload.(*protocol.PresencePayload)
	assert.Equal(t, "alice", payload.EditorID)
	assert.Equal(t, []models.Editor{bob}, payload.Editors)
}

func TestPresence_EmptySetIsDropped(t *testing.T) {
	r := NewRegistry("editing")
	defer r.Close()
	p := NewPresenceTracker(r)

	p.Join("img-1", models.Editor{ID: "alice"}, "sa")
	p.Leave("img-1", "alice", "sa")

	assert.Empty(t, p.Editors("img-1"))
	late := newRecorder("late")
	require.NoError(t, p.SendFrame("img-1", late))
	assert.Empty(t, late.Frames())
	assert.False(t, p.Leave("never", "alice", "sa"))
}

func TestPresence_FrameDescribesCurrentSet(t *testing.T) {
	r := NewRegistry("editing")
	defer r.Close()
	p := NewPresenceTracker(r)

	p.Join("img-1", models.Editor{ID: "bob"}, "sb")
	p.Join("img-1", models.Editor{ID: "alice"}, "sa")

	sub := newRecorder("late")
	require.NoError(t, p.SendFrame("img-1", sub))
	require.Len(t, sub.Frames(), 1)
	msg, err := protocol.Decode(sub.Frames()[0])
	require.NoError(t, err)
	payload := msg.Payload.(*protocol.PresencePayload)
	require.Len(t, payload.Editors, 2)
	assert.Equal(t, "alice", payload.Editors[0].ID)
}

func TestPresence_ConcurrentJoinLeave(t *testing.T) {
	r := NewRegistry("editing")
	defer r.Close()
	p := NewPresenceTracker(r)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			holder := fmt.Sprintf("s%d", n)
			p.Join("img-1", models.Editor{ID: "alice"}, holder)
			p.Leave("img-1", "alice", holder)
		}(i)
	}
	wg.Wait()

	p.Join("img-1", models.Editor{ID: "bob"}, "sb")
	assert.Equal(t, []models.Editor{{ID: "bob"}}, p.Editors("img-1"))
}

func TestPresence_EditorStaysUntilLastHolderLeaves(t *testing.T) {
	r := NewRegistry("editing")
	defer r.Close()
	p := NewPresenceTracker(r)

	watcher := newRecorder("watcher")
	require.NoError(t, r.Subscribe(context.Background(), "img-1", watcher))

	alice := models.Editor{ID: "alice"}
	assert.True(t, p.Join("img-1", alice, "tab-1"))
	assert.False(t, p.Join("img-1", alice, "tab-2"), "another holder of a present editor does not rebroadcast")

	assert.False(t, p.Leave("img-1", "alice", "tab-1"))
	assert.True(t, p.IsEditing("img-1", "alice"))
	assert.False(t, p.Leave("img-1", "alice", "unknown-tab"))

	assert.True(t, p.Leave("img-1", "alice", "tab-2"))
	assert.False(t, p.IsEditing("img-1", "alice"))
	assert.Equal(t, []protocol.MessageType{protocol.TypePresenceJoin, protocol.TypePresenceLeave}, watcher.Types(t))
}
