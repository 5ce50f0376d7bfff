package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vanpelt/livesync/internal/models"
	"github.com/vanpelt/livesync/internal/protocol"
)

func stateList(resourceID string, containers ...models.Container) protocol.Message {
	return protocol.Message{
		Type:    protocol.TypeContainersStateList,
		Payload: &protocol.ContainersStateListPayload{ResourceID: resourceID, Containers: containers},
	}
}

func withState(name string, state models.ContainerState) models.Container {
	return models.Container{ID: models.ContainerID{Prefix: "shop", Name: name}, State: models.StatePtr(state)}
}

func TestContainerView_MergesPushes(t *testing.T) {
	view := NewContainerView("node-1/shop", []models.Container{
		{ID: models.ContainerID{Prefix: "shop", Name: "web"}},
		{ID: models.ContainerID{Prefix: "shop", Name: "db"}},
	})

	assert.True(t, view.Apply(stateList("node-1/shop", withState("db", models.ContainerStateRunning))))
	got := view.Containers()
	require.Len(t, got, 2)
	assert.Equal(t, "unknown", got[0].StateOrUnknown())
	assert.Equal(t, "running", got[1].StateOrUnknown())

	// Empty pushes never regress
	assert.False(t, view.Apply(stateList("node-1/shop")))
	assert.Equal(t, got, view.Containers())

	// Other resources are ignored
	assert.False(t, view.Apply(stateList("node-1/other", withState("web", models.ContainerStateDead))))
	assert.Equal(t, got, view.Containers())
}

func TestContainerView_RemovesExplicitly(t *testing.T) {
	view := NewContainerView("node-1/shop", nil)
	view.Apply(stateList("node-1/shop", withState("web", models.ContainerStateRunning), withState("db", models.ContainerStateRunning)))
	require.Len(t, view.Containers(), 2)

	changed := view.Apply(protocol.Message{
		Type: protocol.TypeContainersRemoved,
		Payload: &protocol.ContainersRemovedPayload{
			ResourceID: "node-1/shop",
			IDs:        []models.ContainerID{{Prefix: "shop", Name: "web"}},
		},
	})
	assert.True(t, changed)
	require.Len(t, view.Containers(), 1)
	assert.Equal(t, "shop-db", view.Containers()[0].Key())
}
