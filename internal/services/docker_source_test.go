package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vanpelt/livesync/internal/models"
	"github.com/vanpelt/livesync/internal/protocol"
)

type fakeLister struct {
	mu         sync.Mutex
	containers []container.Summary
	err        error
	calls      int
}

func (f *fakeLister) ContainerList(_ context.Context, opts container.ListOptions) ([]container.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if !opts.All {
		return nil, errors.New("expected All to include stopped containers")
	}
	return append([]container.Summary(nil), f.containers...), f.err
}

func (f *fakeLister) set(containers ...container.Summary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers = containers
}

func TestSplitImage(t *testing.T) {
	cases := []struct{ in, name, tag string }{
		{"nginx", "nginx", "latest"},
		{"nginx:1.25", "nginx", "1.25"},
		{"registry:5000/shop/web", "registry:5000/shop/web", "latest"},
		{"registry:5000/shop/web:2.0@sha256:abc", "registry:5000/shop/web", "2.0"},
	}
	for _, tc := range cases {
		name, tag := splitImage(tc.in)
		assert.Equal(t, tc.name, name, tc.in)
		assert.Equal(t, tc.tag, tag, tc.in)
	}
}

func TestContainerFromSummary(t *testing.T) {
	c := containerFromSummary("shop", "db", container.Summary{
		Image:   "postgres:16",
		Created: 1700000000,
		State:   "exited",
		Status:  "Exited (1) 2 minutes ago",
		Ports: []container.Port{
			{IP: "0.0.0.0", PrivatePort: 5432, PublicPort: 15432, Type: "tcp"},
			{IP: "::", PrivatePort: 5432, PublicPort: 15432, Type: "tcp"},
			{PrivatePort: 9000, Type: "tcp"},
		},
	})

	assert.Equal(t, "shop-db", c.Key())
	assert.Equal(t, "postgres", c.ImageName)
	assert.Equal(t, "16", c.ImageTag)
	assert.Equal(t, "exited", c.StateOrUnknown())
	require.NotNil(t, c.Reason)
	assert.Equal(t, "Exited (1) 2 minutes ago", *c.Reason)
	require.NotNil(t, c.CreatedAt)
	assert.Equal(t, int64(1700000000), c.CreatedAt.Unix())
	assert.Equal(t, []models.ContainerPort{{Internal: 5432, External: 15432}}, c.Ports)
}

func TestGroupByPrefix_LongestPrefixWins(t *testing.T) {
	grouped := groupByPrefix([]container.Summary{
		{Names: []string{"/shop-web"}},
		{Names: []string{"/shop-admin-web"}},
		{Names: []string{"/unrelated"}},
		{Names: []string{"/shop-"}},
	}, []string{"shop", "shop-admin"})

	assert.Contains(t, grouped["shop"], "shop-web")
	assert.Len(t, grouped["shop"], 1)
	assert.Contains(t, grouped["shop-admin"], "shop-admin-web")
}

func TestDockerSource_PollPublishesAndRemoves(t *testing.T) {
	svc := NewContainerStatusService("node-1")
	defer svc.Close()

	watcher := &recorder{id: "w"}
	require.NoError(t, svc.Registry().Subscribe(context.Background(), "node-1/shop", watcher))

	lister := &fakeLister{}
	lister.set(
		container.Summary{Names: []string{"/shop-web"}, Image: "nginx:1.25", State: "running"},
		container.Summary{Names: []string{"/shop-db"}, Image: "postgres:16", State: "running"},
		container.Summary{Names: []string{"/other-db"}, Image: "postgres:16", State: "running"},
	)
	src := NewDockerSourceWithLister(lister, svc, 0)

	require.NoError(t, src.Poll(context.Background()))
	msg := watcher.last(t)
	require.Equal(t, protocol.TypeContainersStateList, msg.Type)
	assert.Len(t, msg.Payload.(*protocol.ContainersStateListPayload).Containers, 2)

	lister.set(container.Summary{Names: []string{"/shop-web"}, Image: "nginx:1.25", State: "running"})
	require.NoError(t, src.Poll(context.Background()))

	msg = watcher.last(t)
	require.Equal(t, protocol.TypeContainersRemoved, msg.Type)
	assert.Equal(t, []models.ContainerID{{Prefix: "shop", Name: "db"}}, msg.Payload.(*protocol.ContainersRemovedPayload).IDs)
	assert.Len(t, svc.Containers("node-1/shop"), 1)
}

func TestDockerSource_SkipsListingWithoutWatchers(t *testing.T) {
	svc := NewContainerStatusService("node-1")
	defer svc.Close()
	lister := &fakeLister{}
	src := NewDockerSourceWithLister(lister, svc, 0)

	require.NoError(t, src.Poll(context.Background()))
	assert.Equal(t, 0, lister.calls)
}

func TestDockerSource_ListErrorIsReported(t *testing.T) {
	svc := NewContainerStatusService("node-1")
	defer svc.Close()
	require.NoError(t, svc.Registry().Subscribe(context.Background(), "node-1/shop", &recorder{id: "w"}))

	lister := &fakeLister{err: errors.New("boom")}
	src := NewDockerSourceWithLister(lister, svc, 0)

	err := src.Poll(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDockerUnavailable)
}
