package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vanpelt/livesync/internal/middleware"
	"github.com/vanpelt/livesync/internal/models"
	"github.com/vanpelt/livesync/internal/services"
	"github.com/vanpelt/livesync/internal/store"
)

type testServer struct {
	*Server
	status  *services.ContainerStatusService
	editing *services.EditingService
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	status := services.NewContainerStatusService("node-1")
	editing := services.NewEditingService(store.NewMemory())
	t.Cleanup(func() {
		_ = status.Close()
		_ = editing.Close()
	})

	srv := NewServer(ServerConfig{
		Status:    status,
		Editing:   editing,
		Auth:      middleware.NewAuthMiddleware(secret),
		QueueSize: 16,
	})
	return &testServer{Server: srv, status: status, editing: editing}
}

// listen serves on a random local port and returns the base URL
func (s *testServer) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.App().Listener(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return "http://" + ln.Addr().String()
}

func doJSON(t *testing.T, app *fiber.App, method, target, body string, out any) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	if out != nil {
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, out), string(data))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "s3cret")

	var health HealthResponse
	status := doJSON(t, srv.App(), "GET", "/health", "", &health)
	assert.Equal(t, 200, status)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "node-1", health.NodeID)
	assert.Equal(t, 0, health.Sessions)
}

func TestSwaggerDocIsPublic(t *testing.T) {
	srv := newTestServer(t, "s3cret")

	var doc struct {
		Info  struct{ Title string } `json:"info"`
		Paths map[string]any         `json:"paths"`
	}
	status := doJSON(t, srv.App(), "GET", "/swagger/doc.json", "", &doc)
	assert.Equal(t, 200, status)
	assert.Equal(t, "livesync API", doc.Info.Title)
	assert.Contains(t, doc.Paths, "/v1/nodes/{nodeId}/containers")
}

func TestAuthGuardsAPI(t *testing.T) {
	srv := newTestServer(t, "s3cret")
	status := doJSON(t, srv.App(), "GET", "/v1/resources/img-1", "", nil)
	assert.Equal(t, 401, status)
}

func TestContainersIngestion(t *testing.T) {
	srv := newTestServer(t, "")
	app := srv.App()

	var published models.PublishResponse
	status := doJSON(t, app, "POST", "/v1/nodes/node-1/containers",
		`{"prefix":"shop","containers":[{"id":{"name":"web"},"state":"running","imageName":"nginx","imageTag":"1.25","ports":[{"internal":80,"external":8080}]}]}`,
		&published)
	require.Equal(t, 200, status)
	assert.Equal(t, "node-1/shop", published.ResourceID)
	assert.Equal(t, 0, published.Delivered)

	var listed []models.Container
	status = doJSON(t, app, "GET", "/v1/nodes/node-1/containers/shop", "", &listed)
	require.Equal(t, 200, status)
	require.Len(t, listed, 1)
	assert.Equal(t, "shop-web", listed[0].Key())
	assert.Equal(t, []models.ContainerPort{{Internal: 80, External: 8080}}, listed[0].Ports)

	status = doJSON(t, app, "DELETE", "/v1/nodes/node-1/containers/shop/web", "", &published)
	require.Equal(t, 200, status)
	assert.Empty(t, srv.status.Containers("node-1/shop"))

	t.Run("unknown node", func(t *testing.T) {
		status := doJSON(t, app, "POST", "/v1/nodes/node-2/containers", `{"prefix":"shop","containers":[]}`, nil)
		assert.Equal(t, 404, status)
		status = doJSON(t, app, "GET", "/v1/nodes/node-2/containers/shop", "", nil)
		assert.Equal(t, 404, status)
	})

	t.Run("bad body", func(t *testing.T) {
		status := doJSON(t, app, "POST", "/v1/nodes/node-1/containers", `{"prefix":`, nil)
		assert.Equal(t, 400, status)
		status = doJSON(t, app, "POST", "/v1/nodes/node-1/containers",
			`{"prefix":"shop","containers":[{"id":{"name":"a"}},{"id":{"name":"a"}}]}`, nil)
		assert.Equal(t, 400, status)
	})
}

func TestResources(t *testing.T) {
	srv := newTestServer(t, "")
	app := srv.App()

	status := doJSON(t, app, "GET", "/v1/resources/img-1", "", nil)
	assert.Equal(t, 404, status)

	var all []models.Resource
	status = doJSON(t, app, "GET", "/v1/resources", "", &all)
	require.Equal(t, 200, status)
	assert.Empty(t, all)

	var res models.Resource
	status = doJSON(t, app, "PUT", "/v1/resources/img-1", `{"kind":"image","fields":{"name":"web"}}`, &res)
	require.Equal(t, 200, status)
	assert.Equal(t, "img-1", res.ID)
	assert.Equal(t, "web", res.Fields["name"])

	status = doJSON(t, app, "GET", "/v1/resources/img-1", "", &res)
	require.Equal(t, 200, status)
	assert.Equal(t, "image", res.Kind)

	status = doJSON(t, app, "PUT", "/v1/resources/img-0", `{"kind":"image"}`, nil)
	require.Equal(t, 200, status)
	status = doJSON(t, app, "GET", "/v1/resources", "", &all)
	require.Equal(t, 200, status)
	require.Len(t, all, 2)
	assert.Equal(t, "img-0", all[0].ID)
	assert.Equal(t, "img-1", all[1].ID)

	var editors []models.Editor
	status = doJSON(t, app, "GET", "/v1/resources/img-1/presence", "", &editors)
	require.Equal(t, 200, status)
	assert.Empty(t, editors)

	var subscribers []string
	status = doJSON(t, app, "GET", "/v1/resources/node-1%2Fshop/subscribers?channel=status", "", &subscribers)
	require.Equal(t, 200, status)
	assert.Empty(t, subscribers)

	status = doJSON(t, app, "GET", "/v1/resources/img-1/subscribers?channel=nope", "", nil)
	assert.Equal(t, 400, status)
}

func TestWebSocketRoutesRequireUpgrade(t *testing.T) {
	srv := newTestServer(t, "")
	for _, target := range []string{"/v1/nodes/node-1/ws", "/v1/versions/img-1/ws"} {
		status := doJSON(t, srv.App(), "GET", target, "", nil)
		assert.Equal(t, fiber.StatusUpgradeRequired, status, target)
	}
}

func TestSSERejectsUnknownResource(t *testing.T) {
	srv := newTestServer(t, "")
	req := httptest.NewRequest("GET", "/v1/resources/missing/events?channel=editing", nil)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	req = httptest.NewRequest("GET", "/v1/resources/img-1/events?channel=bogus", nil)
	resp, err = srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}
