package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/localbroker/internal/runtime/config"
	"github.com/drblury/localbroker/internal/runtime/jsoncodec"
	"github.com/drblury/localbroker/internal/runtime/nodes"
)

func newAdminBroker(t *testing.T, origins ...string) *Broker {
	t.Helper()
	return newTestBroker(t, &configpkg.Config{
		NodeID:                  "node-1",
		StaticNodes:             []string{"node-1", "node-2"},
		AdminEnabled:            true,
		AdminPort:               8089,
		AdminCORSAllowedOrigins: origins,
	}, BrokerDependencies{})
}

func serveAdmin(t *testing.T, b *Broker, method, path, origin string) *httptest.ResponseRecorder {
	t.Helper()
	mux, ok := b.httpServers[8089]
	require.True(t, ok, "admin server not registered")

	req := httptest.NewRequest(method, path, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAdminServicesEndpoint(t *testing.T) {
	ctx := context.Background()
	b := newAdminBroker(t, "*")

	svc := newGreeter()
	svc.OnEvent("user.created", (&counter{}).listener())
	require.NoError(t, b.CreateService(ctx, svc))

	rec := serveAdmin(t, b, http.MethodGet, "/api/services", "https://example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var payload []ServiceInfo
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload, 1)
	assert.Equal(t, "greeter", payload[0].Name)
	assert.Equal(t, []string{"hello"}, payload[0].Methods)
	assert.Equal(t, []string{"user.created"}, payload[0].Events)
}

func TestAdminMethodsEndpointIncludesStats(t *testing.T) {
	ctx := context.Background()
	b := newAdminBroker(t)
	require.NoError(t, b.CreateService(ctx, newGreeter()))
	_, err := b.Call(ctx, "greeter.hello", "Ada")
	require.NoError(t, err)

	rec := serveAdmin(t, b, http.MethodGet, "/api/methods", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	var payload []struct {
		Key     string `json:"key"`
		Service string `json:"service"`
		Stats   struct {
			Calls uint64 `json:"calls"`
		} `json:"stats"`
	}
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload, 1)
	assert.Equal(t, "greeter.hello", payload[0].Key)
	assert.Equal(t, "greeter", payload[0].Service)
	assert.Equal(t, uint64(1), payload[0].Stats.Calls)
}

func TestAdminNodesEndpoint(t *testing.T) {
	b := newAdminBroker(t)

	rec := serveAdmin(t, b, http.MethodGet, "/api/nodes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload []nodes.Node
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, []nodes.Node{{ID: "node-1", Available: true}, {ID: "node-2", Available: true}}, payload)
}

func TestAdminCORSAllowList(t *testing.T) {
	b := newAdminBroker(t, "https://allowed.example")

	rec := serveAdmin(t, b, http.MethodOptions, "/api/services", "https://ALLOWED.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ALLOWED.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serveAdmin(t, b, http.MethodGet, "/api/services", "https://evil.example")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAdminRejectsWrites(t *testing.T) {
	b := newAdminBroker(t)

	rec := serveAdmin(t, b, http.MethodPost, "/api/services", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Allow"))
}

func TestAdminDisabledByDefault(t *testing.T) {
	b := newTestBroker(t, nil, BrokerDependencies{})
	_, ok := b.httpServers[configpkg.DefaultAdminPort]
	assert.False(t, ok)
}

func TestServeStopsOnCancel(t *testing.T) {
	b := newTestBroker(t, nil, BrokerDependencies{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, b.Serve(ctx))
}
