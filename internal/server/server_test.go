package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/npc_registry/internal/document_store"
	"github.com/lewisedginton/npc_registry/internal/extraction"
	"github.com/lewisedginton/npc_registry/internal/identity_store"
	"github.com/lewisedginton/npc_registry/internal/notify"
	"github.com/lewisedginton/npc_registry/internal/session_manager"
	"github.com/lewisedginton/npc_registry/internal/storage_manager"
	"github.com/lewisedginton/npc_registry/internal/turn"
	pkgconfig "github.com/lewisedginton/npc_registry/pkg/config"
	"github.com/lewisedginton/npc_registry/pkg/logger"
	"github.com/lewisedginton/npc_registry/pkg/metrics"
)

func newTestServer(t *testing.T, maxBody int64) *httptest.Server {
	t.Helper()
	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	storage := storage_manager.NewWithProvider(storage_manager.NewLocalFileProvider(t.TempDir()))
	m := metrics.NewMetrics(true, true, log)

	bus := notify.NewBus(log)
	bus.Subscribe("metrics", notify.MetricsObserver(m))
	store := identity_store.New(identity_store.Config{
		Documents: document_store.NewFileStore(document_store.Config{FileProvider: storage.GetProvider("npcs"), Logger: log}),
		Events:    bus,
		Logger:    log,
	})
	sessions, err := session_manager.New(session_manager.Config{
		MetadataFile: "sessions.json",
		FileProvider: storage.GetProvider("meta"),
		Logger:       log,
	})
	require.NoError(t, err)
	proc, err := turn.New(turn.Config{
		Store:    store,
		Parser:   extraction.New(extraction.Config{Logger: log}),
		Sessions: sessions,
		Metrics:  m,
		Logger:   log,
	})
	require.NoError(t, err)

	srv, err := New(Config{
		HTTP:      pkgconfig.HTTPServerConfig{Port: 8080, MaxBodyBytes: maxBody, AllowedOrigins: []string{"*"}},
		Processor: proc,
		Sessions:  sessions,
		Storage:   storage,
		Collector: m,
		Logger:    log,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestPostTurn(t *testing.T) {
	ts := newTestServer(t, 1<<20)

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/sessions/chat-1/turns?messageId=m-1",
		`{"interaction":{"npc0.name":"Mira","npc0.mood":"calm","status":"happy"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.NotEmpty(t, resp.Header.Get(logger.CorrelationIDHeader))

	var report turn.TurnReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, "chat-1", report.SessionID)
	assert.Equal(t, "m-1", report.MessageID)
	assert.Equal(t, []string{"Mira"}, report.Entities)
	assert.Equal(t, []string{"status"}, report.Unscoped)

	resp, body = do(t, http.MethodPost, ts.URL+"/v1/sessions/chat-1/turns", `{"interaction":{"npc0.mood":"tense"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &report))
	assert.True(t, strings.HasPrefix(report.MessageID, "turn-"), report.MessageID)

	resp, body = do(t, http.MethodGet, ts.URL+"/v1/sessions/chat-1/npcs/npc_0001", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var npc map[string]any
	require.NoError(t, json.Unmarshal(body, &npc))
	assert.Equal(t, "Mira", npc["name"])
	assert.Equal(t, map[string]any{"mood": "tense"}, npc["fields"])
	assert.EqualValues(t, 2, npc["appearCount"])
	assert.Equal(t, report.MessageID, npc["lastMessageId"])
}

func TestPostTurnInvalidPayload(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	resp, body := do(t, http.MethodPost, ts.URL+"/v1/sessions/chat/turns", `[1,2,3]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "invalid turn payload")
}

func TestPostTurnBodyTooLarge(t *testing.T) {
	ts := newTestServer(t, 16)
	resp, _ := do(t, http.MethodPost, ts.URL+"/v1/sessions/chat/turns", `{"interaction":{"npc0.name":"Mira"}}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestListNPCs(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	for _, payload := range []string{
		`{"npc0.name":"Mira","npc1.name":"Tomas","npc2.name":"Ada"}`,
		`{"npc0.name":"Tomas"}`,
		`{"npc0.name":"Tomas","npc1.name":"Mira"}`,
	} {
		resp, _ := do(t, http.MethodPost, ts.URL+"/v1/sessions/s/turns", payload)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	list := func(query string) npcListResponse {
		resp, body := do(t, http.MethodGet, ts.URL+"/v1/sessions/s/npcs"+query, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out npcListResponse
		require.NoError(t, json.Unmarshal(body, &out))
		return out
	}

	out := list("?sort=appearCount")
	assert.Equal(t, 3, out.Count)
	assert.Equal(t, "Tomas", out.NPCs[0].Name)
	assert.Equal(t, "Ada", out.NPCs[2].Name)

	out = list("?sort=name&order=asc")
	assert.Equal(t, "Ada", out.NPCs[0].Name)
	assert.Equal(t, "Tomas", out.NPCs[2].Name)

	out = list("?query=om")
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "Tomas", out.NPCs[0].Name)
}

func TestDeleteNPC(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	do(t, http.MethodPost, ts.URL+"/v1/sessions/s/turns", `{"npc0.name":"Mira"}`)

	resp, _ := do(t, http.MethodDelete, ts.URL+"/v1/sessions/s/npcs/npc_0001", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, ts.URL+"/v1/sessions/s/npcs/npc_0001", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, ts.URL+"/v1/sessions/s/npcs/npc_0001", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExportImport(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	do(t, http.MethodPost, ts.URL+"/v1/sessions/src/turns", `{"npc0.name":"Mira","npc0.age":31}`)

	resp, exported := do(t, http.MethodGet, ts.URL+"/v1/sessions/src/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/sessions/dst/import", string(exported))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"imported":1}`, string(body))

	_, copied := do(t, http.MethodGet, ts.URL+"/v1/sessions/dst/export", "")
	assert.JSONEq(t, string(exported), string(copied))

	resp, _ = do(t, http.MethodPost, ts.URL+"/v1/sessions/dst/import", `{"version":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCleanup(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	do(t, http.MethodPost, ts.URL+"/v1/sessions/s/import", `{"npcs":{"npc_0001":{"name":"npc0"},"npc_0002":{"name":"Mira"}}}`)

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/sessions/s/cleanup", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"removed":1}`, string(body))
}

func TestDefaultSessionAndSessionList(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	do(t, http.MethodPost, ts.URL+"/v1/sessions/_default/turns", `{"npc0.name":"Drifter"}`)
	do(t, http.MethodPost, ts.URL+"/v1/sessions/chat%2F7/turns", `{"npc0.name":"Mira"}`)

	resp, body := do(t, http.MethodGet, ts.URL+"/v1/sessions/_default/npcs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out npcListResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "Drifter", out.NPCs[0].Name)

	_, body = do(t, http.MethodGet, ts.URL+"/v1/sessions", "")
	var sessions struct {
		Sessions []session_manager.SessionInfo `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(body, &sessions))
	require.Len(t, sessions.Sessions, 1)
	assert.Equal(t, "chat/7", sessions.Sessions[0].SessionID)
	assert.Equal(t, "http", sessions.Sessions[0].Source)
}

func TestHealthMetricsAndPing(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	do(t, http.MethodPost, ts.URL+"/v1/sessions/s/turns", `{"npc0.name":"Mira","mood":"x"}`)

	for _, path := range []string{"/health/live", "/health/ready", "/ping"} {
		resp, body := do(t, http.MethodGet, ts.URL+path, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, path+": "+string(body))
	}

	resp, body := do(t, http.MethodGet, ts.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, bytes.Contains(body, []byte("npc_registry_turns_processed_total 1")))
	assert.True(t, bytes.Contains(body, []byte(`npc_registry_extraction_rejections_total{reason="unscoped"} 1`)))
	assert.True(t, bytes.Contains(body, []byte("npc_registry_http_requests_total")))
}
