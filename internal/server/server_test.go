package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetops/herald/internal/events"
	"github.com/fleetops/herald/internal/fleet"
	"github.com/fleetops/herald/internal/logging"
	"github.com/fleetops/herald/internal/model"
	"github.com/fleetops/herald/internal/policy"
	"github.com/fleetops/herald/internal/registry"
	"github.com/fleetops/herald/internal/store"
	"github.com/fleetops/herald/internal/telemetry"
)

const testAdminKey = "test-admin-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	agents, err := store.OpenCollection[model.Agent](store.NewMemoryBackend(), 0)
	if err != nil {
		t.Fatalf("open agents: %v", err)
	}
	policies, err := store.OpenCollection[model.Policy](store.NewMemoryBackend(), 0)
	if err != nil {
		t.Fatalf("open policies: %v", err)
	}
	eventRecords, err := store.OpenCollection[model.Event](store.NewMemoryBackend(), 100)
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	samples, err := store.OpenCollection[model.TelemetrySample](store.NewMemoryBackend(), 100)
	if err != nil {
		t.Fatalf("open samples: %v", err)
	}

	reg := registry.New(agents, policies)
	tel := telemetry.NewStore(samples, policies, reg)
	pol := policy.NewStore(policies, tel)
	log := events.NewLog(eventRecords, reg)
	agg := fleet.New(reg, pol, tel, 90*time.Second)

	srv := New(Config{
		AdminKey: testAdminKey,
		Logger:   logging.New("error", io.Discard),
	}, reg, pol, log, tel, agg)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

type request struct {
	method   string
	path     string
	body     any
	adminKey string
	token    string
}

func call(t *testing.T, ts *httptest.Server, req request) (int, map[string]any) {
	t.Helper()

	var body *bytes.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequest(req.method, ts.URL+req.path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.adminKey != "" {
		httpReq.Header.Set(AdminKeyHeader, req.adminKey)
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func registerAgent(t *testing.T, ts *httptest.Server, agentID string) string {
	t.Helper()
	status, body := call(t, ts, request{
		method:   http.MethodPost,
		path:     "/api/v1/agents",
		body:     map[string]any{"agent_id": agentID},
		adminKey: testAdminKey,
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: HTTP %d: %v", agentID, status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("no token in response: %v", body)
	}
	return token
}

func TestRegisterRequiresAdminKey(t *testing.T) {
	ts := newTestServer(t)

	status, _ := call(t, ts, request{
		method: http.MethodPost,
		path:   "/api/v1/agents",
		body:   map[string]any{"agent_id": "scout-1"},
	})
	if status != http.StatusUnauthorized {
		t.Errorf("no key: HTTP %d, want 401", status)
	}

	status, _ = call(t, ts, request{
		method:   http.MethodPost,
		path:     "/api/v1/agents",
		body:     map[string]any{"agent_id": "scout-1"},
		adminKey: "wrong",
	})
	if status != http.StatusUnauthorized {
		t.Errorf("wrong key: HTTP %d, want 401", status)
	}
}

func TestRegisterAndRepeat(t *testing.T) {
	ts := newTestServer(t)

	token := registerAgent(t, ts, "scout-1")

	status, body := call(t, ts, request{
		method:   http.MethodPost,
		path:     "/api/v1/agents",
		body:     map[string]any{"agent_id": "scout-1"},
		adminKey: testAdminKey,
	})
	if status != http.StatusOK {
		t.Fatalf("repeat register: HTTP %d", status)
	}
	if body["existing"] != true {
		t.Error("repeat register did not report existing=true")
	}
	if body["token"] != token {
		t.Error("repeat register returned a different token")
	}
	if body["policy"] == nil {
		t.Error("register response missing policy")
	}
}

func TestRegisterRejectsUnknownFields(t *testing.T) {
	ts := newTestServer(t)

	status, _ := call(t, ts, request{
		method:   http.MethodPost,
		path:     "/api/v1/agents",
		body:     map[string]any{"agent_id": "x", "surprise": true},
		adminKey: testAdminKey,
	})
	if status != http.StatusBadRequest {
		t.Errorf("unknown field: HTTP %d, want 400", status)
	}
}

func TestPolicyReadScoping(t *testing.T) {
	ts := newTestServer(t)
	tokenA := registerAgent(t, ts, "a")
	registerAgent(t, ts, "b")

	status, body := call(t, ts, request{
		method: http.MethodGet,
		path:   "/api/v1/agents/a/policy",
		token:  tokenA,
	})
	if status != http.StatusOK {
		t.Fatalf("own policy: HTTP %d: %v", status, body)
	}

	status, _ = call(t, ts, request{
		method: http.MethodGet,
		path:   "/api/v1/agents/b/policy",
		token:  tokenA,
	})
	if status != http.StatusForbidden {
		t.Errorf("cross-agent policy read: HTTP %d, want 403", status)
	}

	status, _ = call(t, ts, request{
		method: http.MethodGet,
		path:   "/api/v1/agents/a/policy",
	})
	if status != http.StatusUnauthorized {
		t.Errorf("missing token: HTTP %d, want 401", status)
	}
}

func TestUpdatePolicyBumpsVersion(t *testing.T) {
	ts := newTestServer(t)
	registerAgent(t, ts, "a")

	status, body := call(t, ts, request{
		method:   http.MethodPut,
		path:     "/api/v1/agents/a/policy",
		body:     map[string]any{"tier": "L2", "allowed_actions": []string{"deploy"}},
		adminKey: testAdminKey,
	})
	if status != http.StatusOK {
		t.Fatalf("update: HTTP %d: %v", status, body)
	}
	pol := body["policy"].(map[string]any)
	if pol["version"].(float64) != 2 {
		t.Errorf("version = %v, want 2", pol["version"])
	}
	if pol["tier"] != "L2" {
		t.Errorf("tier = %v", pol["tier"])
	}

	status, _ = call(t, ts, request{
		method:   http.MethodPut,
		path:     "/api/v1/agents/ghost/policy",
		body:     map[string]any{"tier": "L1"},
		adminKey: testAdminKey,
	})
	if status != http.StatusNotFound {
		t.Errorf("unknown agent: HTTP %d, want 404", status)
	}
}

func TestEventIngestAndHeartbeat(t *testing.T) {
	ts := newTestServer(t)
	token := registerAgent(t, ts, "a")

	status, body := call(t, ts, request{
		method: http.MethodPost,
		path:   "/api/v1/events",
		body:   map[string]any{"agent_id": "a", "action": "deploy", "target": "prod/api"},
		token:  token,
	})
	if status != http.StatusCreated {
		t.Fatalf("ingest: HTTP %d: %v", status, body)
	}
	ev := body["event"].(map[string]any)
	if ev["event_id"] == "" {
		t.Error("no event id assigned")
	}
	if ev["result"] != "success" {
		t.Errorf("result default = %v", ev["result"])
	}

	status, body = call(t, ts, request{
		method: http.MethodPost,
		path:   "/api/v1/events",
		body:   map[string]any{"agent_id": "a", "action": "heartbeat"},
		token:  token,
	})
	if status != http.StatusOK {
		t.Fatalf("heartbeat: HTTP %d", status)
	}
	if body["heartbeat"] != true {
		t.Errorf("heartbeat response: %v", body)
	}

	// The heartbeat must not appear in the public query.
	status, body = call(t, ts, request{method: http.MethodGet, path: "/api/v1/events"})
	if status != http.StatusOK {
		t.Fatalf("query: HTTP %d", status)
	}
	if body["count"].(float64) != 1 {
		t.Errorf("event count = %v, want 1 (heartbeat excluded)", body["count"])
	}
}

func TestEventIngestScoping(t *testing.T) {
	ts := newTestServer(t)
	tokenA := registerAgent(t, ts, "a")
	registerAgent(t, ts, "b")

	status, _ := call(t, ts, request{
		method: http.MethodPost,
		path:   "/api/v1/events",
		body:   map[string]any{"agent_id": "b", "action": "deploy", "target": "x"},
		token:  tokenA,
	})
	if status != http.StatusForbidden {
		t.Errorf("cross-agent ingest: HTTP %d, want 403", status)
	}

	status, _ = call(t, ts, request{
		method: http.MethodPost,
		path:   "/api/v1/events",
		body:   map[string]any{"agent_id": "a", "action": "deploy", "target": "x"},
	})
	if status != http.StatusUnauthorized {
		t.Errorf("no token: HTTP %d, want 401", status)
	}
}

func TestTelemetryIngestReturnsScore(t *testing.T) {
	ts := newTestServer(t)
	token := registerAgent(t, ts, "a")

	status, body := call(t, ts, request{
		method: http.MethodPost,
		path:   "/api/v1/telemetry",
		body:   map[string]any{"agent_id": "a", "network_rtt_ms": 10, "network_jitter_ms": 2},
		token:  token,
	})
	if status != http.StatusCreated {
		t.Fatalf("ingest: HTTP %d: %v", status, body)
	}
	if body["integrity_status"] != "normal" {
		t.Errorf("status = %v, want normal", body["integrity_status"])
	}
	if body["integrity_score"].(float64) != 100 {
		t.Errorf("score = %v, want 100", body["integrity_score"])
	}

	// Raw telemetry query is admin-only.
	status, _ = call(t, ts, request{method: http.MethodGet, path: "/api/v1/telemetry"})
	if status != http.StatusUnauthorized {
		t.Errorf("public telemetry query: HTTP %d, want 401", status)
	}
	status, body = call(t, ts, request{
		method:   http.MethodGet,
		path:     "/api/v1/telemetry",
		adminKey: testAdminKey,
	})
	if status != http.StatusOK {
		t.Fatalf("admin telemetry query: HTTP %d", status)
	}
	if body["count"].(float64) != 1 {
		t.Errorf("telemetry count = %v", body["count"])
	}
}

func TestFleetEndpointsArePublic(t *testing.T) {
	ts := newTestServer(t)
	token := registerAgent(t, ts, "a")

	status, body := call(t, ts, request{
		method: http.MethodPost,
		path:   "/api/v1/events",
		body:   map[string]any{"agent_id": "a", "action": "heartbeat"},
		token:  token,
	})
	if status != http.StatusOK {
		t.Fatalf("heartbeat: HTTP %d: %v", status, body)
	}

	status, body = call(t, ts, request{method: http.MethodGet, path: "/api/v1/fleet/status"})
	if status != http.StatusOK {
		t.Fatalf("fleet status: HTTP %d", status)
	}
	agents := body["agents"].([]any)
	if len(agents) != 1 {
		t.Fatalf("fleet rows = %d", len(agents))
	}
	row := agents[0].(map[string]any)
	if row["status"] != "active" {
		t.Errorf("liveness = %v, want active after heartbeat", row["status"])
	}
	if _, exposed := row["token"]; exposed {
		t.Error("fleet status leaks tokens")
	}

	status, body = call(t, ts, request{method: http.MethodGet, path: "/api/v1/fleet/health"})
	if status != http.StatusOK {
		t.Fatalf("fleet health: HTTP %d", status)
	}
	health := body["health"].(map[string]any)
	if health["total"].(float64) != 1 || health["active"].(float64) != 1 {
		t.Errorf("health = %v", health)
	}

	status, body = call(t, ts, request{method: http.MethodGet, path: "/api/v1/fleet/telemetry"})
	if status != http.StatusOK {
		t.Fatalf("fleet telemetry: HTTP %d", status)
	}
	if body["summary"] == nil {
		t.Error("fleet telemetry missing summary")
	}
}

func TestPresetEndpoints(t *testing.T) {
	ts := newTestServer(t)
	registerAgent(t, ts, "a")
	registerAgent(t, ts, "b")

	status, body := call(t, ts, request{method: http.MethodGet, path: "/api/v1/policy/presets"})
	if status != http.StatusOK {
		t.Fatalf("list presets: HTTP %d", status)
	}
	if body["default_preset"] != "standard" {
		t.Errorf("default preset = %v", body["default_preset"])
	}
	if len(body["presets"].([]any)) != 3 {
		t.Errorf("preset count = %d", len(body["presets"].([]any)))
	}

	status, body = call(t, ts, request{
		method:   http.MethodPost,
		path:     "/api/v1/agents/a/policy/preset",
		body:     map[string]any{"preset": "strict"},
		adminKey: testAdminKey,
	})
	if status != http.StatusOK {
		t.Fatalf("apply preset: HTTP %d: %v", status, body)
	}
	pol := body["policy"].(map[string]any)
	if pol["version"].(float64) != 2 {
		t.Errorf("version = %v, want 2", pol["version"])
	}

	status, body = call(t, ts, request{
		method:   http.MethodPost,
		path:     "/api/v1/fleet/policy/preset",
		body:     map[string]any{"preset": "relaxed", "agent_ids": []string{"a", "ghost"}},
		adminKey: testAdminKey,
	})
	if status != http.StatusOK {
		t.Fatalf("fleet preset: HTTP %d: %v", status, body)
	}
	if body["applied"].(float64) != 1 {
		t.Errorf("applied = %v", body["applied"])
	}
	missing := body["missing"].([]any)
	if len(missing) != 1 || missing[0] != "ghost" {
		t.Errorf("missing = %v", missing)
	}

	status, _ = call(t, ts, request{
		method:   http.MethodPost,
		path:     "/api/v1/agents/a/policy/preset",
		body:     map[string]any{"preset": "nonesuch"},
		adminKey: testAdminKey,
	})
	if status != http.StatusBadRequest {
		t.Errorf("unknown preset: HTTP %d, want 400", status)
	}
}

func TestDeregisterRevokesAccess(t *testing.T) {
	ts := newTestServer(t)
	token := registerAgent(t, ts, "a")

	status, _ := call(t, ts, request{
		method:   http.MethodDelete,
		path:     "/api/v1/agents/a",
		adminKey: testAdminKey,
	})
	if status != http.StatusOK {
		t.Fatalf("deregister: HTTP %d", status)
	}

	status, _ = call(t, ts, request{
		method: http.MethodPost,
		path:   "/api/v1/events",
		body:   map[string]any{"agent_id": "a", "action": "deploy", "target": "x"},
		token:  token,
	})
	if status != http.StatusUnauthorized {
		t.Errorf("revoked token: HTTP %d, want 401", status)
	}

	status, _ = call(t, ts, request{
		method:   http.MethodDelete,
		path:     "/api/v1/agents/a",
		adminKey: testAdminKey,
	})
	if status != http.StatusNotFound {
		t.Errorf("repeat deregister: HTTP %d, want 404", status)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: HTTP %d", resp.StatusCode)
	}
}

func TestDevModeSkipsAdminAuth(t *testing.T) {
	agents, _ := store.OpenCollection[model.Agent](store.NewMemoryBackend(), 0)
	policies, _ := store.OpenCollection[model.Policy](store.NewMemoryBackend(), 0)
	eventRecords, _ := store.OpenCollection[model.Event](store.NewMemoryBackend(), 100)
	samples, _ := store.OpenCollection[model.TelemetrySample](store.NewMemoryBackend(), 100)
	reg := registry.New(agents, policies)
	tel := telemetry.NewStore(samples, policies, reg)
	pol := policy.NewStore(policies, tel)
	log := events.NewLog(eventRecords, reg)
	agg := fleet.New(reg, pol, tel, 90*time.Second)
	srv := New(Config{Logger: logging.New("error", io.Discard)}, reg, pol, log, tel, agg)
	dev := httptest.NewServer(srv.Handler())
	defer dev.Close()

	resp, err := http.Post(dev.URL+"/api/v1/agents", "application/json",
		bytes.NewReader([]byte(fmt.Sprintf(`{"agent_id":%q}`, "scout-1"))))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("dev mode register: HTTP %d, want 201", resp.StatusCode)
	}
}
