// Package client is the HTTP client for the control plane, used by the
// CLI subcommands and by sidecar integrations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fleetops/herald/internal/fleet"
	"github.com/fleetops/herald/internal/model"
	"github.com/fleetops/herald/internal/registry"
	"github.com/fleetops/herald/internal/server"
)

// Client talks to one control plane instance.
type Client struct {
	baseURL  string
	adminKey string
	token    string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAdminKey attaches the management credential to every request.
func WithAdminKey(key string) Option {
	return func(c *Client) { c.adminKey = key }
}

// WithToken attaches an agent bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout overrides the default 10s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client for the given base URL, e.g. "http://127.0.0.1:8420".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterResult is the registration response.
type RegisterResult struct {
	Existing bool         `json:"existing"`
	AgentID  string       `json:"agent_id"`
	Token    string       `json:"token"`
	Policy   model.Policy `json:"policy"`
}

// Register registers an agent and returns its token. Safe to retry.
func (c *Client) Register(ctx context.Context, reg registry.Registration) (RegisterResult, error) {
	var out RegisterResult
	err := c.do(ctx, http.MethodPost, "/api/v1/agents", reg, &out)
	return out, err
}

// Deregister removes an agent and its policy.
func (c *Client) Deregister(ctx context.Context, agentID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/agents/"+url.PathEscape(agentID), nil, nil)
}

// GetPolicy fetches an agent's policy using the agent's bearer token.
func (c *Client) GetPolicy(ctx context.Context, agentID string) (model.Policy, error) {
	var out struct {
		Policy model.Policy `json:"policy"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/agents/"+url.PathEscape(agentID)+"/policy", nil, &out)
	return out.Policy, err
}

// IngestEvent submits an audit event.
func (c *Client) IngestEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	var out struct {
		Event model.Event `json:"event"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/events", ev, &out)
	return out.Event, err
}

// Heartbeat refreshes the agent's liveness timestamp.
func (c *Client) Heartbeat(ctx context.Context, agentID string) error {
	ev := model.Event{AgentID: agentID, Action: model.ActionHeartbeat}
	return c.do(ctx, http.MethodPost, "/api/v1/events", ev, nil)
}

// TelemetryResult is the derived assessment returned on ingestion.
type TelemetryResult struct {
	AgentID          string                `json:"agent_id"`
	IntegrityStatus  model.IntegrityStatus `json:"integrity_status"`
	IntegrityScore   int                   `json:"integrity_score"`
	IntegrityReasons []string              `json:"integrity_reasons"`
}

// IngestTelemetry submits a telemetry sample and returns its score.
func (c *Client) IngestTelemetry(ctx context.Context, sample model.TelemetrySample) (TelemetryResult, error) {
	var out TelemetryResult
	err := c.do(ctx, http.MethodPost, "/api/v1/telemetry", sample, &out)
	return out, err
}

// QueryEvents fetches recent events, most recent first.
func (c *Client) QueryEvents(ctx context.Context, agentID, action string, limit int) ([]model.Event, error) {
	q := url.Values{}
	if agentID != "" {
		q.Set("agent_id", agentID)
	}
	if action != "" {
		q.Set("action", action)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Events []model.Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/events?"+q.Encode(), nil, &out)
	return out.Events, err
}

// FleetStatus fetches the per-agent status rows.
func (c *Client) FleetStatus(ctx context.Context) ([]fleet.AgentStatus, error) {
	var out struct {
		Agents []fleet.AgentStatus `json:"agents"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/fleet/status", nil, &out)
	return out.Agents, err
}

// FleetHealth fetches the aggregate counts.
func (c *Client) FleetHealth(ctx context.Context) (fleet.Health, error) {
	var out struct {
		Health fleet.Health `json:"health"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/fleet/health", nil, &out)
	return out.Health, err
}

// PresetCatalog is the preset list response.
type PresetCatalog struct {
	DefaultPreset string           `json:"default_preset"`
	Presets       []map[string]any `json:"presets"`
}

// ListPresets fetches the built-in preset catalog.
func (c *Client) ListPresets(ctx context.Context) (PresetCatalog, error) {
	var out PresetCatalog
	err := c.do(ctx, http.MethodGet, "/api/v1/policy/presets", nil, &out)
	return out, err
}

// FleetPresetAgent is one agent's outcome in a fleet preset apply.
type FleetPresetAgent struct {
	AgentID       string `json:"agent_id"`
	PolicyVersion int    `json:"policy_version"`
}

// FleetPresetResult reports per-agent outcomes of a fleet preset apply.
type FleetPresetResult struct {
	Preset  string             `json:"preset"`
	Applied int                `json:"applied"`
	Agents  []FleetPresetAgent `json:"agents"`
	Missing []string           `json:"missing"`
}

// ApplyPresetFleet applies a preset across agents. Empty agentIDs means
// every registered agent.
func (c *Client) ApplyPresetFleet(ctx context.Context, preset string, agentIDs []string, pin bool) (FleetPresetResult, error) {
	body := map[string]any{
		"preset":              preset,
		"pin_observed_claims": pin,
		"agent_ids":           agentIDs,
	}
	var out FleetPresetResult
	err := c.do(ctx, http.MethodPost, "/api/v1/fleet/policy/preset", body, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, into any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminKey != "" {
		req.Header.Set(server.AdminKeyHeader, c.adminKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (HTTP %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}

	if into == nil {
		return nil
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
