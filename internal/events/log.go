// Package events is the bounded, queryable audit trail of agent actions.
// Events are append-only and ordered by arrival; the store keeps the most
// recent entries fleet-wide and trims the oldest on overflow.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/fleetops/herald/internal/fault"
	"github.com/fleetops/herald/internal/model"
	"github.com/fleetops/herald/internal/store"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// Registry is the slice of the agent registry the event log needs.
type Registry interface {
	ResolveToken(token string) (model.Agent, bool)
	TouchHeartbeat(agentID string, ts time.Time) error
	TouchEvent(agentID string, ts time.Time) error
}

// Log ingests and serves audit events.
type Log struct {
	events   *store.Collection[model.Event]
	registry Registry
	now      func() time.Time
}

// NewLog creates the event log over a bounded collection.
func NewLog(events *store.Collection[model.Event], registry Registry) *Log {
	return &Log{events: events, registry: registry, now: time.Now}
}

// Ingest validates and appends an event authenticated by a sidecar token.
// A heartbeat action only refreshes the agent's liveness timestamp and
// produces no record; heartbeat=true signals that case to the caller.
func (l *Log) Ingest(token string, ev model.Event) (stored model.Event, heartbeat bool, err error) {
	agent, ok := l.registry.ResolveToken(token)
	if !ok || agent.AgentID != ev.AgentID {
		return model.Event{}, false, fault.Unauthorized("token not valid for this agent")
	}

	now := l.now().UTC()
	if ev.Action == "" {
		return model.Event{}, false, fault.Invalid("action is required")
	}

	if ev.Action == model.ActionHeartbeat {
		if err := l.registry.TouchHeartbeat(ev.AgentID, now); err != nil {
			return model.Event{}, false, err
		}
		return model.Event{}, true, nil
	}

	if ev.Target == "" {
		return model.Event{}, false, fault.Invalid("target is required")
	}
	if ev.Result == "" {
		ev.Result = model.ResultSuccess
	}
	if !ev.Result.Valid() {
		return model.Event{}, false, fault.Invalid("unknown result %q", ev.Result)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}
	ev.EventID = uuid.NewString()

	if err := l.events.Append(ev); err != nil {
		return model.Event{}, false, err
	}
	if err := l.registry.TouchEvent(ev.AgentID, now); err != nil {
		return model.Event{}, false, err
	}
	return ev, false, nil
}

// Filter selects events for Query. Zero values match everything.
type Filter struct {
	AgentID string
	Action  string
	Since   *time.Time // strictly after
	Limit   int
}

// Query returns matching events, most recent first. The limit is clamped
// to 1..1000 and defaults to 100.
func (l *Log) Query(f Filter) []model.Event {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	all := l.events.Snapshot()
	out := make([]model.Event, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		ev := all[i]
		if f.AgentID != "" && ev.AgentID != f.AgentID {
			continue
		}
		if f.Action != "" && ev.Action != f.Action {
			continue
		}
		if f.Since != nil && !ev.Timestamp.After(*f.Since) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Len returns the current number of retained events.
func (l *Log) Len() int {
	return l.events.Len()
}
