package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventPhaseStatus   = "phase.status"
	EventPhaseMoved    = "phase.moved"
	EventEntityChanged = "entity.changed"
	EventStatsUpdated  = "stats.updated"
)

// PhaseStatusEvent is broadcast when a phase's status changes.
type PhaseStatusEvent struct {
	PlanID   string `json:"plan_id"`
	PhaseID  string `json:"phase_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// PhaseMovedEvent is broadcast after a phase moves in the tree, so
// clients can refresh every phase whose path was re-derived.
type PhaseMovedEvent struct {
	PlanID      string   `json:"plan_id"`
	PhaseID     string   `json:"phase_id"`
	AffectedIDs []string `json:"affected_ids,omitempty"`
}

// EntityChangedEvent is broadcast when an entity is created, updated,
// or deleted.
type EntityChangedEvent struct {
	PlanID   string `json:"plan_id"`
	Kind     string `json:"kind"`
	EntityID string `json:"entity_id"`
	Change   string `json:"change"` // created | updated | deleted
}

// StatsUpdatedEvent is broadcast after the statistics aggregator runs.
type StatsUpdatedEvent struct {
	PlanID        string  `json:"plan_id"`
	TotalEntities int     `json:"total_entities"`
	CompletionPct float64 `json:"completion_pct"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
