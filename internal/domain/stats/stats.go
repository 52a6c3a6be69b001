// Package stats contains the plan-level statistics model.
package stats

import "time"

// Statistics holds per-kind entity counts and the phase completion
// percentage for one plan, recomputed from the live collections.
type Statistics struct {
	PlanID          string         `json:"plan_id"`
	Counts          map[string]int `json:"counts"`
	TotalEntities   int            `json:"total_entities"`
	PhasesTotal     int            `json:"phases_total"`
	PhasesCompleted int            `json:"phases_completed"`
	CompletionPct   float64        `json:"completion_pct"`
	ComputedAt      time.Time      `json:"computed_at"`
}
