// Package batch contains the types and temp-id resolution logic for
// multi-entity batch transactions.
package batch

import (
	"github.com/planforge/planforge/internal/domain/entity"
)

// Operation is one member of a batch: a create request for a declared
// entity type. TempID, when set, is a caller-chosen token (by convention
// "$N") that later operations in the same batch may reference inside
// their own payloads in place of the not-yet-assigned real id.
type Operation struct {
	EntityType entity.Kind     `json:"entity_type"`
	Payload    entity.Document `json:"payload"`
	TempID     string          `json:"temp_id,omitempty"`
}

// Result reports the outcome of one batch operation.
type Result struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ExecuteRequest is the wire shape of a batch call.
type ExecuteRequest struct {
	Operations []Operation `json:"operations"`
	Atomic     bool        `json:"atomic,omitempty"`
}

// ExecuteResponse is the wire shape of a batch response.
type ExecuteResponse struct {
	Results       []Result          `json:"results"`
	TempIDMapping map[string]string `json:"temp_id_mapping"`
}

// ResolveTempIDs walks a payload value and replaces every string that
// exactly matches an assigned temp-id token with its resolved real id.
// The walk is generic over the JSON value shapes (maps, slices, scalars)
// so new entity kinds need no coordinator changes. Unknown tokens are
// left untouched; they surface as downstream validation failures rather
// than being silently dropped.
func ResolveTempIDs(v any, mapping map[string]string) any {
	switch t := v.(type) {
	case entity.Document:
		out := make(entity.Document, len(t))
		for k, val := range t {
			out[k] = ResolveTempIDs(val, mapping)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = ResolveTempIDs(val, mapping)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = ResolveTempIDs(val, mapping)
		}
		return out
	case string:
		if real, ok := mapping[t]; ok {
			return real
		}
		return t
	default:
		return v
	}
}

// ResolvePayload applies ResolveTempIDs to an operation payload.
func ResolvePayload(payload entity.Document, mapping map[string]string) entity.Document {
	if payload == nil {
		return nil
	}
	return ResolveTempIDs(payload, mapping).(entity.Document)
}
