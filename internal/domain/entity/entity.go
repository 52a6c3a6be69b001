// Package entity contains the generic document model shared by all plan
// entities. Entities are stored and exchanged as schemaless documents so
// that the batch coordinator and the version differ can operate on any
// kind without per-kind code.
package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/planforge/internal/domain"
)

// Kind is the discriminant tag identifying an entity collection.
type Kind string

const (
	KindRequirement Kind = "requirement"
	KindSolution    Kind = "solution"
	KindDecision    Kind = "decision"
	KindPhase       Kind = "phase"
	KindArtifact    Kind = "artifact"
	KindLink        Kind = "link"
)

// Kinds returns all entity kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindRequirement, KindSolution, KindDecision, KindPhase, KindArtifact, KindLink}
}

// Valid reports whether k is a known entity kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRequirement, KindSolution, KindDecision, KindPhase, KindArtifact, KindLink:
		return true
	}
	return false
}

// RelationType is the closed enum of link relationship types.
type RelationType string

const (
	RelationImplements RelationType = "implements"
	RelationAddresses  RelationType = "addresses"
	RelationDependsOn  RelationType = "depends_on"
	RelationSupersedes RelationType = "supersedes"
	RelationRelatesTo  RelationType = "relates_to"
	RelationProduces   RelationType = "produces"
)

// Valid reports whether r is a known relation type.
func (r RelationType) Valid() bool {
	switch r {
	case RelationImplements, RelationAddresses, RelationDependsOn,
		RelationSupersedes, RelationRelatesTo, RelationProduces:
		return true
	}
	return false
}

// TimeFormat is the wire format for timestamps stored inside documents.
// Using a string format keeps freshly created documents identical in
// shape to documents round-tripped through JSON storage.
const TimeFormat = time.RFC3339Nano

// Document is the stored representation of any entity: a JSON-like map
// of field name to value. Base fields present on every document:
// id, type, created_at, updated_at, version, metadata.
type Document map[string]any

// ID returns the document's id field, or "" if unset.
func (d Document) ID() string {
	s, _ := d["id"].(string)
	return s
}

// Type returns the document's type field, or "" if unset.
func (d Document) Type() string {
	s, _ := d["type"].(string)
	return s
}

// Version returns the document's version field, tolerating the numeric
// representations produced by JSON decoding. Zero means unset.
func (d Document) Version() int {
	n, ok := asNumber(d["version"])
	if !ok {
		return 0
	}
	return int(n)
}

// Bump increments the version and refreshes updated_at.
func (d Document) Bump(now time.Time) {
	d["version"] = d.Version() + 1
	d["updated_at"] = now.UTC().Format(TimeFormat)
}

// Clone returns a deep copy of the document. Nested maps and slices are
// copied; scalar values are shared.
func (d Document) Clone() Document {
	return deepCopy(d).(Document)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case Document:
		out := make(Document, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

// New builds a document for a freshly created entity: the payload fields
// plus the generated id and the base bookkeeping fields. The payload is
// not mutated.
func New(kind Kind, payload Document, now time.Time) Document {
	d := payload.Clone()
	if d == nil {
		d = Document{}
	}
	ts := now.UTC().Format(TimeFormat)
	d["id"] = uuid.NewString()
	d["type"] = string(kind)
	d["created_at"] = ts
	d["updated_at"] = ts
	d["version"] = 1

	meta, _ := d["metadata"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	}
	if _, ok := meta["annotations"]; !ok {
		meta["annotations"] = []any{}
	}
	d["metadata"] = meta
	return d
}

// AppendAnnotation appends one timestamped entry to the document's
// append-only annotation log.
func AppendAnnotation(d Document, text string, now time.Time) {
	meta, _ := d["metadata"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
		d["metadata"] = meta
	}
	log, _ := meta["annotations"].([]any)
	meta["annotations"] = append(log, map[string]any{
		"text":       text,
		"created_at": now.UTC().Format(TimeFormat),
	})
}

// AnnotationCount returns the number of entries in the annotation log.
func AnnotationCount(d Document) int {
	meta, _ := d["metadata"].(map[string]any)
	log, _ := meta["annotations"].([]any)
	return len(log)
}

// Votes returns the requirement's vote count, zero if unset.
func Votes(d Document) int {
	n, _ := asNumber(d["votes"])
	return int(n)
}

// CreateLinkRequest is the input for creating a relationship link.
// Duplicate links between the same pair are permitted by design.
type CreateLinkRequest struct {
	SourceID     string       `json:"source_id"`
	TargetID     string       `json:"target_id"`
	RelationType RelationType `json:"relation_type"`
	CreatedBy    string       `json:"created_by,omitempty"`
}

// Payload converts the request into a document payload for the create path.
func (r CreateLinkRequest) Payload() Document {
	return Document{
		"source_id":     r.SourceID,
		"target_id":     r.TargetID,
		"relation_type": string(r.RelationType),
		"created_by":    r.CreatedBy,
	}
}

// ValidatePayload checks the kind-specific rules for a creation payload.
// All failures wrap domain.ErrValidation.
func ValidatePayload(kind Kind, payload Document) error {
	switch kind {
	case KindRequirement:
		if err := requireString(payload, "title"); err != nil {
			return err
		}
		if n, ok, err := optionalNumber(payload, "votes"); err != nil {
			return err
		} else if ok && n < 0 {
			return fmt.Errorf("votes must not be negative: %w", domain.ErrValidation)
		}
		if n, ok, err := optionalNumber(payload, "estimated_effort"); err != nil {
			return err
		} else if ok && n < 0 {
			return fmt.Errorf("estimated_effort must not be negative: %w", domain.ErrValidation)
		}
		return validateTags(payload)
	case KindSolution:
		if err := requireString(payload, "title"); err != nil {
			return err
		}
		return validateEvaluation(payload)
	case KindDecision, KindPhase:
		return requireString(payload, "title")
	case KindArtifact:
		if err := requireString(payload, "name"); err != nil {
			return err
		}
		return nil
	case KindLink:
		if err := requireString(payload, "source_id"); err != nil {
			return err
		}
		if err := requireString(payload, "target_id"); err != nil {
			return err
		}
		rel, _ := payload["relation_type"].(string)
		if !RelationType(rel).Valid() {
			return fmt.Errorf("unknown relation_type %q: %w", rel, domain.ErrValidation)
		}
		return nil
	default:
		return fmt.Errorf("unknown entity type %q: %w", kind, domain.ErrValidation)
	}
}

// validateEvaluation checks a solution's optional evaluation block:
// an object whose score, when present, is numeric in [0, 10].
func validateEvaluation(payload Document) error {
	raw, ok := payload["evaluation"]
	if !ok || raw == nil {
		return nil
	}
	eval, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("evaluation must be an object: %w", domain.ErrValidation)
	}
	if scoreRaw, ok := eval["score"]; ok {
		score, isNum := asNumber(scoreRaw)
		if !isNum || score < 0 || score > 10 {
			return fmt.Errorf("evaluation.score must be a number between 0 and 10: %w", domain.ErrValidation)
		}
	}
	return nil
}

func validateTags(payload Document) error {
	meta, _ := payload["metadata"].(map[string]any)
	if meta == nil {
		return nil
	}
	raw, ok := meta["tags"]
	if !ok || raw == nil {
		return nil
	}
	tags, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("metadata.tags must be an array: %w", domain.ErrValidation)
	}
	for _, t := range tags {
		if _, ok := t.(string); !ok {
			return fmt.Errorf("metadata.tags must contain only strings: %w", domain.ErrValidation)
		}
	}
	return nil
}

func requireString(payload Document, field string) error {
	s, _ := payload[field].(string)
	if s == "" {
		return fmt.Errorf("%s is required: %w", field, domain.ErrValidation)
	}
	return nil
}

func optionalNumber(payload Document, field string) (float64, bool, error) {
	raw, ok := payload[field]
	if !ok || raw == nil {
		return 0, false, nil
	}
	n, isNum := asNumber(raw)
	if !isNum {
		return 0, false, fmt.Errorf("%s must be a number: %w", field, domain.ErrValidation)
	}
	return n, true, nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
