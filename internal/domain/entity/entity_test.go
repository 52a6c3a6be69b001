package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/planforge/planforge/internal/domain"
)

func TestNewDocumentDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := Document{"title": "Login", "votes": 3}

	d := New(KindRequirement, payload, now)

	if d.ID() == "" {
		t.Fatal("expected generated id")
	}
	if d.Type() != "requirement" {
		t.Fatalf("expected type requirement, got %q", d.Type())
	}
	if d.Version() != 1 {
		t.Fatalf("expected version 1, got %d", d.Version())
	}
	if d["created_at"] != now.Format(TimeFormat) {
		t.Fatalf("unexpected created_at %v", d["created_at"])
	}
	meta, _ := d["metadata"].(map[string]any)
	if meta == nil {
		t.Fatal("expected metadata map")
	}
	if log, ok := meta["annotations"].([]any); !ok || len(log) != 0 {
		t.Fatalf("expected empty annotations log, got %v", meta["annotations"])
	}
	// The input payload must not gain bookkeeping fields.
	if _, ok := payload["id"]; ok {
		t.Fatal("payload was mutated")
	}
}

func TestCloneIsDeep(t *testing.T) {
	d := Document{
		"title":    "Login",
		"metadata": map[string]any{"tags": []any{"auth"}},
	}
	c := d.Clone()

	meta := c["metadata"].(map[string]any)
	meta["tags"] = append(meta["tags"].([]any), "security")
	c["title"] = "Changed"

	if d["title"] != "Login" {
		t.Fatal("clone shares top-level fields")
	}
	if tags := d["metadata"].(map[string]any)["tags"].([]any); len(tags) != 1 {
		t.Fatalf("clone shares nested slices: %v", tags)
	}
}

func TestBumpIncrementsVersion(t *testing.T) {
	d := Document{"version": 2, "updated_at": "old"}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d.Bump(now)

	if d.Version() != 3 {
		t.Fatalf("expected version 3, got %d", d.Version())
	}
	if d["updated_at"] != now.Format(TimeFormat) {
		t.Fatalf("expected refreshed updated_at, got %v", d["updated_at"])
	}
}

func TestVersionToleratesJSONNumbers(t *testing.T) {
	// Documents loaded from JSON carry float64 versions.
	d := Document{"version": float64(4)}
	if d.Version() != 4 {
		t.Fatalf("expected version 4, got %d", d.Version())
	}
}

func TestAppendAnnotation(t *testing.T) {
	d := Document{}
	now := time.Now()

	AppendAnnotation(d, "first", now)
	AppendAnnotation(d, "second", now)

	if n := AnnotationCount(d); n != 2 {
		t.Fatalf("expected 2 annotations, got %d", n)
	}
	meta := d["metadata"].(map[string]any)
	entry := meta["annotations"].([]any)[0].(map[string]any)
	if entry["text"] != "first" {
		t.Fatalf("expected first entry preserved, got %v", entry)
	}
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		payload Document
		wantErr bool
	}{
		{"requirement ok", KindRequirement, Document{"title": "Login"}, false},
		{"requirement missing title", KindRequirement, Document{}, true},
		{"requirement negative votes", KindRequirement, Document{"title": "x", "votes": -1}, true},
		{"requirement bad tags", KindRequirement, Document{"title": "x", "metadata": map[string]any{"tags": []any{1}}}, true},
		{"solution ok", KindSolution, Document{"title": "JWT", "evaluation": map[string]any{"score": 8.5}}, false},
		{"solution score out of range", KindSolution, Document{"title": "JWT", "evaluation": map[string]any{"score": 11}}, true},
		{"solution evaluation not object", KindSolution, Document{"title": "JWT", "evaluation": "great"}, true},
		{"decision ok", KindDecision, Document{"title": "Use Postgres"}, false},
		{"artifact needs name", KindArtifact, Document{}, true},
		{"link ok", KindLink, Document{"source_id": "a", "target_id": "b", "relation_type": "implements"}, false},
		{"link unknown relation", KindLink, Document{"source_id": "a", "target_id": "b", "relation_type": "blocks"}, true},
		{"unknown kind", Kind("widget"), Document{"title": "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.kind, tt.payload)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestKindValid(t *testing.T) {
	for _, k := range Kinds() {
		if !k.Valid() {
			t.Errorf("kind %q should be valid", k)
		}
	}
	if Kind("widget").Valid() {
		t.Error("unknown kind reported valid")
	}
}
