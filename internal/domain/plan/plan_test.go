package plan

import (
	"errors"
	"testing"

	"github.com/planforge/planforge/internal/domain"
)

func TestCreateRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateRequest
		wantErr bool
	}{
		{"valid", CreateRequest{Name: "Roadmap 2026"}, false},
		{"with settings", CreateRequest{Name: "x", Settings: Settings{MaxHistoryDepth: 10}}, false},
		{"empty name", CreateRequest{}, true},
		{"whitespace name", CreateRequest{Name: "   "}, true},
		{"negative history depth", CreateRequest{Name: "x", Settings: Settings{MaxHistoryDepth: -1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
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
