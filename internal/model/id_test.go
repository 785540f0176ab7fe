package model

import (
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	for _, idType := range []IDType{IDTypeCommand, IDTypeSession} {
		t.Run(string(idType), func(t *testing.T) {
			id, err := GenerateID(idType)
			if err != nil {
				t.Fatalf("GenerateID(%q): %v", idType, err)
			}
			if !strings.HasPrefix(id, string(idType)+"_") {
				t.Errorf("id %q missing prefix %q", id, idType)
			}
			if !ValidateID(id) {
				t.Errorf("generated id %q does not validate", id)
			}
			got, err := ParseIDType(id)
			if err != nil {
				t.Fatalf("ParseIDType: %v", err)
			}
			if got != idType {
				t.Errorf("ParseIDType = %q, want %q", got, idType)
			}
		})
	}
}

func TestGenerateID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateID(IDTypeCommand)
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestGenerateID_InvalidType(t *testing.T) {
	if _, err := GenerateID(IDType("task")); err == nil {
		t.Error("expected error for unknown id type")
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"cmd_7c9e6679-7425-40de-944b-e07fc1f90ae7", true},
		{"ses_7c9e6679-7425-40de-944b-e07fc1f90ae7", true},
		{"res_7c9e6679-7425-40de-944b-e07fc1f90ae7", false},
		{"cmd_not-a-uuid", false},
		{"cmd_7c9e6679742540de944be07fc1f90ae7", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidateID(tt.id); got != tt.valid {
			t.Errorf("ValidateID(%q) = %v, want %v", tt.id, got, tt.valid)
		}
	}
}
