package core

import (
	"errors"
	"testing"
)

func TestParseProvider(t *testing.T) {
	for _, p := range Providers() {
		got, err := ParseProvider(string(p))
		if err != nil {
			t.Errorf("ParseProvider(%q) error = %v", p, err)
		}
		if got != p {
			t.Errorf("ParseProvider(%q) = %q", p, got)
		}
	}

	for _, raw := range []string{"", "mistral", "OpenAI", "gemini"} {
		if _, err := ParseProvider(raw); !errors.Is(err, ErrUnsupportedProvider) {
			t.Errorf("ParseProvider(%q) error = %v, want ErrUnsupportedProvider", raw, err)
		}
	}
}

func TestNewUsage(t *testing.T) {
	tests := []struct {
		name               string
		prompt, completion int
		wantTotal          int
	}{
		{"prompt and completion", 10, 5, 15},
		{"prompt only", 7, 0, 7},
		{"zero", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewUsage(tt.prompt, tt.completion)
			if u.TotalTokens != tt.wantTotal {
				t.Errorf("TotalTokens = %d, want %d", u.TotalTokens, tt.wantTotal)
			}
		})
	}
}

func TestCloneMessages(t *testing.T) {
	orig := []Message{{Role: RoleUser, Content: "hi"}}
	clone := CloneMessages(orig)
	clone[0].Content = "changed"

	if orig[0].Content != "hi" {
		t.Errorf("CloneMessages shares backing array with input")
	}
	if CloneMessages(nil) != nil {
		t.Errorf("CloneMessages(nil) should be nil")
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAssistant, RoleSystem} {
		if !r.Valid() {
			t.Errorf("%q.Valid() = false", r)
		}
	}
	if Role("tool").Valid() {
		t.Errorf(`"tool".Valid() = true`)
	}
}
