package memory

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyring/internal/core"
)

func TestAugment_Empty(t *testing.T) {
	msgs := []core.Message{{Role: core.RoleUser, Content: "hi"}}
	out := Augment(nil, msgs)
	assert.Equal(t, msgs, out)
}

func TestAugment_PrependsContext(t *testing.T) {
	msgs := []core.Message{{Role: core.RoleUser, Content: "hi"}}
	entries := []Entry{
		{Key: "name", Value: "Ada"},
		{Key: "lang", Value: "Go"},
	}

	out := Augment(entries, msgs)

	require.Len(t, out, 2)
	assert.Equal(t, core.RoleSystem, out[0].Role)
	assert.Equal(t, "User context:\nname: Ada\nlang: Go", out[0].Content)
	assert.Equal(t, msgs[0], out[1])
	assert.Len(t, msgs, 1, "input must not grow")
}

func TestAugment_CapsEntries(t *testing.T) {
	entries := make([]Entry, 15)
	for i := range entries {
		entries[i] = Entry{Key: fmt.Sprintf("k%d", i), Value: "v"}
	}

	out := Augment(entries, []core.Message{{Role: core.RoleUser, Content: "hi"}})

	lines := strings.Split(strings.TrimPrefix(out[0].Content, "User context:\n"), "\n")
	assert.Len(t, lines, MaxContextEntries)
	assert.Equal(t, "k0: v", lines[0])
	assert.Equal(t, "k9: v", lines[9])
}

func TestAugment_DoesNotAliasInput(t *testing.T) {
	msgs := make([]core.Message, 1, 4)
	msgs[0] = core.Message{Role: core.RoleUser, Content: "hi"}

	out := Augment(nil, msgs)
	out[0].Content = "changed"
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestCheckBudget(t *testing.T) {
	half := strings.Repeat("a", MaxBytes/2)

	tests := []struct {
		name     string
		existing []Entry
		key      string
		value    string
		wantErr  bool
	}{
		{"empty store", nil, "k", "v", false},
		{"exactly at limit", []Entry{{Key: "a", Value: half}}, "b", half, false},
		{"one byte over", []Entry{{Key: "a", Value: half}}, "b", half + "x", true},
		{"update replaces old value", []Entry{{Key: "a", Value: half}, {Key: "b", Value: half}}, "b", half, false},
		{"update still over", []Entry{{Key: "a", Value: half}, {Key: "b", Value: "x"}}, "b", half + "x", true},
		{"single oversized value", nil, "k", strings.Repeat("z", MaxBytes+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckBudget(tt.existing, tt.key, tt.value)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var budget *BudgetError
			require.True(t, errors.As(err, &budget))
			assert.Equal(t, "Memory size limit exceeded. Maximum: 10240 bytes", err.Error())
		})
	}
}

func TestUsedBytes(t *testing.T) {
	assert.Equal(t, 0, UsedBytes(nil))
	assert.Equal(t, 5, UsedBytes([]Entry{{Value: "ab"}, {Value: "cde"}}))
}
