// Package memory injects a user's saved key/value context into a conversation
// and enforces the per-user storage budget.
package memory

import (
	"fmt"
	"strings"
	"time"

	"keyring/internal/core"
)

const (
	// MaxBytes is the total size of all values a user may store.
	MaxBytes = 10240

	// MaxContextEntries is how many entries are read when augmenting a conversation.
	MaxContextEntries = 10

	contextHeader = "User context:\n"
)

// Entry is one stored memory item.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BudgetError reports a write that would take the user past MaxBytes.
type BudgetError struct {
	Used      int
	Requested int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("Memory size limit exceeded. Maximum: %d bytes", MaxBytes)
}

// Augment returns a new conversation with a synthesized system message in
// front when entries is non-empty. Callers pass entries most recently
// updated first; only the first MaxContextEntries are used. messages is
// never modified.
func Augment(entries []Entry, messages []core.Message) []core.Message {
	if len(entries) == 0 {
		return core.CloneMessages(messages)
	}
	if len(entries) > MaxContextEntries {
		entries = entries[:MaxContextEntries]
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Key+": "+e.Value)
	}

	out := make([]core.Message, 0, len(messages)+1)
	out = append(out, core.Message{
		Role:      core.RoleSystem,
		Content:   contextHeader + strings.Join(lines, "\n"),
		Timestamp: time.Now(),
	})
	return append(out, messages...)
}

// UsedBytes sums the value sizes of entries.
func UsedBytes(entries []Entry) int {
	total := 0
	for _, e := range entries {
		total += len(e.Value)
	}
	return total
}

// CheckBudget reports whether writing key=value on top of existing stays
// within MaxBytes. An existing value for the same key is replaced, not added.
func CheckBudget(existing []Entry, key, value string) error {
	used := 0
	for _, e := range existing {
		if e.Key == key {
			continue
		}
		used += len(e.Value)
	}
	if used+len(value) > MaxBytes {
		return &BudgetError{Used: used, Requested: len(value)}
	}
	return nil
}
