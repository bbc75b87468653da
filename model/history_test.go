package model

import (
	"testing"
)

func msgs(roles ...Role) []Message {
	out := make([]Message, len(roles))
	for i, r := range roles {
		out[i] = Message{ID: string(rune('a' + i)), Role: r}
	}
	return out
}

func ids(messages []Message) string {
	s := ""
	for _, m := range messages {
		s += m.ID
	}
	return s
}

func TestTruncateHistory(t *testing.T) {
	u, a, s, tl := RoleUser, RoleAssistant, RoleSystem, RoleTool

	tests := []struct {
		name     string
		in       []Message
		maxTurns int
		want     string
	}{
		{"empty", nil, 3, ""},
		{"zero disables", msgs(u, a, u, a), 0, "abcd"},
		{"negative disables", msgs(u, a, u, a), -1, "abcd"},
		{"under limit", msgs(u, a), 3, "ab"},
		{"exact limit", msgs(u, a, u, a), 2, "abcd"},
		{"drops oldest turns", msgs(u, a, u, a, u, a), 2, "cdef"},
		{"pending user kept beyond limit", msgs(u, a, u, a, u), 1, "cde"},
		{"system prefix kept", msgs(s, u, a, u, a), 1, "ade"},
		{"tool traffic stays with its turn", msgs(u, a, tl, a, u, a), 1, "ef"},
		{"tool traffic within last turn", msgs(u, a, u, a, tl, a), 1, "cdef"},
		{"only pending user", msgs(u), 1, "a"},
		{"assistant preamble under limit", msgs(a, u, a), 2, "abc"},
		{"assistant preamble dropped at limit", msgs(a, u, a, u, a), 2, "bcde"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(TruncateHistory(tt.in, tt.maxTurns))
			if got != tt.want {
				t.Errorf("TruncateHistory: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateHistoryDoesNotMutateInput(t *testing.T) {
	in := msgs(RoleUser, RoleAssistant, RoleUser, RoleAssistant)
	before := ids(in)
	_ = TruncateHistory(in, 1)
	if ids(in) != before {
		t.Errorf("input mutated: got %q, want %q", ids(in), before)
	}
}
