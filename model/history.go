package model

// TruncateHistory keeps the last maxTurns conversational turns.
//
// A turn starts at a user message and runs until the next user message, so it
// carries the assistant reply and any tool traffic in between. Leading system
// messages are always kept. When the history ends in a user message with no
// reply yet, that pending message is kept in addition to the last maxTurns
// complete turns. maxTurns <= 0 disables truncation.
//
// The input slice is never modified.
func TruncateHistory(messages []Message, maxTurns int) []Message {
	if maxTurns <= 0 || len(messages) == 0 {
		return messages
	}

	// Leading system messages.
	head := 0
	for head < len(messages) && messages[head].Role == RoleSystem {
		head++
	}
	body := messages[head:]

	// A trailing user message awaiting a reply does not count as a turn.
	pending := 0
	if n := len(body); n > 0 && body[n-1].Role == RoleUser {
		pending = 1
	}
	complete := body[:len(body)-pending]

	start := len(complete)
	turns := 0
	for i := len(complete) - 1; i >= 0; i-- {
		if complete[i].Role != RoleUser {
			continue
		}
		if turns == maxTurns {
			break
		}
		turns++
		start = i
	}
	if turns < maxTurns {
		// Fewer user turns than the limit: keep everything, including any
		// assistant preamble before the first user message.
		start = 0
	}

	out := make([]Message, 0, head+len(body)-start)
	out = append(out, messages[:head]...)
	out = append(out, complete[start:]...)
	out = append(out, body[len(complete):]...)
	return out
}
