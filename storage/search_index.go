package storage

import (
	"sort"
	"strings"
	"time"

	"chatdesk/model"

	"github.com/sahilm/fuzzy"
)

// ConversationMatch is one search hit. MessageIndex is -1 for a title match.
type ConversationMatch struct {
	ConversationID string
	Title          string
	MessageIndex   int
	Role           model.Role
	Preview        string
	Timestamp      time.Time
	Score          int
}

const previewLen = 100

type titleSource []model.Conversation

func (t titleSource) String(i int) string { return t[i].Title }
func (t titleSource) Len() int            { return len(t) }

// SearchConversations ranks conversation titles with fuzzy matching, then adds
// case-insensitive substring hits inside message bodies. Title hits come
// first, best score first; message hits follow, newest first.
func SearchConversations(convs []model.Conversation, query string) []ConversationMatch {
	query = strings.TrimSpace(query)
	if query == "" {
		return []ConversationMatch{}
	}

	var matches []ConversationMatch

	for _, m := range fuzzy.FindFrom(query, titleSource(convs)) {
		c := convs[m.Index]
		matches = append(matches, ConversationMatch{
			ConversationID: c.ID,
			Title:          c.Title,
			MessageIndex:   -1,
			Preview:        c.Title,
			Timestamp:      c.UpdatedAt,
			Score:          m.Score,
		})
	}

	queryLower := strings.ToLower(query)
	var bodyMatches []ConversationMatch
	for _, c := range convs {
		for i, msg := range c.Messages {
			if msg.Role == model.RoleSystem {
				continue
			}
			if !strings.Contains(strings.ToLower(msg.Content), queryLower) {
				continue
			}
			bodyMatches = append(bodyMatches, ConversationMatch{
				ConversationID: c.ID,
				Title:          c.Title,
				MessageIndex:   i,
				Role:           msg.Role,
				Preview:        preview(msg.Content),
				Timestamp:      msg.Timestamp,
			})
		}
	}
	sort.SliceStable(bodyMatches, func(i, j int) bool {
		return bodyMatches[i].Timestamp.After(bodyMatches[j].Timestamp)
	})

	return append(matches, bodyMatches...)
}

func preview(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) > previewLen {
		return string(runes[:previewLen]) + "..."
	}
	return content
}
