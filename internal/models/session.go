package models

import (
	"sort"
	"time"
)

// DefaultTitle is the placeholder title of a fresh session.
const DefaultTitle = "New Chat"

// ChatSession groups a sequence of messages. LastUpdated is unix milliseconds.
type ChatSession struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Messages    []Message `json:"messages"`
	IsLoading   bool      `json:"isLoading"`
	LastUpdated int64     `json:"lastUpdated"`
}

// UpdatedAt returns LastUpdated as a time.
func (s *ChatSession) UpdatedAt() time.Time {
	return time.UnixMilli(s.LastUpdated)
}

// Touch refreshes LastUpdated.
func (s *ChatSession) Touch(now time.Time) {
	s.LastUpdated = now.UnixMilli()
}

// Clone returns a deep copy safe to hand out of the store.
func (s *ChatSession) Clone() ChatSession {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}

// LastMessage returns the structurally last message, or nil.
func (s *ChatSession) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// Collection is the persisted set of sessions. The active session is not stored.
type Collection struct {
	Sessions []ChatSession `json:"sessions"`
}

// SortByRecency orders sessions by LastUpdated descending. Ties keep their
// incoming order.
func SortByRecency(sessions []ChatSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastUpdated > sessions[j].LastUpdated
	})
}
