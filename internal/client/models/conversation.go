package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

const titleMaxRunes = 40

// DefaultTitle derives a conversation title from the first user message.
func DefaultTitle(firstMessage string) string {
	s := strings.Join(strings.Fields(firstMessage), " ")
	if utf8.RuneCountInString(s) <= titleMaxRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:titleMaxRunes])) + "…"
}

// LastActivity is the latest of UpdatedAt and every message timestamp.
func (c Conversation) LastActivity() time.Time {
	last := c.UpdatedAt
	for _, m := range c.Messages {
		if m.CreatedAt.After(last) {
			last = m.CreatedAt
		}
	}
	return last
}
