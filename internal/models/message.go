package models

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Citation points an assistant answer back at the source passage it was
// grounded on. Citations only appear on assistant messages and are
// immutable once set.
type Citation struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// Message is one turn of a conversation. Content is mutable only while
// an assistant reply is still streaming in.
type Message struct {
	ID        string     `json:"id,omitempty"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
	CreatedAt time.Time  `json:"createdAt,omitzero"`
}
