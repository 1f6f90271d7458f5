// Package types provides core types used across the planflow service.
// This package has ZERO dependencies on other planflow packages to avoid circular imports.
// All other packages should import types from here.
package types

import "time"

// Role identifies who authored a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content,omitempty"`
	Name      string    `json:"name,omitempty"`
	Metadata  any       `json:"metadata,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// NewMessage builds a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// NewSystemMessage builds a system message.
func NewSystemMessage(content string) Message { return NewMessage(RoleSystem, content) }

// NewUserMessage builds a user message.
func NewUserMessage(content string) Message { return NewMessage(RoleUser, content) }

// NewAssistantMessage builds an assistant message.
func NewAssistantMessage(content string) Message { return NewMessage(RoleAssistant, content) }

// WithMetadata returns a copy of the message carrying metadata.
func (m Message) WithMetadata(metadata any) Message {
	m.Metadata = metadata
	return m
}
