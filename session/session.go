package session

import (
	"github.com/google/uuid"
)

// Role tags a message with the party that produced it.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolCall   Role = "tool-call"
	RoleToolResult Role = "tool-result"
	RoleSystem     Role = "system"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the ordered message log the model sees as its context.
// It only grows: messages are never edited or removed. It lives in memory
// for the lifetime of the process and is not safe for concurrent writers.
type Conversation struct {
	ID       string
	messages []Message
}

// New creates an empty conversation. A non-empty system prompt becomes the
// first message.
func New(systemPrompt string) *Conversation {
	c := &Conversation{ID: uuid.NewString()}
	if systemPrompt != "" {
		c.messages = append(c.messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return c
}

// Append adds a message to the end of the conversation.
func (c *Conversation) Append(msg Message) {
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the conversation history.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int { return len(c.messages) }

// Last returns the most recent message.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}
