package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/m4xw311/tinker/session"
)

// MockReply is one scripted backend answer.
type MockReply struct {
	Candidate Candidate
	Err       error
}

func ReplyText(text string) MockReply {
	return MockReply{Candidate: Candidate{Content: text}}
}

func ReplyToolCall(name string, args map[string]interface{}) MockReply {
	return MockReply{Candidate: Candidate{ToolCall: &ToolCall{Name: name, Arguments: args}}}
}

func ReplyError(err error) MockReply {
	return MockReply{Err: err}
}

// MockClient replays scripted replies in order. Once the script is used up it
// parrots the last message back.
type MockClient struct {
	mu       sync.Mutex
	script   []MockReply
	requests []Request
}

func NewMockClient(replies ...MockReply) *MockClient {
	return &MockClient{script: replies}
}

func (m *MockClient) Complete(ctx context.Context, req Request) (*Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		if next.Err != nil {
			return nil, next.Err
		}
		c := next.Candidate
		return &c, nil
	}

	last := ""
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	return &Candidate{Content: fmt.Sprintf("I am a mock LLM. You said: '%s'.", last)}, nil
}

// Requests returns every request received so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// LastMessages returns the messages of the most recent request.
func (m *MockClient) LastMessages() []session.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1].Messages
}
