package session

import "testing"

func TestNewWithSystemPrompt(t *testing.T) {
	c := New("be helpful")
	if c.ID == "" {
		t.Error("Expected a conversation ID")
	}
	if c.Len() != 1 {
		t.Fatalf("Expected 1 message, got %d", c.Len())
	}
	first, _ := c.Last()
	if first.Role != RoleSystem || first.Content != "be helpful" {
		t.Errorf("Unexpected first message %+v", first)
	}

	if New("").Len() != 0 {
		t.Error("Expected empty conversation without a system prompt")
	}
	if New("").ID == New("").ID {
		t.Error("Expected distinct conversation IDs")
	}
}

func TestAppendOnly(t *testing.T) {
	c := New("")
	c.Append(Message{Role: RoleUser, Content: "hi"})
	c.Append(Message{Role: RoleAssistant, Content: "hello"})

	msgs := c.Messages()
	msgs[0].Content = "tampered"

	again := c.Messages()
	if again[0].Content != "hi" {
		t.Errorf("Messages() must return a copy, history changed to %q", again[0].Content)
	}

	last, ok := c.Last()
	if !ok || last.Role != RoleAssistant {
		t.Errorf("Unexpected last message %+v", last)
	}
}

func TestLastEmpty(t *testing.T) {
	if _, ok := New("").Last(); ok {
		t.Error("Expected no last message on an empty conversation")
	}
}
