package agent

import (
	"strings"
)

// ContextSection is a titled block of background information for the model.
type ContextSection struct {
	Title string
	Body  string
}

// PromptBuilder assembles a system prompt from typed parts. Base is the
// application's prompt template output and is included verbatim.
type PromptBuilder struct {
	Base     string
	UserID   string
	Context  []ContextSection
	Tools    []ToolSpec
	Degraded bool
}

const degradedNotice = "Tools are unavailable for this reply. Answer from the information below " +
	"and say so if something you would normally look up is missing."

// Build renders the system prompt. Empty parts are left out.
func (b PromptBuilder) Build() string {
	var sb strings.Builder

	if base := strings.TrimSpace(b.Base); base != "" {
		sb.WriteString(base)
	}

	if b.UserID != "" {
		writeSection(&sb, "User")
		sb.WriteString("user_id: ")
		sb.WriteString(b.UserID)
	}

	if len(b.Tools) > 0 {
		writeSection(&sb, "Available tools")
		for i, t := range b.Tools {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString("- ")
			sb.WriteString(t.Name)
			if t.Description != "" {
				sb.WriteString(": ")
				sb.WriteString(t.Description)
			}
		}
	}

	if b.Degraded {
		writeSection(&sb, "Mode")
		sb.WriteString(degradedNotice)
	}

	for _, c := range b.Context {
		body := strings.TrimSpace(c.Body)
		if body == "" {
			continue
		}
		writeSection(&sb, c.Title)
		sb.WriteString(body)
	}

	return sb.String()
}

func writeSection(sb *strings.Builder, title string) {
	if sb.Len() > 0 {
		sb.WriteString("\n\n")
	}
	sb.WriteString("# ")
	sb.WriteString(title)
	sb.WriteString("\n")
}

// buildMessages appends the current user input to history. System messages
// in history are dropped since the system prompt travels separately.
func buildMessages(history []Message, input string) []Message {
	messages := make([]Message, 0, len(history)+1)
	for _, m := range history {
		if m.Role == RoleSystem || (m.Content == "" && len(m.ToolCalls) == 0) {
			continue
		}
		messages = append(messages, m)
	}
	return append(messages, Message{Role: RoleUser, Content: input})
}
