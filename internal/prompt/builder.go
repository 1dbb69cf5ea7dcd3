// Package prompt renders edit and chat requests into model prompts.
// Every function here is pure and deterministic.
package prompt

import (
	"strconv"
	"strings"

	"github.com/ashureev/draftsmith/internal/domain"
)

const (
	// PreviewLimit bounds the number of characters of target content
	// embedded in a multi-target prompt.
	PreviewLimit = 200
	// Ellipsis marks a truncated preview.
	Ellipsis = "..."
)

const editPreamble = "You are an expert editor of long-form writing. Apply the editing instructions " +
	"and return ONLY the complete edited document. Do not add explanations, markdown code fences " +
	"or any other commentary; output the raw edited document and nothing else."

// EditSystemPrompt is the system prompt used for edit-mode generations.
const EditSystemPrompt = "You are a document editing assistant. Return only the edited text with no additional commentary."

// ChatSystemPrompt is the system prompt used for chat-mode generations.
const ChatSystemPrompt = "You are a helpful writing assistant. The user is working on a document and wants " +
	"to discuss it with you. Answer questions, give feedback, suggest improvements and keep a natural " +
	"conversation. Do NOT return a full edited document; respond conversationally."

// Build renders req into a prompt, dispatching on its mode and scope.
func Build(req domain.EditRequest) string {
	if req.IsChat() {
		return BuildChat(req.FullContent, req.Instruction, req.History)
	}
	return BuildEdit(req.FullContent, req.EditLevel, req.Instruction, req.Targets)
}

// SystemPrompt returns the system prompt matching req's mode.
func SystemPrompt(req domain.EditRequest) string {
	if req.IsChat() {
		return ChatSystemPrompt
	}
	return EditSystemPrompt
}

// BuildEdit renders a whole-document or multi-target edit prompt. A
// whole scope, or any scope without targets, renders the single-instruction
// form. The document is always embedded verbatim.
func BuildEdit(fullContent string, scope domain.Scope, instruction string, targets []domain.EditTarget) string {
	var b strings.Builder
	b.WriteString(editPreamble)
	b.WriteString("\n\nHere is the full document:\n\n")
	b.WriteString(fullContent)

	if scope == domain.ScopeWhole || len(targets) == 0 {
		b.WriteString("\n\nInstruction: ")
		b.WriteString(instruction)
		b.WriteString("\n\nReturn the complete edited document:")
		return b.String()
	}

	b.WriteString("\n\nOverall instruction: ")
	b.WriteString(instruction)
	b.WriteString("\n\nApply the overall instruction to every one of the following targets. ")
	b.WriteString("Where a target has its own additional instruction, apply that as well:\n\n")
	for i, t := range targets {
		if i > 0 {
			b.WriteString("\n\n")
		}
		writeTarget(&b, i+1, t)
	}
	b.WriteString("\n\nReturn the complete edited document with all changes merged in:")
	return b.String()
}

func writeTarget(b *strings.Builder, n int, t domain.EditTarget) {
	b.WriteString(strconv.Itoa(n))
	b.WriteString(". ")
	b.WriteString(TypeLabel(t))
	b.WriteString(":\n   > ")
	b.WriteString(strings.ReplaceAll(Preview(t.Content), "\n", "\n   > "))
	if strings.TrimSpace(t.Instruction) != "" {
		b.WriteString("\n   Additional instruction: ")
		b.WriteString(t.Instruction)
	}
}

// TypeLabel describes a target by its kind and label.
func TypeLabel(t domain.EditTarget) string {
	if t.Type == domain.TargetSection {
		return `Section "` + t.Label + `"`
	}
	return "Selected text: " + t.Label
}

// Preview bounds content to PreviewLimit characters, appending Ellipsis when
// anything was cut.
func Preview(content string) string {
	return truncateRunes(content, PreviewLimit)
}

func truncateRunes(s string, limit int) string {
	count := 0
	for i := range s {
		if count == limit {
			return s[:i] + Ellipsis
		}
		count++
	}
	return s
}

// BuildChat renders a conversational prompt: the document, the prior turns
// in order, and the new user message.
func BuildChat(fullContent, message string, history []domain.HistoryEntry) string {
	var b strings.Builder
	b.WriteString("Here is the document the user is working on:\n\n---\n")
	b.WriteString(fullContent)
	b.WriteString("\n---")

	if len(history) > 0 {
		b.WriteString("\n\nConversation so far:")
		for _, h := range history {
			b.WriteString("\n\n")
			b.WriteString(roleLabel(h.Role))
			b.WriteString(": ")
			b.WriteString(h.Content)
		}
	}

	b.WriteString("\n\nUser: ")
	b.WriteString(message)
	return b.String()
}

func roleLabel(r domain.Role) string {
	if r == domain.RoleUser {
		return "User"
	}
	return "Assistant"
}
