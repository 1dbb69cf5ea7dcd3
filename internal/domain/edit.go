// Package domain contains core domain types for the draftsmith application.
package domain

import "time"

// Scope is the granularity of an edit request.
type Scope string

const (
	// ScopeWhole rewrites the whole document with one instruction.
	ScopeWhole Scope = "whole"
	// ScopeSection edits a set of heading-delimited sections.
	ScopeSection Scope = "section"
	// ScopeSelection edits a set of free-text selections.
	ScopeSelection Scope = "selection"
	// ScopeChat is a conversational exchange that never mutates the document.
	ScopeChat Scope = "chat"
)

// Valid reports whether s is one of the known scopes.
func (s Scope) Valid() bool {
	switch s {
	case ScopeWhole, ScopeSection, ScopeSelection, ScopeChat:
		return true
	}
	return false
}

// Mode selects between producing a replacement document and conversing.
type Mode string

const (
	// ModeEdit produces a full-document replacement candidate.
	ModeEdit Mode = "edit"
	// ModeChat produces a conversational reply.
	ModeChat Mode = "chat"
)

// TargetType identifies what an edit target points at.
type TargetType string

const (
	// TargetSection is a snapshot of a parsed section.
	TargetSection TargetType = "section"
	// TargetSelection is a snapshot of a character range.
	TargetSelection TargetType = "selection"
)

// EditTarget is one scoped unit bundled into a multi-target edit.
// Content and Label are captured at selection time and are not re-validated
// against later document changes.
type EditTarget struct {
	ID          string     `json:"id"`
	Type        TargetType `json:"type"`
	Label       string     `json:"label"`
	Content     string     `json:"content"`
	Instruction string     `json:"instruction"`
	SectionID   string     `json:"sectionId,omitempty"`
	From        *int       `json:"from,omitempty"`
	To          *int       `json:"to,omitempty"`
}

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryEntry is one prior conversation turn replayed to the model.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// EditRequest is the unit of work submitted to the streaming transport.
type EditRequest struct {
	FullContent string         `json:"fullContent"`
	EditLevel   Scope          `json:"editLevel"`
	Model       string         `json:"model,omitempty"`
	Mode        Mode           `json:"mode"`
	Instruction string         `json:"instruction,omitempty"`
	Targets     []EditTarget   `json:"targets,omitempty"`
	History     []HistoryEntry `json:"history,omitempty"`
}

// IsChat reports whether the request is a conversational exchange.
func (r EditRequest) IsChat() bool {
	return r.Mode == ModeChat || r.EditLevel == ScopeChat
}

// ChatMessage is a single entry of the session turn log.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
