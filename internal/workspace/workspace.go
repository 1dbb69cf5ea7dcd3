// Package workspace holds the client-side state of one editing session:
// the document, its edit targets, and the pending edit awaiting a decision.
package workspace

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ashureev/draftsmith/internal/document"
	"github.com/ashureev/draftsmith/internal/domain"
	"github.com/ashureev/draftsmith/internal/model"
)

// SelectionLabelLimit is the number of characters of a selection shown in
// its label.
const SelectionLabelLimit = 40

var (
	ErrUnknownSection   = errors.New("unknown section")
	ErrUnknownTarget    = errors.New("unknown target")
	ErrEmptySelection   = errors.New("selection is empty")
	ErrInvalidSelection = errors.New("selection is out of range")
	ErrNoTargets        = errors.New("no edit targets selected")
	ErrNoInstruction    = errors.New("instruction is required")
	ErrNoPendingEdit    = errors.New("no pending edit")
)

// Workspace is safe for concurrent use.
type Workspace struct {
	mu      sync.Mutex
	content string
	scope   domain.Scope
	model   model.ID
	targets []domain.EditTarget
	pending *string
	newID   func() string
}

// New returns a workspace editing content at whole-document scope.
func New(content string) *Workspace {
	return &Workspace{
		content: content,
		scope:   domain.ScopeWhole,
		model:   model.Default,
		newID:   uuid.NewString,
	}
}

// Content returns the current document.
func (w *Workspace) Content() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.content
}

// SetContent replaces the document. Targets keep their captured snapshots.
func (w *Workspace) SetContent(content string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.content = content
}

// Hash returns the advisory content hash of the document.
func (w *Workspace) Hash() string {
	return document.Hash(w.Content())
}

// Sections parses the current document.
func (w *Workspace) Sections() []domain.Section {
	return document.Parse(w.Content())
}

// Scope returns the current edit scope.
func (w *Workspace) Scope() domain.Scope {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scope
}

// SetScope changes the edit scope.
func (w *Workspace) SetScope(s domain.Scope) error {
	if !s.Valid() {
		return fmt.Errorf("invalid scope %q", s)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scope = s
	return nil
}

// SetModel selects the model used by BuildRequest.
func (w *Workspace) SetModel(id model.ID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.model = id
}

// Targets returns a copy of the current edit targets in insertion order.
func (w *Workspace) Targets() []domain.EditTarget {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.EditTarget, len(w.targets))
	copy(out, w.targets)
	return out
}

// ToggleSection adds a target for the section with sectionID, or removes
// it if one already exists. It reports whether the section is now
// targeted.
func (w *Workspace) ToggleSection(sectionID string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, t := range w.targets {
		if t.SectionID == sectionID {
			w.targets = append(w.targets[:i], w.targets[i+1:]...)
			return false, nil
		}
	}
	s, ok := document.Find(w.content, sectionID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownSection, sectionID)
	}
	w.targets = append(w.targets, domain.EditTarget{
		ID:        w.newID(),
		Type:      domain.TargetSection,
		Label:     s.Title,
		Content:   s.Content,
		SectionID: s.ID,
	})
	return true, nil
}

// AddSelection adds a target for the characters [from, to) of the document.
// Offsets count runes.
func (w *Workspace) AddSelection(from, to int) (domain.EditTarget, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	runes := []rune(w.content)
	if from < 0 || to > len(runes) || from > to {
		return domain.EditTarget{}, fmt.Errorf("%w: %d:%d", ErrInvalidSelection, from, to)
	}
	text := string(runes[from:to])
	if text == "" {
		return domain.EditTarget{}, ErrEmptySelection
	}

	t := domain.EditTarget{
		ID:      w.newID(),
		Type:    domain.TargetSelection,
		Label:   SelectionLabel(text),
		Content: text,
		From:    &from,
		To:      &to,
	}
	w.targets = append(w.targets, t)
	return t, nil
}

// SelectionLabel renders the quoted, single-line label of a selection.
func SelectionLabel(text string) string {
	r := []rune(text)
	preview := text
	suffix := ""
	if len(r) > SelectionLabelLimit {
		preview = string(r[:SelectionLabelLimit])
		suffix = "..."
	}
	return `"` + strings.ReplaceAll(preview, "\n", " ") + suffix + `"`
}

// RemoveTarget drops the target with id.
func (w *Workspace) RemoveTarget(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, t := range w.targets {
		if t.ID == id {
			w.targets = append(w.targets[:i], w.targets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownTarget, id)
}

// SetTargetInstruction sets the per-target instruction of id.
func (w *Workspace) SetTargetInstruction(id, instruction string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.targets {
		if w.targets[i].ID == id {
			w.targets[i].Instruction = instruction
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownTarget, id)
}

// ClearTargets drops every target.
func (w *Workspace) ClearTargets() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.targets = nil
}

// BuildRequest assembles the request for the current scope. Section and
// selection scopes need at least one target and a non-blank instruction.
func (w *Workspace) BuildRequest(instruction string) (domain.EditRequest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	req := domain.EditRequest{
		FullContent: w.content,
		EditLevel:   w.scope,
		Model:       string(w.model),
		Mode:        domain.ModeEdit,
		Instruction: instruction,
	}
	switch w.scope {
	case domain.ScopeChat:
		req.Mode = domain.ModeChat
		if strings.TrimSpace(instruction) == "" {
			return domain.EditRequest{}, ErrNoInstruction
		}
	case domain.ScopeSection, domain.ScopeSelection:
		if len(w.targets) == 0 {
			return domain.EditRequest{}, ErrNoTargets
		}
		if strings.TrimSpace(instruction) == "" {
			return domain.EditRequest{}, ErrNoInstruction
		}
		req.Instruction = strings.TrimSpace(instruction)
		req.Targets = make([]domain.EditTarget, len(w.targets))
		copy(req.Targets, w.targets)
	default:
		if strings.TrimSpace(instruction) == "" {
			return domain.EditRequest{}, ErrNoInstruction
		}
	}
	return req, nil
}

// SetPending records result as the edit awaiting accept or reject.
func (w *Workspace) SetPending(result string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = &result
}

// Pending returns the pending edit, if any.
func (w *Workspace) Pending() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return "", false
	}
	return *w.pending, true
}

// Accept makes the pending edit the document and clears the targets.
func (w *Workspace) Accept() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return "", ErrNoPendingEdit
	}
	w.content = *w.pending
	w.pending = nil
	w.targets = nil
	return w.content, nil
}

// Reject discards the pending edit. Targets are kept for a retry.
func (w *Workspace) Reject() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return ErrNoPendingEdit
	}
	w.pending = nil
	return nil
}

// Restore replaces the document with a saved version's content and drops
// any pending edit.
func (w *Workspace) Restore(content string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.content = content
	w.pending = nil
}

// ReplaceSection swaps the section with sectionID for replacement,
// resolving the id against a fresh parse.
func (w *Workspace) ReplaceSection(sectionID, replacement string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := document.Find(w.content, sectionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSection, sectionID)
	}
	w.content = document.ReplaceSection(w.content, s, replacement)
	return nil
}
