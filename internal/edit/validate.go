package edit

import (
	"fmt"

	"github.com/ashureev/draftsmith/internal/domain"
	"github.com/ashureev/draftsmith/internal/model"
)

// ValidationError rejects a request before any streaming begins.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

// Validate checks req against the request surface rules. A chat-scoped
// request is treated as chat mode.
func Validate(req domain.EditRequest) error {
	if req.FullContent == "" {
		return invalid("Missing required field: fullContent")
	}
	switch req.Mode {
	case "", domain.ModeEdit, domain.ModeChat:
	default:
		return invalid("Invalid mode: " + string(req.Mode))
	}
	if _, err := model.ParseID(req.Model); err != nil {
		return invalid("Unknown model: " + req.Model)
	}

	if req.IsChat() {
		if req.Instruction == "" {
			return invalid("Missing instruction for chat")
		}
		return nil
	}

	if req.EditLevel == "" {
		return invalid("Missing required field: editLevel")
	}
	if !req.EditLevel.Valid() {
		return invalid("Invalid editLevel: " + string(req.EditLevel))
	}
	switch req.EditLevel {
	case domain.ScopeWhole:
		if req.Instruction == "" {
			return invalid("Missing instruction for whole-document editing")
		}
	case domain.ScopeSection, domain.ScopeSelection:
		if len(req.Targets) == 0 {
			return invalid("Missing targets for section/selection editing")
		}
		for i, t := range req.Targets {
			if t.Type != domain.TargetSection && t.Type != domain.TargetSelection {
				return invalid(fmt.Sprintf("Invalid target type at position %d: %q", i+1, t.Type))
			}
		}
	}
	return nil
}
