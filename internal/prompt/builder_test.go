package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ashureev/draftsmith/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEdit_Whole(t *testing.T) {
	doc := "# Title\n\nOnce upon a time there was a very long sentence."
	p := BuildEdit(doc, domain.ScopeWhole, "shorten this", nil)

	assert.True(t, strings.HasPrefix(p, editPreamble))
	assert.Contains(t, p, "Here is the full document:\n\n"+doc+"\n\n")
	assert.Contains(t, p, "Instruction: shorten this")
	assert.True(t, strings.HasSuffix(p, "Return the complete edited document:"))
	assert.Contains(t, p, "Do not add explanations")
}

func TestBuildEdit_ScopeWithoutTargetsFallsBackToWhole(t *testing.T) {
	p := BuildEdit("doc", domain.ScopeSection, "tighten", nil)
	assert.Contains(t, p, "Instruction: tighten")
	assert.NotContains(t, p, "Overall instruction")
}

func TestBuildEdit_MultiTarget(t *testing.T) {
	targets := []domain.EditTarget{
		{Type: domain.TargetSection, Label: "Intro", Content: "# Intro\nline one\nline two"},
		{Type: domain.TargetSelection, Label: `"some words"`, Content: "some words", Instruction: "make it formal"},
		{Type: domain.TargetSection, Label: "Body", Content: "# Body", Instruction: "   "},
	}
	p := BuildEdit("full doc", domain.ScopeSection, "fix grammar", targets)

	assert.Contains(t, p, "Here is the full document:\n\nfull doc")
	assert.Contains(t, p, "Overall instruction: fix grammar")
	assert.Contains(t, p, "Apply the overall instruction to every one of the following targets")
	assert.Contains(t, p, "1. Section \"Intro\":\n   > # Intro\n   > line one\n   > line two")
	assert.Contains(t, p, "2. Selected text: \"some words\":\n   > some words\n   Additional instruction: make it formal")
	assert.Contains(t, p, "3. Section \"Body\":\n   > # Body")
	assert.Equal(t, 1, strings.Count(p, "Additional instruction:"), "blank per-target instruction must be omitted")
	assert.True(t, strings.HasSuffix(p, "Return the complete edited document with all changes merged in:"))
}

func TestBuildEdit_NeverTruncatesDocument(t *testing.T) {
	doc := strings.Repeat("word ", 50000)
	targets := []domain.EditTarget{{Type: domain.TargetSelection, Label: "x", Content: doc}}
	p := BuildEdit(doc, domain.ScopeSelection, "go", targets)
	assert.Contains(t, p, doc)
}

func TestPreview_Bounded(t *testing.T) {
	short := strings.Repeat("a", PreviewLimit)
	assert.Equal(t, short, Preview(short))

	long := strings.Repeat("é", PreviewLimit+50)
	got := Preview(long)
	assert.True(t, strings.HasSuffix(got, Ellipsis))
	assert.Equal(t, PreviewLimit+utf8.RuneCountInString(Ellipsis), utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}

func TestBuild_Deterministic(t *testing.T) {
	req := domain.EditRequest{
		FullContent: "# A\nb",
		EditLevel:   domain.ScopeSelection,
		Mode:        domain.ModeEdit,
		Instruction: "rewrite",
		Targets: []domain.EditTarget{
			{Type: domain.TargetSelection, Label: "b", Content: "b", Instruction: "bolder"},
		},
	}
	assert.Equal(t, Build(req), Build(req))
	assert.Equal(t, EditSystemPrompt, SystemPrompt(req))
}

func TestBuildChat(t *testing.T) {
	history := []domain.HistoryEntry{
		{Role: domain.RoleUser, Content: "Is the intro too long?"},
		{Role: domain.RoleAssistant, Content: "A little."},
	}
	p := BuildChat("my doc", "How would you cut it?", history)

	require.True(t, strings.HasPrefix(p, "Here is the document the user is working on:\n\n---\nmy doc\n---"))
	assert.Contains(t, p, "Conversation so far:\n\nUser: Is the intro too long?\n\nAssistant: A little.")
	assert.True(t, strings.HasSuffix(p, "\n\nUser: How would you cut it?"))
	assert.NotContains(t, p, "commentary")
}

func TestBuildChat_NoHistory(t *testing.T) {
	p := BuildChat("doc", "hi", nil)
	assert.NotContains(t, p, "Conversation so far")
	assert.Equal(t, "Here is the document the user is working on:\n\n---\ndoc\n---\n\nUser: hi", p)
}

func TestBuild_ChatMode(t *testing.T) {
	req := domain.EditRequest{FullContent: "doc", Mode: domain.ModeChat, Instruction: "thoughts?"}
	assert.Equal(t, BuildChat("doc", "thoughts?", nil), Build(req))
	assert.Equal(t, ChatSystemPrompt, SystemPrompt(req))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Greater(t, EstimateTokens("hello world, this is a short sentence"), 3)
}
