// Package document derives structural sections from markdown text and
// computes advisory content hashes.
package document

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ashureev/draftsmith/internal/domain"
)

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// heading is a matched heading line.
type heading struct {
	title string
	level int
	line  int
}

// Parse returns the ordered sections of content. Section i spans from its
// heading line to the line before the next heading, or to the last line of
// the document. Text without headings yields no sections.
//
// IDs are positional ("section-<i>") and must not be kept across edits.
func Parse(content string) []domain.Section {
	lines := strings.Split(content, "\n")

	var headings []heading
	for i, line := range lines {
		if h, ok := matchHeading(line); ok {
			h.line = i
			headings = append(headings, h)
		}
	}
	if len(headings) == 0 {
		return nil
	}

	sections := make([]domain.Section, 0, len(headings))
	for i, h := range headings {
		end := len(lines) - 1
		if i+1 < len(headings) {
			end = headings[i+1].line - 1
		}
		sections = append(sections, domain.Section{
			ID:        SectionID(i),
			Title:     h.title,
			Level:     h.level,
			StartLine: h.line,
			EndLine:   end,
			Content:   strings.Join(lines[h.line:end+1], "\n"),
		})
	}
	return sections
}

// SectionID returns the positional id of the i-th section of a parse pass.
func SectionID(i int) string {
	return "section-" + strconv.Itoa(i)
}

func matchHeading(line string) (heading, bool) {
	if !strings.HasPrefix(line, "#") {
		return heading{}, false
	}
	m := headingPattern.FindStringSubmatch(line)
	if m == nil {
		return heading{}, false
	}
	title := strings.TrimSpace(m[2])
	if title == "" {
		return heading{}, false
	}
	return heading{title: title, level: len(m[1])}, true
}

// Find returns the section with the given id from a fresh parse of content.
func Find(content, id string) (domain.Section, bool) {
	for _, s := range Parse(content) {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Section{}, false
}

// FindByTitle re-resolves a section by heading text. When several sections
// share a title, the one whose start line is closest to nearLine wins.
func FindByTitle(content, title string, nearLine int) (domain.Section, bool) {
	var (
		best  domain.Section
		found bool
	)
	for _, s := range Parse(content) {
		if s.Title != title {
			continue
		}
		if !found || absInt(s.StartLine-nearLine) < absInt(best.StartLine-nearLine) {
			best = s
			found = true
		}
	}
	return best, found
}

// ReplaceSection swaps the lines covered by section with replacement.
// The section must come from a parse of content.
func ReplaceSection(content string, section domain.Section, replacement string) string {
	lines := strings.Split(content, "\n")
	if section.StartLine < 0 || section.EndLine >= len(lines) || section.StartLine > section.EndLine {
		return content
	}
	out := make([]string, 0, len(lines))
	out = append(out, lines[:section.StartLine]...)
	out = append(out, replacement)
	out = append(out, lines[section.EndLine+1:]...)
	return strings.Join(out, "\n")
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
