package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_IntroAndBody(t *testing.T) {
	sections := Parse("# Intro\ntext\n# Body\nmore")
	require.Len(t, sections, 2)

	assert.Equal(t, "section-0", sections[0].ID)
	assert.Equal(t, "Intro", sections[0].Title)
	assert.Equal(t, 1, sections[0].Level)
	assert.Equal(t, 0, sections[0].StartLine)
	assert.Equal(t, 1, sections[0].EndLine)
	assert.Equal(t, "# Intro\ntext", sections[0].Content)

	assert.Equal(t, "section-1", sections[1].ID)
	assert.Equal(t, "Body", sections[1].Title)
	assert.Equal(t, 2, sections[1].StartLine)
	assert.Equal(t, 3, sections[1].EndLine)
	assert.Equal(t, "# Body\nmore", sections[1].Content)
}

func TestParse_NoHeadings(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("plain text\nwith #hashtag\nand ####### seven"))
	assert.Empty(t, Parse("#\n##   \n#nospace"))
}

func TestParse_EveryLineHeading(t *testing.T) {
	doc := "# a\n## b\n### c\n#### d\n##### e\n###### f"
	sections := Parse(doc)
	require.Len(t, sections, 6)
	for i, s := range sections {
		assert.Equal(t, i, s.StartLine)
		assert.Equal(t, i, s.EndLine)
		assert.Equal(t, 1, s.LineCount())
		assert.Equal(t, i+1, s.Level)
	}
}

func TestParse_LeadingTextIsNotASection(t *testing.T) {
	sections := Parse("preface\n\n## First\nbody")
	require.Len(t, sections, 1)
	assert.Equal(t, 2, sections[0].StartLine)
	assert.Equal(t, "First", sections[0].Title)
	assert.Equal(t, 2, sections[0].Level)
}

func TestParse_TrimsTitleWhitespace(t *testing.T) {
	sections := Parse("#\tTabbed title  \r\nbody")
	require.Len(t, sections, 1)
	assert.Equal(t, "Tabbed title", sections[0].Title)
}

func TestParse_ContiguousAndOrdered(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 3000; i++ {
		switch i % 7 {
		case 0:
			b.WriteString("## heading\n")
		case 3:
			b.WriteString("# top\n")
		default:
			b.WriteString("some prose line\n")
		}
	}
	doc := b.String()
	lines := strings.Split(doc, "\n")
	sections := Parse(doc)
	require.NotEmpty(t, sections)

	for i, s := range sections {
		assert.LessOrEqual(t, s.StartLine, s.EndLine)
		if i > 0 {
			assert.Equal(t, sections[i-1].EndLine+1, s.StartLine, "section %d not contiguous", i)
		}
	}
	assert.Equal(t, len(lines)-1, sections[len(sections)-1].EndLine)
}

func TestParse_Idempotent(t *testing.T) {
	doc := "# One\na\n## Two\nb\n"
	assert.Equal(t, Parse(doc), Parse(doc))
}

func TestFind(t *testing.T) {
	doc := "# One\na\n# Two\nb"
	s, ok := Find(doc, "section-1")
	require.True(t, ok)
	assert.Equal(t, "Two", s.Title)

	_, ok = Find(doc, "section-9")
	assert.False(t, ok)
}

func TestFindByTitle_PrefersNearest(t *testing.T) {
	doc := "# Notes\na\n# Other\nb\n# Notes\nc"
	s, ok := FindByTitle(doc, "Notes", 5)
	require.True(t, ok)
	assert.Equal(t, 4, s.StartLine)

	s, ok = FindByTitle(doc, "Notes", 0)
	require.True(t, ok)
	assert.Equal(t, 0, s.StartLine)

	_, ok = FindByTitle(doc, "Missing", 0)
	assert.False(t, ok)
}

func TestReplaceSection(t *testing.T) {
	doc := "# Intro\ntext\n# Body\nmore"
	sections := Parse(doc)
	require.Len(t, sections, 2)

	got := ReplaceSection(doc, sections[0], "# Intro\nshorter\nand longer")
	assert.Equal(t, "# Intro\nshorter\nand longer\n# Body\nmore", got)

	got = ReplaceSection(doc, sections[1], "# Body\nrewritten")
	assert.Equal(t, "# Intro\ntext\n# Body\nrewritten", got)
}

func TestHash(t *testing.T) {
	h := Hash("draft one")
	assert.Len(t, h, HashLength)
	assert.Equal(t, h, Hash("draft one"))
	assert.NotEqual(t, h, Hash("draft two"))
	// sha256("") prefix
	assert.Equal(t, "e3b0c44298fc1c14", Hash(""))
}
