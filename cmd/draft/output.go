package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ashureev/draftsmith/internal/document"
	"github.com/ashureev/draftsmith/internal/domain"
	"github.com/mattn/go-isatty"
	"github.com/moby/sys/atomicwriter"
	"github.com/pmezard/go-difflib/difflib"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// parseSelection parses a "from:to" rune range.
func parseSelection(s string) (int, int, error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid selection %q: want from:to", s)
	}
	from, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid selection start %q: %w", a, err)
	}
	to, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid selection end %q: %w", b, err)
	}
	return from, to, nil
}

// resolveSection finds a section by positional id first, then by title.
func resolveSection(content, ref string) (domain.Section, error) {
	if s, ok := document.Find(content, ref); ok {
		return s, nil
	}
	if s, ok := document.FindByTitle(content, ref, 0); ok {
		return s, nil
	}
	return domain.Section{}, fmt.Errorf("no section matches %q", ref)
}

// unifiedDiff renders the change from before to after. It returns the empty
// string when both are equal.
func unifiedDiff(name, before, after string) (string, error) {
	if before == after {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: name,
		ToFile:   name + " (proposed)",
		Context:  3,
	})
}

func writeSections(w io.Writer, sections []domain.Section) {
	if len(sections) == 0 {
		fmt.Fprintln(w, "no headings")
		return
	}
	for _, s := range sections {
		fmt.Fprintf(w, "%-12s %s%s  (lines %d-%d)\n",
			s.ID, strings.Repeat("  ", s.Level-1), s.Title, s.StartLine+1, s.EndLine+1)
	}
}

var errAborted = errors.New("aborted")

// confirm asks a yes/no question. Anything but y or yes is a no.
func confirm(in *bufio.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// writeFileKeepMode atomically replaces path, keeping its permission bits.
func writeFileKeepMode(path, content string) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return atomicwriter.WriteFile(path, []byte(content), mode)
}
