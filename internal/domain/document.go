package domain

// Section is a heading-delimited region of a document. IDs are positional
// and only valid for the parse pass that produced them.
type Section struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Level     int    `json:"level"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Content   string `json:"content"`
}

// LineCount returns the number of lines the section spans.
func (s Section) LineCount() int {
	return s.EndLine - s.StartLine + 1
}

// VersionMeta is the manifest projection of a snapshot. Timestamp is in
// milliseconds since the Unix epoch.
type VersionMeta struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Timestamp int64  `json:"timestamp"`
	Hash      string `json:"hash"`
}

// Version is an immutable snapshot including its content.
type Version struct {
	VersionMeta
	Content string `json:"content"`
}
