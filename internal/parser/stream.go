package parser

import (
	"strings"

	"wingman/internal/diffstat"
)

// Record delimiters emitted by the writer model.
const (
	FileStart = "===FILE_START==="
	FileEnd   = "===FILE_END==="
)

var recordFields = []Field{
	{Label: "Path"},
	{Label: "Language"},
	{Label: "Description"},
	{Label: "Dependencies"},
	{Label: "Code", Multiline: true},
}

// Record is one file edit read from a closed FILE_START/FILE_END block.
type Record struct {
	Path         string
	Language     string
	Description  string
	Dependencies []string
	Code         string
	Diff         string
}

// Baseline returns the current content of path, or "" if it cannot be read.
type Baseline func(path string) string

// StreamParser accumulates chunks of a single file's generation and emits the
// record once its end delimiter arrives. Use one parser per target file.
type StreamParser struct {
	buf      strings.Builder
	closed   bool
	baseline Baseline
}

// NewStreamParser creates a parser. baseline may be nil, in which case every
// file is diffed as new.
func NewStreamParser(baseline Baseline) *StreamParser {
	return &StreamParser{baseline: baseline}
}

// Parse appends chunk and returns the record if this chunk closed it.
// Every later call returns nil.
func (p *StreamParser) Parse(chunk string) *Record {
	if p.closed {
		return nil
	}
	p.buf.WriteString(chunk)

	section, _, ok := Cut(p.buf.String(), FileStart, FileEnd)
	if !ok {
		return nil
	}
	p.closed = true

	rec := ParseRecord(section)
	if rec.Code != "" && rec.Diff == "" {
		original := ""
		if p.baseline != nil {
			original = p.baseline(rec.Path)
		}
		rec.Diff = diffstat.Compute(original, rec.Code, rec.Path)
	}
	return rec
}

// Closed reports whether the record has been emitted.
func (p *StreamParser) Closed() bool {
	return p.closed
}

// Buffer returns everything received so far.
func (p *StreamParser) Buffer() string {
	return p.buf.String()
}

// ParseRecord extracts the labeled fields of one file block. Missing fields
// are left empty.
func ParseRecord(section string) *Record {
	v := ExtractFields(section, recordFields...)

	var deps []string
	seen := make(map[string]bool)
	for _, d := range strings.Split(v["Dependencies"], ",") {
		name, ok := PackageName(d)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		deps = append(deps, name)
	}

	return &Record{
		Path:         CleanPath(v["Path"]),
		Language:     v["Language"],
		Description:  v["Description"],
		Dependencies: deps,
		Code:         stripFence(v["Code"]),
	}
}

// stripFence removes a markdown code fence wrapped around the whole body.
func stripFence(code string) string {
	if !strings.HasPrefix(code, "```") || !strings.HasSuffix(code, "```") {
		return code
	}
	nl := strings.IndexByte(code, '\n')
	if nl < 0 {
		return code
	}
	inner := strings.TrimSuffix(code[nl+1:], "```")
	return strings.TrimSpace(inner)
}
