// Package parser turns semi-structured model output into typed records.
//
// The primitives here are pure functions: Cut and CutSection remove a
// delimited region from a buffer, ExtractFields reads labeled values out of
// it. The stream and plan parsers are built on top of them.
package parser

import "strings"

// Cut finds the first region enclosed by start and end and returns it along
// with the buffer minus the region and both delimiters. ok is false while
// either delimiter is still missing.
func Cut(buffer, start, end string) (section, remainder string, ok bool) {
	i := strings.Index(buffer, start)
	if i < 0 {
		return "", buffer, false
	}
	rest := buffer[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return "", buffer, false
	}
	return rest[:j], buffer[:i] + rest[j+len(end):], true
}

// CutSection extracts a markdown section that starts with a line beginning
// with heading. The section runs until the next line starting with "###".
// Unless final is set, a section with no following heading is considered
// still streaming and is left in place.
func CutSection(buffer, heading string, final bool) (section, remainder string, ok bool) {
	start := indexLinePrefix(buffer, heading, 0)
	if start < 0 {
		return "", buffer, false
	}

	nl := strings.IndexByte(buffer[start:], '\n')
	if nl < 0 {
		if !final {
			return "", buffer, false
		}
		return "", buffer[:start], true
	}
	bodyStart := start + nl + 1

	end := indexLinePrefix(buffer, "###", bodyStart)
	if end < 0 {
		if !final {
			return "", buffer, false
		}
		return buffer[bodyStart:], buffer[:start], true
	}
	return buffer[bodyStart:end], buffer[:start] + buffer[end:], true
}

// indexLinePrefix returns the offset of the first line at or after from that
// begins with prefix, ignoring leading spaces.
func indexLinePrefix(s, prefix string, from int) int {
	for i := from; i < len(s); {
		lineEnd := strings.IndexByte(s[i:], '\n')
		line := s[i:]
		if lineEnd >= 0 {
			line = s[i : i+lineEnd]
		}
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, prefix) {
			return i + len(line) - len(trimmed)
		}
		if lineEnd < 0 {
			break
		}
		i += lineEnd + 1
	}
	return -1
}

// Field describes a labeled value such as "Path: a.ts". A Multiline field
// takes everything after its label line; single-line fields are only looked
// up before the first multiline label.
type Field struct {
	Label     string
	Multiline bool
}

// ExtractFields reads the labeled values from text. Missing fields map to "".
func ExtractFields(text string, fields ...Field) map[string]string {
	values := make(map[string]string, len(fields))
	lines := strings.Split(text, "\n")

	header := len(lines)
	for _, f := range fields {
		values[f.Label] = ""
		if !f.Multiline {
			continue
		}
		for i, line := range lines {
			if rest, ok := labelValue(line, f.Label); ok {
				if i < header {
					header = i
				}
				body := strings.Join(lines[i+1:], "\n")
				if strings.TrimSpace(rest) != "" {
					body = rest + "\n" + body
				}
				values[f.Label] = strings.TrimSpace(body)
				break
			}
		}
	}

	for _, f := range fields {
		if f.Multiline {
			continue
		}
		for _, line := range lines[:header] {
			if v, ok := labelValue(line, f.Label); ok {
				values[f.Label] = strings.TrimSpace(v)
				break
			}
		}
	}
	return values
}

func labelValue(line, label string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, label+":") {
		return "", false
	}
	return trimmed[len(label)+1:], true
}

// CleanPath strips whitespace, backticks and surrounding quotes or emphasis
// from a path.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "`", "")
	return strings.Trim(p, "\"'* \t")
}
