package parser

import (
	"regexp"
	"strings"
)

// Plan section headings produced by the planning model.
const (
	FileChangesHeading  = "### Required File Changes"
	DependenciesHeading = "### New Dependencies"
)

var (
	fileLineRe     = regexp.MustCompile(`^\s*(?:[-*•]\s*)?(?:\*\*)?File(?:\*\*)?:\s*(.+?)\s*$`)
	analysisLineRe = regexp.MustCompile(`^\s*(?:[-*•]\s*)?(?:\*\*)?Analysis(?:\*\*)?:\s*(.*)$`)
	bulletRe       = regexp.MustCompile(`^\s*(?:[-*•]|\d+\.)\s+(.+)$`)
	packageRe      = regexp.MustCompile("^`?(@?[A-Za-z0-9._-]+(?:/[A-Za-z0-9._-]+)*)`?")
)

// PlanFile is a target file named by a plan with the reason it changes.
type PlanFile struct {
	Path     string
	Analysis string
}

// Plan is the structured result of a planning response.
type Plan struct {
	Files        []PlanFile
	Dependencies []string
	// Prose is the response with the structured sections removed.
	Prose string
}

// PlanParser incrementally pulls the file-change and dependency sections out
// of a streaming plan. A section is only consumed once the next heading
// closes it, or on Finish.
type PlanParser struct {
	raw      strings.Builder
	work     string
	files    []PlanFile
	seen     map[string]bool
	deps     []string
	depsSeen map[string]bool
}

func NewPlanParser() *PlanParser {
	return &PlanParser{
		seen:     make(map[string]bool),
		depsSeen: make(map[string]bool),
	}
}

// Feed appends chunk and extracts any section it closed.
func (p *PlanParser) Feed(chunk string) {
	p.raw.WriteString(chunk)
	p.work += chunk
	p.extract(false)
}

// Finish extracts trailing sections and returns the plan.
func (p *PlanParser) Finish() Plan {
	p.extract(true)
	return Plan{
		Files:        append([]PlanFile(nil), p.files...),
		Dependencies: append([]string(nil), p.deps...),
		Prose:        strings.TrimSpace(p.work),
	}
}

// Raw returns the full unmodified response text.
func (p *PlanParser) Raw() string {
	return p.raw.String()
}

// Files returns the target files found so far.
func (p *PlanParser) Files() []PlanFile {
	return append([]PlanFile(nil), p.files...)
}

func (p *PlanParser) extract(final bool) {
	for {
		progressed := false
		if section, rest, ok := CutSection(p.work, FileChangesHeading, final); ok {
			p.work = rest
			p.addFiles(ParseFileChanges(section))
			progressed = true
		}
		if section, rest, ok := CutSection(p.work, DependenciesHeading, final); ok {
			p.work = rest
			p.addDeps(ParseDependencies(section))
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

func (p *PlanParser) addFiles(files []PlanFile) {
	for _, f := range files {
		if p.seen[f.Path] {
			continue
		}
		p.seen[f.Path] = true
		p.files = append(p.files, f)
	}
}

func (p *PlanParser) addDeps(deps []string) {
	for _, d := range deps {
		if p.depsSeen[d] {
			continue
		}
		p.depsSeen[d] = true
		p.deps = append(p.deps, d)
	}
}

// ParseFileChanges reads "File: `path`" entries, each optionally followed by
// an "Analysis:" line that may wrap onto continuation lines up to the next
// blank line. The first entry for a path wins.
func ParseFileChanges(section string) []PlanFile {
	var (
		files   []PlanFile
		current *PlanFile
		inText  bool
	)
	seen := make(map[string]bool)

	flush := func() {
		if current == nil {
			return
		}
		current.Analysis = strings.Join(strings.Fields(current.Analysis), " ")
		if current.Path != "" && !seen[current.Path] {
			seen[current.Path] = true
			files = append(files, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(section, "\n") {
		if m := fileLineRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &PlanFile{Path: CleanPath(m[1])}
			inText = false
			continue
		}
		if current == nil {
			continue
		}
		if m := analysisLineRe.FindStringSubmatch(line); m != nil {
			current.Analysis = m[1]
			inText = true
			continue
		}
		if strings.TrimSpace(line) == "" {
			inText = false
			continue
		}
		if inText {
			current.Analysis += " " + line
		}
	}
	flush()
	return files
}

// ParseDependencies reduces each bullet to its leading package name, keeping
// an optional @scope/ prefix.
func ParseDependencies(section string) []string {
	var deps []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(section, "\n") {
		m := bulletRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		dep, ok := PackageName(m[1])
		if !ok || seen[dep] {
			continue
		}
		seen[dep] = true
		deps = append(deps, dep)
	}
	return deps
}

// PackageName reduces a dependency mention such as "`lodash`@4.17.21" or
// "@types/node@20" to the bare package name. "none" is not a package.
func PackageName(s string) (string, bool) {
	m := packageRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	name := strings.TrimRight(m[1], ".")
	if name == "" || strings.EqualFold(name, "none") {
		return "", false
	}
	return name, true
}
