package composer

import (
	"fmt"
	"strings"

	"wingman/internal/provider"
)

// fileSeparator divides the other target files in the writer prompt.
const fileSeparator = "<FILE_SEPARATOR>"

const findSystemPrompt = `You are a seasoned full-stack software architect and technical lead.
Analyze the codebase and write a concise, high-level, end-to-end implementation plan for the user's request. Be professional, succinct and conversational.

You have these tools:
- semantic_search_codebase: finds code relevant to a query.
- read_file: returns the exact contents of a file. Use it for dependency manifests, configuration files and files whose path you already know.

Always gather information with the tools before recommending anything. Verify every new dependency against the manifests you read. Never assume a dependency is available and never suggest one the project already has. Explain briefly why before you call a tool, but do not mention tool names to the user. Do not write code or code examples.

**Project Details:**
%s

**RESPONSE FORMAT (follow exactly):**
[Brief acknowledgment of the request]

### Implementation Plan
[Numbered list of technical steps]

### Required File Changes
- File: ` + "`path/to/file`" + `
- Analysis: [single line description of the change]

### New Dependencies
- [package-name]@[version]

Rules:
- Each file entry is a File line followed by an Analysis line, no nested lists, path in backticks.
- Include every file that must be created or modified, including ones found through search.
- Only include the New Dependencies section when verified new packages are needed, list names only.
- Use GitHub markdown.

Would you like me to proceed with these changes?
%s
----

**Files previously worked on (check these first):**
%s

----

**Workspace Files:**
%s`

const findInputPrompt = `Use the following conversation, sorted oldest to newest, to guide your plan.
Focus on the latest ask but use the whole conversation as context, I might be building on a previous plan.
Do not pick files based on older requests that are out of context.

Conversation:
%s`

const writeSystemPrompt = `You are a senior full-stack developer focused on clean, maintainable code.

STRICT OUTPUT FORMAT:
` + "===FILE_START===" + `
Path: [Full file path]
Language: [Programming language]
Description: [One line description of changes]
Dependencies: [Comma separated new dependencies, or "none"]
Code:
[Complete file code]
` + "===FILE_END===" + `

Rules:
1. Output exactly one file block with all five fields and nothing outside it.
2. Path must be the path you were given.
3. Code must be the complete file, never a fragment or a diff.
4. Keep existing structure, comments and conventions. Make minimal, focused changes.
5. Do not remove code unless the change requires it.
6. Work within the existing dependencies where possible.
%s
------

Project details:
%s

------

Previous conversation and latest request:
%s

------

Files available to create or modify:
%s

%s

------

Remember: follow the output format, change only what the task needs, write the whole file.`

func formatConversation(messages []provider.Message) string {
	var b strings.Builder
	for _, m := range messages {
		if m.Role == provider.RoleTool || m.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return strings.TrimSpace(b.String())
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "None."
	}
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildFindPrompt(details string, state *PlanExecuteState, workspace []string) string {
	var previous []string
	for _, f := range state.Files.Items() {
		previous = append(previous, f.Path)
	}

	retry := ""
	if state.Error != "" {
		retry = fmt.Sprintf("\nThe previous attempt failed with: %q. Revise the plan so every listed file can be written in full.\n", state.Error)
	}
	return fmt.Sprintf(findSystemPrompt, details, retry, bulletList(previous), bulletList(workspace))
}

func buildWritePrompt(details, rules string, state *PlanExecuteState, current string, done []FileMetadata) string {
	var others []string
	for _, f := range state.Files.Items() {
		if f.Path == current {
			continue
		}
		others = append(others, fmt.Sprintf("%s\nFile: %s\nCode:\n%s", fileSeparator, f.Path, currentContent(f)))
	}

	processed := ""
	if len(done) > 0 {
		var b strings.Builder
		b.WriteString("Files already processed:\n")
		for _, f := range done {
			fmt.Fprintf(&b, "File: %s\nChanges: %s\n", f.Path, f.Description)
		}
		processed = strings.TrimRight(b.String(), "\n")
	}

	if rules != "" {
		rules = "\nUse the following rules to guide your code writing:\n\n" + rules + "\n"
	}

	return fmt.Sprintf(writeSystemPrompt,
		rules,
		details,
		formatConversation(state.Messages),
		strings.Join(others, "\n\n"+fileSeparator+"\n\n"),
		processed,
	)
}

func buildWriteInput(f FileMetadata) string {
	return fmt.Sprintf("Current file:\nFile:\n%s\n\nCode (blank if must be created):\n%s", f.Path, currentContent(f))
}

// currentContent is the newest known content of a file in the run.
func currentContent(f FileMetadata) string {
	if f.Code != "" {
		return f.Code
	}
	return f.Original
}
