package composer

// Node names of the workflow graph.
const (
	NodeFind  = "find"
	NodeWrite = "write"
	NodeDone  = "done"
)

type resultKind int

const (
	kindContinue resultKind = iota
	kindRedirect
	kindFatal
)

// Result is what a node hands back to the graph driver.
type Result struct {
	kind  resultKind
	next  string
	patch Patch
	err   error
}

// Continue merges patch and follows the default edge.
func Continue(patch Patch) Result {
	return Result{kind: kindContinue, patch: patch}
}

// Redirect merges patch and jumps to node.
func Redirect(node string, patch Patch) Result {
	return Result{kind: kindRedirect, next: node, patch: patch}
}

// Fatal ends the run with err.
func Fatal(err error) Result {
	return Result{kind: kindFatal, err: err}
}

func (r Result) Err() error { return r.err }

// Next returns the redirect target, or "" for other results.
func (r Result) Next() string { return r.next }

func (r Result) Patch() Patch { return r.patch }
