package extensions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/m1gwings/treedrawer/tree"
	pumped "github.com/pumped-fn/go-pumped"
)

// GraphDebugExtension renders the failed atom's dependency subtree as an
// ASCII tree and logs it alongside the error, so a resolution failure deep
// in a dependency chain doesn't require a debugger session to locate.
//
// Usage:
//
//	ext := extensions.NewGraphDebugExtension(slog.Default())
//	scope := pumped.CreateScope(pumped.WithExtension(ext))
type GraphDebugExtension struct {
	pumped.BaseExtension

	mu       sync.Mutex
	resolved map[pumped.AnyAtom]bool
	failed   map[pumped.AnyAtom]error

	logger *slog.Logger
}

// NewGraphDebugExtension creates a graph-debug extension logging through
// logger (slog.Default() if nil).
func NewGraphDebugExtension(logger *slog.Logger) *GraphDebugExtension {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphDebugExtension{
		BaseExtension: pumped.NewBaseExtension("graph-debug"),
		resolved:      make(map[pumped.AnyAtom]bool),
		failed:        make(map[pumped.AnyAtom]error),
		logger:        logger,
	}
}

func (e *GraphDebugExtension) Wrap(ctx context.Context, next func() (any, error), op *pumped.Operation) (any, error) {
	result, err := next()

	if op.Kind == pumped.OpResolve && op.Atom != nil {
		e.mu.Lock()
		if err == nil {
			e.resolved[op.Atom] = true
			delete(e.failed, op.Atom)
		} else {
			e.failed[op.Atom] = err
			delete(e.resolved, op.Atom)
		}
		e.mu.Unlock()
	}

	return result, err
}

// OnError logs the failing atom's dependency subtree alongside the error.
func (e *GraphDebugExtension) OnError(err error, op *pumped.Operation, scope *pumped.Scope) {
	if op.Atom == nil {
		e.logger.Error("operation failed", "kind", op.Kind, "error", err)
		return
	}

	graph := e.renderTree(op.Atom)
	e.logger.Error("atom resolution failed",
		"atom", op.Atom.Label(),
		"error", err.Error(),
		"dependency_tree", graph,
	)
}

func (e *GraphDebugExtension) renderTree(root pumped.AnyAtom) string {
	t := e.buildNode(root, make(map[pumped.AnyAtom]bool))
	if t == nil {
		return "(no tree)"
	}
	return t.String()
}

func (e *GraphDebugExtension) buildNode(a pumped.AnyAtom, visited map[pumped.AnyAtom]bool) *tree.Tree {
	if visited[a] {
		return tree.NewTree(tree.NodeString(e.label(a) + " (cycle)"))
	}
	visited[a] = true
	defer delete(visited, a)

	node := tree.NewTree(tree.NodeString(e.label(a)))

	children := pumped.DependencyAtoms(a.Deps())
	sort.Slice(children, func(i, j int) bool { return children[i].Label() < children[j].Label() })

	for _, child := range children {
		childTree := e.buildNode(child, visited)
		attachChild(node, childTree)
	}
	return node
}

func attachChild(parent *tree.Tree, child *tree.Tree) {
	newChild := parent.AddChild(child.Val())
	for _, grandchild := range child.Children() {
		attachChild(newChild, grandchild)
	}
}

func (e *GraphDebugExtension) label(a pumped.AnyAtom) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := a.Label()
	if err, failed := e.failed[a]; failed {
		return fmt.Sprintf("%s [failed: %v]", name, err)
	}
	if e.resolved[a] {
		return name + " [resolved]"
	}
	return name + " [pending]"
}
