// File: internal/plan/validator.go
package plan

import (
	"fmt"
	"strings"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

// InvalidDAGError is a structural validation failure. The planner retries or
// falls back when it sees one.
type InvalidDAGError struct {
	Issues []string
}

func (e *InvalidDAGError) Error() string {
	return fmt.Sprintf("dag invalid: %s", strings.Join(e.Issues, "; "))
}

// Validate enforces the structural invariants every executable DAG must
// satisfy: the entry point resolves, every edge endpoint resolves, every
// non-terminal node has at least one outgoing edge, at least one terminal
// exists, and every node is reachable from the entry.
func Validate(d *schemas.DAG) schemas.ValidationResult {
	var issues []string

	if len(d.Nodes) == 0 {
		return schemas.ValidationResult{Valid: false, Issues: []string{"dag has no nodes"}}
	}

	nodeIDs := make(map[string]*schemas.Node, len(d.Nodes))
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if n.ID == "" {
			issues = append(issues, "node with empty id")
			continue
		}
		if _, dup := nodeIDs[n.ID]; dup {
			issues = append(issues, fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		nodeIDs[n.ID] = n
	}

	if _, ok := nodeIDs[d.EntryPoint]; !ok {
		issues = append(issues, fmt.Sprintf("entry point %q is not a node", d.EntryPoint))
	}

	outgoing := make(map[string]int)
	for _, e := range d.Edges {
		if _, ok := nodeIDs[e.From]; !ok {
			issues = append(issues, fmt.Sprintf("edge from unknown node %q", e.From))
		}
		if _, ok := nodeIDs[e.To]; !ok {
			issues = append(issues, fmt.Sprintf("edge to unknown node %q", e.To))
		}
		outgoing[e.From]++
	}

	terminals := 0
	for id, n := range nodeIDs {
		if n.IsTerminal {
			terminals++
			continue
		}
		if outgoing[id] == 0 {
			issues = append(issues, fmt.Sprintf("non-terminal node %q has no outgoing edges", id))
		}
	}
	if terminals == 0 {
		issues = append(issues, "dag has no terminal node")
	}

	// Reachability: iterative closure from the entry.
	if _, ok := nodeIDs[d.EntryPoint]; ok {
		reached := map[string]bool{d.EntryPoint: true}
		frontier := []string{d.EntryPoint}
		for len(frontier) > 0 {
			cur := frontier[0]
			frontier = frontier[1:]
			for _, e := range d.Edges {
				if e.From == cur && !reached[e.To] {
					reached[e.To] = true
					frontier = append(frontier, e.To)
				}
			}
		}
		for id := range nodeIDs {
			if !reached[id] {
				issues = append(issues, fmt.Sprintf("node %q is unreachable from the entry", id))
			}
		}
	}

	return schemas.ValidationResult{Valid: len(issues) == 0, Issues: issues}
}
