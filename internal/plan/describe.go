// File: internal/plan/describe.go
package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

// Describe renders a plan as a numbered, human-readable walk for
// confirmation UIs. Steps are listed in BFS order from the entry; each step
// names its outgoing branches, and terminals are annotated with their
// result.
func Describe(d *schemas.DAG) string {
	var b strings.Builder
	if d.Intent != nil {
		fmt.Fprintf(&b, "Plan for: %s\n", d.Intent.Goal)
	}

	order := bfsOrder(d)
	for i, id := range order {
		node, ok := d.NodeByID(id)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%d. %s", i+1, describeAction(node.Action))
		if node.IsTerminal {
			fmt.Fprintf(&b, " [terminal: %s]", node.TerminalResult)
		}
		b.WriteString("\n")

		edges := d.OutgoingEdges(id)
		sort.SliceStable(edges, func(a, c int) bool { return edges[a].Priority < edges[c].Priority })
		for _, e := range edges {
			fmt.Fprintf(&b, "   - if %s -> %s\n", describeCondition(e.Condition), e.To)
		}
	}
	return b.String()
}

// bfsOrder walks the DAG breadth-first from the entry, edges in priority
// order, and returns the visit order.
func bfsOrder(d *schemas.DAG) []string {
	visited := map[string]bool{d.EntryPoint: true}
	order := []string{d.EntryPoint}
	frontier := []string{d.EntryPoint}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]

		edges := d.OutgoingEdges(cur)
		sort.SliceStable(edges, func(i, j int) bool { return edges[i].Priority < edges[j].Priority })
		for _, e := range edges {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			order = append(order, e.To)
			frontier = append(frontier, e.To)
		}
	}
	return order
}

func describeAction(a schemas.BrowserAction) string {
	if a.Description != "" {
		return a.Description
	}
	switch a.Type {
	case schemas.ActionNavigate:
		return "navigate to " + a.Target
	case schemas.ActionClick:
		return "click " + a.Target
	case schemas.ActionTypeText:
		return "type into " + a.Target
	case schemas.ActionScroll:
		return "scroll " + a.Target
	case schemas.ActionExtract:
		return "extract data"
	case schemas.ActionScreenshot:
		return "take a screenshot"
	case schemas.ActionWait:
		return "wait"
	}
	return string(a.Type)
}

func describeCondition(c schemas.BranchCondition) string {
	if c.Description != "" {
		return c.Description
	}
	switch c.Type {
	case schemas.CondElementPresent:
		return fmt.Sprintf("element %q present", c.Value)
	case schemas.CondElementAbsent:
		return fmt.Sprintf("element %q absent", c.Value)
	case schemas.CondURLMatch:
		return fmt.Sprintf("url matches %q", c.Value)
	case schemas.CondContentMatch:
		return fmt.Sprintf("content matches %q", c.Value)
	case schemas.CondDefault:
		return "otherwise"
	}
	return string(c.Type)
}
