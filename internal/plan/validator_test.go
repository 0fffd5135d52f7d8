package plan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

func linearDAG() *schemas.DAG {
	return &schemas.DAG{
		ID:         "d",
		EntryPoint: "a",
		Nodes: []schemas.Node{
			{ID: "a", Action: schemas.BrowserAction{Type: schemas.ActionNavigate, Target: "https://e.com", Description: "go"}},
			{ID: "b", Action: schemas.BrowserAction{Type: schemas.ActionWait, Description: "finish"}, IsTerminal: true, TerminalResult: schemas.TerminalSuccess},
		},
		Edges: []schemas.Edge{
			{From: "a", To: "b", Condition: schemas.BranchCondition{Type: schemas.CondDefault}, Priority: 10},
		},
	}
}

func TestValidateAcceptsLinearDAG(t *testing.T) {
	res := Validate(linearDAG())
	assert.True(t, res.Valid, "issues: %v", res.Issues)
}

func TestValidateRejectsMissingEntry(t *testing.T) {
	d := linearDAG()
	d.EntryPoint = "nope"

	res := Validate(d)
	require.False(t, res.Valid)
	assert.Contains(t, strings.Join(res.Issues, " "), "entry point")
}

func TestValidateRejectsDanglingEdge(t *testing.T) {
	d := linearDAG()
	d.Edges = append(d.Edges, schemas.Edge{From: "a", To: "ghost", Condition: schemas.BranchCondition{Type: schemas.CondDefault}})

	res := Validate(d)
	require.False(t, res.Valid)
	assert.Contains(t, strings.Join(res.Issues, " "), "unknown node")
}

func TestValidateRejectsDeadEndNonTerminal(t *testing.T) {
	d := linearDAG()
	d.Nodes[1].IsTerminal = false

	res := Validate(d)
	require.False(t, res.Valid)
	joined := strings.Join(res.Issues, " ")
	assert.Contains(t, joined, "no outgoing edges")
	assert.Contains(t, joined, "no terminal")
}

func TestValidateRejectsUnreachableNode(t *testing.T) {
	d := linearDAG()
	d.Nodes = append(d.Nodes, schemas.Node{
		ID:             "island",
		Action:         schemas.BrowserAction{Type: schemas.ActionWait, Description: "stranded"},
		IsTerminal:     true,
		TerminalResult: schemas.TerminalError,
	})

	res := Validate(d)
	require.False(t, res.Valid)
	assert.Contains(t, strings.Join(res.Issues, " "), "unreachable")
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	d := linearDAG()
	d.Nodes = append(d.Nodes, d.Nodes[0])

	res := Validate(d)
	require.False(t, res.Valid)
	assert.Contains(t, strings.Join(res.Issues, " "), "duplicate")
}

func TestValidateRejectsEmptyDAG(t *testing.T) {
	res := Validate(&schemas.DAG{})
	assert.False(t, res.Valid)
}
