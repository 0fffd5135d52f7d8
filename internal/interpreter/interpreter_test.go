package interpreter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/browser"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/plan"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/policy"
)

func docsPage() *browser.MockPage {
	return &browser.MockPage{
		URL:         "https://example.com",
		Title:       "Example",
		VisibleText: "Welcome to the example documentation.",
		Elements: []schemas.Element{
			{Tag: "h1", Text: "Example"},
			{Tag: "a", Text: "More", Attributes: map[string]string{"href": "/more"}},
		},
		Data: map[string]interface{}{
			"title":   "Example",
			"content": "Welcome to the example documentation.",
		},
	}
}

func extractIntent() *schemas.Intent {
	return &schemas.Intent{
		Goal:           "Read the docs on example.com",
		TaskType:       schemas.TaskExtract,
		AllowedDomains: []string{"example.com", "www.example.com"},
		AllowedActions: []schemas.ActionType{
			schemas.ActionNavigate, schemas.ActionScroll, schemas.ActionExtract, schemas.ActionScreenshot,
		},
		MaxDepth:  5,
		TimeoutMs: 60_000,
	}
}

func interactIntent() *schemas.Intent {
	in := extractIntent()
	in.TaskType = schemas.TaskInteract
	in.AllowedActions = []schemas.ActionType{
		schemas.ActionNavigate, schemas.ActionClick, schemas.ActionScroll,
		schemas.ActionTypeText, schemas.ActionExtract,
	}
	return in
}

func newInterp(t *testing.T, in *schemas.Intent, adapter schemas.BrowserAdapter, opts Options) *Interpreter {
	t.Helper()
	return New(adapter, policy.New(in, zap.NewNop()), opts, zap.NewNop())
}

// A full template-planned extract session runs to completion against the
// scripted page, collecting the extraction targets along the way.
func TestExecuteExtractSessionCompletes(t *testing.T) {
	in := extractIntent()
	dag := plan.BuildTemplate(in, plan.TemplateOptions{})
	require.True(t, plan.Validate(dag).Valid)

	adapter := browser.NewMockAdapter(docsPage())
	it := newInterp(t, in, adapter, Options{StrictOutcomes: true, Trace: true})

	res := it.Execute(context.Background(), dag)

	require.Equal(t, schemas.StatusComplete, res.Status, "reason: %s", res.Reason)
	assert.Equal(t, "Example", res.Data["title"])
	assert.NotEmpty(t, res.Trace)
	assert.GreaterOrEqual(t, res.DurationMs, int64(0))

	log := adapter.Log()
	assert.Contains(t, log[0], "navigate https://example.com")
}

// Snapshots are minted as observations arrive; the ref manager tracks the
// session's element state.
func TestExecuteCreatesSnapshots(t *testing.T) {
	in := extractIntent()
	dag := plan.BuildTemplate(in, plan.TemplateOptions{})

	it := newInterp(t, in, browser.NewMockAdapter(docsPage()), Options{Trace: true})
	res := it.Execute(context.Background(), dag)

	require.Equal(t, schemas.StatusComplete, res.Status, "reason: %s", res.Reason)
	assert.Greater(t, it.RefManager().CurrentVersion(), uint32(0))
}

// A policy deny surfaces as blocked, before the adapter is touched.
func TestExecuteBlocksDeniedAction(t *testing.T) {
	in := interactIntent()
	dag := &schemas.DAG{
		ID:         "d",
		Intent:     in,
		EntryPoint: "pay",
		Nodes: []schemas.Node{
			{ID: "pay", Action: schemas.BrowserAction{Type: schemas.ActionClick, Target: "#pay", Description: "Pay Now"}},
			{ID: "end", Action: schemas.BrowserAction{Type: schemas.ActionWait, Description: "finish"}, IsTerminal: true, TerminalResult: schemas.TerminalSuccess},
		},
		Edges: []schemas.Edge{{From: "pay", To: "end", Condition: schemas.BranchCondition{Type: schemas.CondDefault}, Priority: 10}},
	}

	adapter := browser.NewMockAdapter(docsPage())
	it := newInterp(t, in, adapter, Options{Trace: true})

	res := it.Execute(context.Background(), dag)

	require.Equal(t, schemas.StatusBlocked, res.Status)
	assert.Contains(t, res.Reason, "payment")
	assert.Empty(t, adapter.Log(), "the adapter must not see a blocked action")
}

// A node violating its own domain constraint is blocked before execution.
func TestExecuteBlocksConstraintViolation(t *testing.T) {
	in := extractIntent()
	dag := &schemas.DAG{
		ID:         "d",
		Intent:     in,
		EntryPoint: "go",
		Nodes: []schemas.Node{
			{
				ID:     "go",
				Action: schemas.BrowserAction{Type: schemas.ActionNavigate, Target: "https://outside.org", Description: "leave"},
				Constraints: []schemas.Constraint{
					{Type: schemas.ConstraintDomain, Domains: []string{"example.com"}},
				},
			},
			{ID: "end", Action: schemas.BrowserAction{Type: schemas.ActionWait, Description: "finish"}, IsTerminal: true, TerminalResult: schemas.TerminalSuccess},
		},
		Edges: []schemas.Edge{{From: "go", To: "end", Condition: schemas.BranchCondition{Type: schemas.CondDefault}, Priority: 10}},
	}

	it := newInterp(t, in, browser.NewMockAdapter(docsPage()), Options{})
	res := it.Execute(context.Background(), dag)

	require.Equal(t, schemas.StatusBlocked, res.Status)
	assert.Contains(t, res.Reason, "domain constraint")
}

// A required expected-outcome mismatch aborts under strict mode and is
// tolerated otherwise.
func TestExecuteStrictOutcomeMismatch(t *testing.T) {
	in := extractIntent()
	mkDAG := func() *schemas.DAG {
		return &schemas.DAG{
			ID:         "d",
			Intent:     in,
			EntryPoint: "go",
			Nodes: []schemas.Node{
				{
					ID:     "go",
					Action: schemas.BrowserAction{Type: schemas.ActionNavigate, Target: "https://example.com", Description: "open"},
					ExpectedOutcomes: []schemas.ExpectedOutcome{
						{Type: schemas.CondElementPresent, Value: "input[type=password]", Required: true, Description: "login form shown"},
					},
				},
				{ID: "end", Action: schemas.BrowserAction{Type: schemas.ActionWait, Description: "finish"}, IsTerminal: true, TerminalResult: schemas.TerminalSuccess},
			},
			Edges: []schemas.Edge{{From: "go", To: "end", Condition: schemas.BranchCondition{Type: schemas.CondDefault}, Priority: 10}},
		}
	}

	strict := newInterp(t, in, browser.NewMockAdapter(docsPage()), Options{StrictOutcomes: true})
	res := strict.Execute(context.Background(), mkDAG())
	require.Equal(t, schemas.StatusAborted, res.Status)
	assert.Contains(t, res.Reason, "required outcome")

	lax := newInterp(t, in, browser.NewMockAdapter(docsPage()), Options{StrictOutcomes: false})
	res = lax.Execute(context.Background(), mkDAG())
	assert.Equal(t, schemas.StatusComplete, res.Status, "reason: %s", res.Reason)
}

// Branch selection walks edges in priority order and takes the first
// condition that holds.
func TestExecuteBranchSelection(t *testing.T) {
	in := extractIntent()
	missing := docsPage()
	missing.VisibleText = "404 page not found"

	dag := &schemas.DAG{
		ID:         "d",
		Intent:     in,
		EntryPoint: "go",
		Nodes: []schemas.Node{
			{ID: "go", Action: schemas.BrowserAction{Type: schemas.ActionNavigate, Target: "https://example.com", Description: "open"}},
			{ID: "missing", Action: schemas.BrowserAction{Type: schemas.ActionWait, Description: "stop: page missing"}, IsTerminal: true, TerminalResult: schemas.TerminalError},
			{ID: "end", Action: schemas.BrowserAction{Type: schemas.ActionWait, Description: "finish"}, IsTerminal: true, TerminalResult: schemas.TerminalSuccess},
		},
		Edges: []schemas.Edge{
			{From: "go", To: "end", Condition: schemas.BranchCondition{Type: schemas.CondDefault}, Priority: 10},
			{From: "go", To: "missing", Condition: schemas.BranchCondition{Type: schemas.CondContentMatch, Value: "404|page not found"}, Priority: 0},
		},
	}

	it := newInterp(t, in, browser.NewMockAdapter(missing), Options{Trace: true})
	res := it.Execute(context.Background(), dag)

	assert.Equal(t, schemas.StatusError, res.Status)
	assert.Contains(t, res.Reason, "page missing")
}

// Scenario: content steers execution onto a domain the session never
// approved; the steering detector aborts.
func TestExecuteDetectsBranchSteering(t *testing.T) {
	in := interactIntent()
	landing := docsPage()
	landing.ClickRoutes = map[string]string{"a.offer": "https://evil.org/trap"}
	trap := &browser.MockPage{
		URL:         "https://evil.org/trap",
		Title:       "Totally Legit",
		VisibleText: "You won a prize",
	}

	dag := &schemas.DAG{
		ID:         "d",
		Intent:     in,
		EntryPoint: "go",
		Nodes: []schemas.Node{
			{ID: "go", Action: schemas.BrowserAction{Type: schemas.ActionNavigate, Target: "https://example.com", Description: "open"}},
			{ID: "open_offer", Action: schemas.BrowserAction{Type: schemas.ActionClick, Target: "a.offer", Description: "open the offer"}},
			{ID: "read", Action: schemas.BrowserAction{Type: schemas.ActionExtract, Description: "read the page"}},
			{ID: "end", Action: schemas.BrowserAction{Type: schemas.ActionWait, Description: "finish"}, IsTerminal: true, TerminalResult: schemas.TerminalSuccess},
		},
		Edges: []schemas.Edge{
			{From: "go", To: "open_offer", Condition: schemas.BranchCondition{Type: schemas.CondDefault}, Priority: 10},
			{From: "open_offer", To: "read", Condition: schemas.BranchCondition{Type: schemas.CondDefault}, Priority: 10},
			{From: "read", To: "end", Condition: schemas.BranchCondition{Type: schemas.CondDefault}, Priority: 10},
		},
	}

	it := newInterp(t, in, browser.NewMockAdapter(landing, trap), Options{Trace: true})
	res := it.Execute(context.Background(), dag)

	require.Equal(t, schemas.StatusAborted, res.Status)
	assert.Contains(t, res.Reason, "evil.org")
}

// Deadline expiry yields timeout, not error.
func TestExecuteTimeout(t *testing.T) {
	in := extractIntent()
	in.TimeoutMs = 30

	dag := &schemas.DAG{
		ID:         "d",
		Intent:     in,
		EntryPoint: "go",
		Nodes: []schemas.Node{
			{ID: "go", Action: schemas.BrowserAction{Type: schemas.ActionNavigate, Target: "https://example.com", Description: "open"}},
			{ID: "stall", Action: schemas.BrowserAction{Type: schemas.ActionWait, Value: "5000", Description: "wait a long time"}},
			{ID: "end", Action: schemas.BrowserAction{Type: schemas.ActionWait, Description: "finish"}, IsTerminal: true, TerminalResult: schemas.TerminalSuccess},
		},
		Edges: []schemas.Edge{
			{From: "go", To: "stall", Condition: schemas.BranchCondition{Type: schemas.CondDefault}, Priority: 10},
			{From: "stall", To: "end", Condition: schemas.BranchCondition{Type: schemas.CondDefault}, Priority: 10},
		},
	}

	// Wait is in the extract alphabet only for monitor tasks; widen it here
	// so the stall node is policy-clean and the deadline is what stops us.
	in.AllowedActions = append(in.AllowedActions, schemas.ActionWait)

	it := newInterp(t, in, browser.NewMockAdapter(docsPage()), Options{})
	res := it.Execute(context.Background(), dag)

	assert.Equal(t, schemas.StatusTimeout, res.Status)
}

// An adapter failure maps to error with the cause in the reason.
func TestExecuteAdapterError(t *testing.T) {
	in := extractIntent()
	adapter := browser.NewMockAdapter(docsPage())
	adapter.FailNavigate = "connection refused"

	dag := plan.BuildTemplate(in, plan.TemplateOptions{})
	it := newInterp(t, in, adapter, Options{})

	res := it.Execute(context.Background(), dag)

	require.Equal(t, schemas.StatusError, res.Status)
	assert.Contains(t, res.Reason, "connection refused")
}

// A node with no satisfiable branch is an error, not a silent stop.
func TestExecuteNoValidBranch(t *testing.T) {
	in := extractIntent()
	dag := &schemas.DAG{
		ID:         "d",
		Intent:     in,
		EntryPoint: "go",
		Nodes: []schemas.Node{
			{ID: "go", Action: schemas.BrowserAction{Type: schemas.ActionNavigate, Target: "https://example.com", Description: "open"}},
			{ID: "end", Action: schemas.BrowserAction{Type: schemas.ActionWait, Description: "finish"}, IsTerminal: true, TerminalResult: schemas.TerminalSuccess},
		},
		Edges: []schemas.Edge{
			{From: "go", To: "end", Condition: schemas.BranchCondition{Type: schemas.CondContentMatch, Value: "never-on-this-page"}, Priority: 0},
		},
	}

	it := newInterp(t, in, browser.NewMockAdapter(docsPage()), Options{})
	res := it.Execute(context.Background(), dag)

	require.Equal(t, schemas.StatusError, res.Status)
	assert.Contains(t, res.Reason, "no valid branch")
}

// Disabling the trace drops step records but changes nothing else.
func TestExecuteTraceDisabled(t *testing.T) {
	in := extractIntent()
	dag := plan.BuildTemplate(in, plan.TemplateOptions{})

	it := newInterp(t, in, browser.NewMockAdapter(docsPage()), Options{Trace: false})
	res := it.Execute(context.Background(), dag)

	require.Equal(t, schemas.StatusComplete, res.Status, "reason: %s", res.Reason)
	assert.Empty(t, res.Trace)
}

func TestTerminalStatusMapping(t *testing.T) {
	assert.Equal(t, schemas.StatusComplete, terminalStatus(schemas.TerminalSuccess))
	assert.Equal(t, schemas.StatusAborted, terminalStatus(schemas.TerminalAbort))
	assert.Equal(t, schemas.StatusError, terminalStatus(schemas.TerminalError))
}
