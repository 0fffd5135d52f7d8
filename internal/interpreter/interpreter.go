// File: internal/interpreter/interpreter.go
package interpreter

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/policy"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/refs"
)

// Options tunes the interpreter.
type Options struct {
	// StrictOutcomes aborts on a required expected-outcome mismatch.
	StrictOutcomes bool
	// Trace collects per-step records.
	Trace bool
	// MaxSteps is a hard iteration ceiling independent of the timeout.
	// Zero means the default.
	MaxSteps int
	// SnapshotHistory bounds the ref manager; zero means its default.
	SnapshotHistory int
}

const defaultMaxSteps = 100

// Interpreter executes a validated DAG against a browser adapter. It is the
// restricted runtime of the guard: the only transitions it will take are the
// edges the plan enumerated, every action passes the policy engine first,
// and observations are consulted only at the pre-declared branch points.
//
// One interpreter drives one session. It owns its policy engine and ref
// manager; nothing is shared between sessions except the immutable static
// tables.
type Interpreter struct {
	adapter schemas.BrowserAdapter
	engine  *policy.Engine
	refMgr  *refs.Manager
	opts    Options
	logger  *zap.Logger
}

// New builds an interpreter.
func New(adapter schemas.BrowserAdapter, engine *policy.Engine, opts Options, logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = defaultMaxSteps
	}
	return &Interpreter{
		adapter: adapter,
		engine:  engine,
		refMgr:  refs.NewManager(opts.SnapshotHistory, logger),
		opts:    opts,
		logger:  logger.Named("interpreter"),
	}
}

// RefManager exposes the session's ref manager (for bulk-action validation
// and LLM formatting).
func (it *Interpreter) RefManager() *refs.Manager { return it.refMgr }

// execContext is the in-flight session state threaded through the loop.
type execContext struct {
	currentURL     string
	currentDomain  string
	visitedDomains []string
	depth          int
	data           map[string]interface{}
}

// Execute runs the DAG to a terminal state and reports the result. The
// session deadline comes from the intent's timeout, capped at the global
// maximum.
func (it *Interpreter) Execute(ctx context.Context, dag *schemas.DAG) *schemas.Result {
	start := time.Now()
	res := &schemas.Result{Data: map[string]interface{}{}}

	timeout := schemas.MaxTimeoutMs
	if dag.Intent != nil && dag.Intent.TimeoutMs > 0 && dag.Intent.TimeoutMs < timeout {
		timeout = dag.Intent.TimeoutMs
	}
	deadline := start.Add(time.Duration(timeout) * time.Millisecond)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ec := &execContext{data: map[string]interface{}{}}
	if dag.Intent != nil {
		// Seed the steering marker so the detector has something to hold
		// execution against.
		ec.data[allowedDomainsKey] = append([]string(nil), dag.Intent.AllowedDomains...)
	}

	nodeID := dag.EntryPoint
	for step := 0; ; step++ {
		if time.Now().After(deadline) {
			return it.finish(res, schemas.StatusTimeout, "session deadline exceeded", ec, start)
		}
		if step >= it.opts.MaxSteps {
			return it.finish(res, schemas.StatusError, fmt.Sprintf("step ceiling %d reached", it.opts.MaxSteps), ec, start)
		}

		node, ok := dag.NodeByID(nodeID)
		if !ok {
			return it.finish(res, schemas.StatusError, fmt.Sprintf("node %q not found", nodeID), ec, start)
		}

		// Terminal wait markers are structural: they carry the terminal
		// result and nothing else, so they bypass the policy gate and the
		// adapter. Terminal nodes with real actions still execute below.
		if node.IsTerminal && node.Action.Type == schemas.ActionWait {
			it.appendTrace(res, node, nil, schemas.DecisionAbort, "")
			return it.finish(res, terminalStatus(node.TerminalResult), node.Action.Description, ec, start)
		}

		if reason, ok := it.checkConstraints(node, ec); !ok {
			return it.finish(res, schemas.StatusBlocked, reason, ec, start)
		}

		decision := it.engine.Allows(node.Action, schemas.ActionContext{
			CurrentURL:    ec.currentURL,
			CurrentDomain: ec.currentDomain,
			Depth:         ec.depth,
		})
		if !decision.Allowed {
			reason := fmt.Sprintf("policy %s: %s", decision.Effect, decision.Reason)
			it.logger.Warn("action blocked",
				zap.String("node", node.ID),
				zap.String("action", string(node.Action.Type)),
				zap.String("rule", decision.MatchedRule),
				zap.String("reason", decision.Reason))
			return it.finish(res, schemas.StatusBlocked, reason, ec, start)
		}

		obs, extracted, err := it.executeAction(ctx, node)
		if err != nil {
			if ctx.Err() != nil {
				return it.finish(res, schemas.StatusTimeout, "session deadline exceeded", ec, start)
			}
			return it.finish(res, schemas.StatusError, fmt.Sprintf("adapter: %v", err), ec, start)
		}

		it.updateContext(ec, node, obs, extracted, res)

		if obs != nil {
			it.refMgr.CreateSnapshot(obs.URL, obs.Elements)
		}

		if node.IsTerminal {
			it.appendTrace(res, node, obs, schemas.DecisionAbort, "")
			return it.finish(res, terminalStatus(node.TerminalResult), node.Action.Description, ec, start)
		}

		if issue := it.validateOutcomes(node, obs); issue != "" {
			it.appendTrace(res, node, obs, schemas.DecisionAbort, "")
			return it.finish(res, schemas.StatusAborted, issue, ec, start)
		}

		next, edge := it.selectBranch(dag, node.ID, obs)
		if next == "" {
			it.appendTrace(res, node, obs, schemas.DecisionAbort, "")
			return it.finish(res, schemas.StatusError, fmt.Sprintf("no valid branch out of node %q", node.ID), ec, start)
		}

		if v := detectSteering(obs, ec); !v.safe {
			it.appendTrace(res, node, obs, schemas.DecisionAbort, next)
			return it.finish(res, schemas.StatusAborted, v.reason, ec, start)
		}

		it.appendTrace(res, node, obs, schemas.DecisionBranch, edgeLabel(edge))
		nodeID = next
	}
}

// checkConstraints enforces node-local constraints before execution. Today
// that is the domain constraint on navigations.
func (it *Interpreter) checkConstraints(node *schemas.Node, ec *execContext) (string, bool) {
	for _, c := range node.Constraints {
		if c.Type != schemas.ConstraintDomain {
			continue
		}
		host := ec.currentDomain
		if node.Action.Type == schemas.ActionNavigate {
			host = hostOf(node.Action.Target)
		}
		if host == "" {
			continue
		}
		if !schemas.DomainAllowed(host, c.Domains) {
			return fmt.Sprintf("node %q violates its domain constraint: %q not in %v", node.ID, host, c.Domains), false
		}
	}
	return "", true
}

// executeAction dispatches the node's action to the adapter.
func (it *Interpreter) executeAction(ctx context.Context, node *schemas.Node) (*schemas.Observation, map[string]interface{}, error) {
	a := node.Action
	switch a.Type {
	case schemas.ActionNavigate:
		obs, err := it.adapter.Navigate(ctx, a.Target)
		return obs, nil, err
	case schemas.ActionClick:
		obs, err := it.adapter.Click(ctx, a.Target)
		return obs, nil, err
	case schemas.ActionTypeText:
		obs, err := it.adapter.Type(ctx, a.Target, a.Value)
		return obs, nil, err
	case schemas.ActionScroll:
		amount := 0
		if a.Value != "" {
			amount, _ = strconv.Atoi(a.Value)
		}
		obs, err := it.adapter.Scroll(ctx, a.Target, amount)
		return obs, nil, err
	case schemas.ActionExtract:
		selectors := make(map[string]string, len(node.ExtractionTargets))
		for _, t := range node.ExtractionTargets {
			selectors[t.Name] = t.Selector
		}
		return it.adapter.Extract(ctx, selectors)
	case schemas.ActionScreenshot:
		obs, img, err := it.adapter.Screenshot(ctx)
		if err != nil {
			return obs, nil, err
		}
		return obs, map[string]interface{}{"screenshot_bytes": len(img)}, nil
	case schemas.ActionWait:
		ms := 0
		if a.Value != "" {
			ms, _ = strconv.Atoi(a.Value)
		}
		obs, err := it.adapter.Wait(ctx, ms)
		return obs, nil, err
	}
	return nil, nil, fmt.Errorf("unknown action type %q", a.Type)
}

// updateContext folds the step's outcome into the session state.
func (it *Interpreter) updateContext(ec *execContext, node *schemas.Node, obs *schemas.Observation, extracted map[string]interface{}, res *schemas.Result) {
	if obs != nil && obs.URL != "" {
		ec.currentURL = obs.URL
		if host := hostOf(obs.URL); host != "" {
			if ec.currentDomain != host {
				ec.visitedDomains = append(ec.visitedDomains, host)
			}
			ec.currentDomain = host
		}
	}
	if node.Action.Type == schemas.ActionNavigate {
		ec.depth++
	}
	for k, v := range extracted {
		ec.data[k] = v
		res.Data[k] = v
	}
}

// validateOutcomes checks the node's expected outcomes against the
// observation. Only a required mismatch under strict mode is fatal; optional
// mismatches are logged and tolerated.
func (it *Interpreter) validateOutcomes(node *schemas.Node, obs *schemas.Observation) string {
	for _, eo := range node.ExpectedOutcomes {
		if evalCondition(eo.Type, eo.Value, obs) {
			continue
		}
		if eo.Required && it.opts.StrictOutcomes {
			return fmt.Sprintf("required outcome not met at node %q: %s", node.ID, outcomeLabel(eo))
		}
		it.logger.Debug("optional outcome not met",
			zap.String("node", node.ID),
			zap.String("outcome", outcomeLabel(eo)))
	}
	return ""
}

// selectBranch picks the first outgoing edge, in ascending priority order,
// whose condition holds. Observations are consulted here and only here.
func (it *Interpreter) selectBranch(dag *schemas.DAG, nodeID string, obs *schemas.Observation) (string, *schemas.Edge) {
	edges := dag.OutgoingEdges(nodeID)
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Priority < edges[j].Priority })
	for i := range edges {
		if evalCondition(edges[i].Condition.Type, edges[i].Condition.Value, obs) {
			return edges[i].To, &edges[i]
		}
	}
	return "", nil
}

func (it *Interpreter) appendTrace(res *schemas.Result, node *schemas.Node, obs *schemas.Observation, decision schemas.TraceDecision, takenEdge string) {
	if !it.opts.Trace {
		return
	}
	res.Trace = append(res.Trace, schemas.TraceEntry{
		ID:          uuid.NewString(),
		NodeID:      node.ID,
		Action:      node.Action,
		Observation: obs,
		Decision:    decision,
		TakenEdge:   takenEdge,
		Timestamp:   time.Now().UTC(),
	})
}

func (it *Interpreter) finish(res *schemas.Result, status schemas.ExecutionStatus, reason string, _ *execContext, start time.Time) *schemas.Result {
	res.Status = status
	res.Reason = reason
	res.DurationMs = time.Since(start).Milliseconds()
	it.logger.Info("session finished",
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.Int64("duration_ms", res.DurationMs),
		zap.Int("trace_steps", len(res.Trace)))
	return res
}

func terminalStatus(tr schemas.TerminalResult) schemas.ExecutionStatus {
	switch tr {
	case schemas.TerminalSuccess:
		return schemas.StatusComplete
	case schemas.TerminalAbort:
		return schemas.StatusAborted
	default:
		return schemas.StatusError
	}
}

func edgeLabel(e *schemas.Edge) string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s->%s", e.From, e.To)
}

func outcomeLabel(eo schemas.ExpectedOutcome) string {
	if eo.Description != "" {
		return eo.Description
	}
	return fmt.Sprintf("%s(%s)", eo.Type, eo.Value)
}

func hostOf(target string) string {
	if target == "" {
		return ""
	}
	raw := target
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
