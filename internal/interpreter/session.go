// File: internal/interpreter/session.go
package interpreter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/httpfilter"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/intent"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/plan"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/policy"
)

// Session is the whole pipeline for one request: derive an intent, screen
// it, plan, validate, execute. It owns the per-session policy engine, ref
// manager and HTTP filter; nothing is shared with other sessions except the
// immutable static tables, so sessions can run side by side freely.
type Session struct {
	Intent *schemas.Intent
	Engine *policy.Engine
	Filter *httpfilter.Filter

	interp  *Interpreter
	planner *plan.Generator
	logger  *zap.Logger
}

// SessionOptions wires a session together.
type SessionOptions struct {
	Interpreter Options
	Planner     plan.GeneratorOptions
	Provider    schemas.LLMProvider
	ParseOpts   intent.Options
}

// NewSession derives and screens the intent and assembles the per-session
// triple. It fails before any I/O when the intent is invalid or the policy
// engine rejects it.
func NewSession(request string, adapter schemas.BrowserAdapter, opts SessionOptions, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	parser := intent.NewParser(logger)
	in := parser.Parse(request, opts.ParseOpts)
	if err := intent.MustValidate(in); err != nil {
		return nil, err
	}

	engine := policy.New(in, logger)
	if d := engine.AllowsIntent(in); !d.Allowed {
		return nil, fmt.Errorf("intent rejected by policy: %s", d.Reason)
	}

	return &Session{
		Intent:  in,
		Engine:  engine,
		Filter:  httpfilter.FromIntent(in, logger),
		interp:  New(adapter, engine, opts.Interpreter, logger),
		planner: plan.NewGenerator(opts.Provider, opts.Planner, logger),
		logger:  logger.Named("session"),
	}, nil
}

// Plan produces the validated DAG for this session.
func (s *Session) Plan(ctx context.Context) (*schemas.DAG, error) {
	return s.planner.BuildPlan(ctx, s.Intent)
}

// Run plans and executes in one go.
func (s *Session) Run(ctx context.Context) (*schemas.Result, error) {
	dag, err := s.Plan(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("executing plan",
		zap.String("dag_id", dag.ID),
		zap.Int("nodes", len(dag.Nodes)),
		zap.String("task_type", string(s.Intent.TaskType)))
	return s.interp.Execute(ctx, dag), nil
}

// Interpreter exposes the session's interpreter.
func (s *Session) Interpreter() *Interpreter { return s.interp }
