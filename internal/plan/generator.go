// File: internal/plan/generator.go
package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

// GenerationError means the LLM path was exhausted and no template fallback
// was permitted.
type GenerationError struct {
	Cause    error
	Attempts int
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("plan generation failed after %d attempt(s): %v", e.Attempts, e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	// MaxRetries bounds LLM attempts. Zero means one attempt.
	MaxRetries int
	// FallbackToTemplate switches to the template strategy when the LLM path
	// is exhausted.
	FallbackToTemplate bool
	// Template tunes template instantiation (also used by the fallback).
	Template TemplateOptions
}

// Generator produces validated plans. With a nil provider it is a pure
// template planner; with a provider it tries the LLM first. Either way the
// plan is generated single-shot: no web content has been observed when it
// runs.
type Generator struct {
	provider schemas.LLMProvider
	opts     GeneratorOptions
	logger   *zap.Logger
}

// NewGenerator builds a generator. provider may be nil.
func NewGenerator(provider schemas.LLMProvider, opts GeneratorOptions, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	return &Generator{provider: provider, opts: opts, logger: logger.Named("plan")}
}

// BuildPlan produces a validated DAG for the intent.
func (g *Generator) BuildPlan(ctx context.Context, in *schemas.Intent) (*schemas.DAG, error) {
	if g.provider == nil {
		return g.buildFromTemplate(in)
	}

	dag, err := g.buildFromLLM(ctx, in)
	if err == nil {
		return dag, nil
	}
	if g.opts.FallbackToTemplate {
		g.logger.Warn("llm planning exhausted; falling back to template", zap.Error(err))
		return g.buildFromTemplate(in)
	}
	return nil, err
}

func (g *Generator) buildFromTemplate(in *schemas.Intent) (*schemas.DAG, error) {
	dag := BuildTemplate(in, g.opts.Template)
	if res := Validate(dag); !res.Valid {
		// A template producing an invalid DAG is a programming error, not a
		// recoverable planning failure.
		return nil, &InvalidDAGError{Issues: res.Issues}
	}
	return dag, nil
}

// buildFromLLM asks the provider for a plan up to MaxRetries times. Each
// response is parsed, defaulted, domain-constrained by the core and then
// gated by the validator before acceptance. The provider itself never
// retries; pacing between attempts is the planner's exponential backoff.
func (g *Generator) buildFromLLM(ctx context.Context, in *schemas.Intent) (*schemas.DAG, error) {
	req := schemas.PlanRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   UserPrompt(in),
		Schema:       schemas.DAGResponseSchema,
		Intent:       in,
	}

	pace := backoff.NewExponentialBackOff()
	pace.InitialInterval = 500 * time.Millisecond
	pace.MaxInterval = 10 * time.Second

	var lastErr error
	for attempt := 1; attempt <= g.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, &GenerationError{Cause: ctx.Err(), Attempts: attempt - 1}
			case <-time.After(pace.NextBackOff()):
			}
		}

		dag, err := g.attempt(ctx, req, in)
		if err == nil {
			g.logger.Info("llm plan accepted",
				zap.Int("attempt", attempt),
				zap.Int("nodes", len(dag.Nodes)),
				zap.Int("edges", len(dag.Edges)))
			return dag, nil
		}
		lastErr = err
		g.logger.Warn("llm plan attempt rejected", zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, &GenerationError{Cause: lastErr, Attempts: g.opts.MaxRetries}
}

func (g *Generator) attempt(ctx context.Context, req schemas.PlanRequest, in *schemas.Intent) (*schemas.DAG, error) {
	resp, err := g.provider.GeneratePlan(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}

	dag := resp.DAG
	if dag == nil {
		dag, err = ExtractDAG(resp.Raw)
		if err != nil {
			return nil, fmt.Errorf("response parse: %w", err)
		}
	}

	if dag.ID == "" {
		dag.ID = uuid.NewString()
	}
	if dag.CreatedAt.IsZero() {
		dag.CreatedAt = time.Now().UTC()
	}

	// The core, not the model, owns domain confinement: whatever constraints
	// the response carried are replaced with the intent's.
	FinalizeDomains(dag, in)

	if res := Validate(dag); !res.Valid {
		return nil, &InvalidDAGError{Issues: res.Issues}
	}
	if err := checkActionAlphabet(dag, in); err != nil {
		return nil, err
	}
	return dag, nil
}

// checkActionAlphabet rejects plans that use actions outside the intent's
// alphabet. The interpreter would block these anyway; rejecting at planning
// time buys another attempt instead of a dead session.
func checkActionAlphabet(d *schemas.DAG, in *schemas.Intent) error {
	var issues []string
	for i := range d.Nodes {
		n := &d.Nodes[i]
		// Terminal wait markers are structural, not behavioral.
		if n.IsTerminal && n.Action.Type == schemas.ActionWait {
			continue
		}
		if !in.PermitsAction(n.Action.Type) {
			issues = append(issues, fmt.Sprintf("node %q uses action %q outside the intent alphabet", n.ID, n.Action.Type))
		}
	}
	if len(issues) > 0 {
		return &InvalidDAGError{Issues: issues}
	}
	return nil
}
