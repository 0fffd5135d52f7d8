// Canonical port definitions live here, at the API level, so that internal
// packages can share them without import cycles.
package schemas

import "context"

// PlanRequest is the planner's call into an LLM provider.
type PlanRequest struct {
	SystemPrompt string
	UserPrompt   string
	// Schema is a JSON schema for the DAG wire shape, for providers that
	// support structured output.
	Schema string
	Intent *Intent
}

// PlanResponse is what a provider returns. Either DAG is populated directly
// (structured-output providers) or Raw contains text the planner extracts a
// DAG from. Providers must not retry; retries belong to the planner.
type PlanResponse struct {
	DAG        *DAG
	Raw        string
	TokensUsed int
}

// LLMProvider is the single-operation port the plan generator drives.
type LLMProvider interface {
	GeneratePlan(ctx context.Context, req PlanRequest) (*PlanResponse, error)
}

// BrowserAdapter abstracts the browser driver. Every method performs one
// primitive and reports the resulting page state. Implementations honor
// context cancellation by aborting in-flight I/O.
type BrowserAdapter interface {
	Navigate(ctx context.Context, url string) (*Observation, error)
	Click(ctx context.Context, selector string) (*Observation, error)
	Type(ctx context.Context, selector, text string) (*Observation, error)
	Scroll(ctx context.Context, direction string, amount int) (*Observation, error)
	Extract(ctx context.Context, selectors map[string]string) (*Observation, map[string]interface{}, error)
	Screenshot(ctx context.Context) (*Observation, []byte, error)
	Wait(ctx context.Context, ms int) (*Observation, error)
	GetState(ctx context.Context) (*Observation, error)
}
