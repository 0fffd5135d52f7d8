package schemas

import "time"

// Element is one interactive element captured in a snapshot. It is a flat
// record, not a DOM node: the adapter reduces whatever it drives (CDP,
// accessibility tree, fixture) to this shape.
type Element struct {
	Tag        string            `json:"tag"`
	Role       string            `json:"role,omitempty"`
	Label      string            `json:"label,omitempty"`
	Text       string            `json:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`

	// IdentityHash is a deterministic fingerprint of the element's stable
	// properties, used for change detection across snapshots. Filled in by
	// the ref manager.
	IdentityHash string `json:"identityHash,omitempty"`
}

// Snapshot is a versioned view of the observed elements of a page. Refs are
// 1-indexed within the snapshot and valid only while the snapshot is current.
type Snapshot struct {
	Version   uint32             `json:"version"`
	Timestamp time.Time          `json:"timestamp"`
	URL       string             `json:"url"`
	Elements  map[uint32]Element `json:"elements"`
}

// Observation is what the adapter reports after performing an action. It is
// the only information channel from the untrusted page into the interpreter.
type Observation struct {
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	VisibleText string    `json:"visibleText,omitempty"`
	Elements    []Element `json:"elements,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ExecutionStatus is the terminal result of a guard session.
type ExecutionStatus string

const (
	StatusComplete ExecutionStatus = "complete"
	StatusAborted  ExecutionStatus = "aborted"
	StatusBlocked  ExecutionStatus = "blocked"
	StatusTimeout  ExecutionStatus = "timeout"
	StatusError    ExecutionStatus = "error"
)

// TraceDecision records what the driver did after a step.
type TraceDecision string

const (
	DecisionContinue TraceDecision = "continue"
	DecisionBranch   TraceDecision = "branch"
	DecisionAbort    TraceDecision = "abort"
)

// TraceEntry is one step of the execution trace.
type TraceEntry struct {
	ID          string        `json:"id"`
	NodeID      string        `json:"nodeId"`
	Action      BrowserAction `json:"action"`
	Observation *Observation  `json:"observation,omitempty"`
	Decision    TraceDecision `json:"decision"`
	TakenEdge   string        `json:"takenEdge,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Result is the outcome of executing a DAG.
type Result struct {
	Status     ExecutionStatus        `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Trace      []TraceEntry           `json:"trace,omitempty"`
	DurationMs int64                  `json:"durationMs"`
}
