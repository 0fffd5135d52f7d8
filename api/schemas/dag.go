package schemas

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var dagJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// ConditionType tags a branch condition or an expected outcome. The set is
// closed; the interpreter dispatches exhaustively on it.
type ConditionType string

const (
	CondElementPresent ConditionType = "element_present"
	CondElementAbsent  ConditionType = "element_absent"
	CondURLMatch       ConditionType = "url_match"
	CondContentMatch   ConditionType = "content_match"
	CondDefault        ConditionType = "default"
)

// TerminalResult is the outcome a terminal node maps to.
type TerminalResult string

const (
	TerminalSuccess TerminalResult = "success"
	TerminalError   TerminalResult = "error"
	TerminalAbort   TerminalResult = "abort"
)

// BrowserAction is the single primitive a DAG node performs.
type BrowserAction struct {
	Type        ActionType `json:"type"`
	Target      string     `json:"target,omitempty"`
	Value       string     `json:"value,omitempty"`
	Description string     `json:"description"`
}

// BranchCondition guards an edge. Value is a selector for the element
// conditions and a regular expression for the match conditions; it is unused
// for the default condition.
type BranchCondition struct {
	Type        ConditionType `json:"type"`
	Value       string        `json:"value,omitempty"`
	Description string        `json:"description"`
}

// ExpectedOutcome has the same shape as a branch condition plus a Required
// flag. A required mismatch aborts the session under strict mode.
type ExpectedOutcome struct {
	Type        ConditionType `json:"type"`
	Value       string        `json:"value,omitempty"`
	Description string        `json:"description,omitempty"`
	Required    bool          `json:"required,omitempty"`
}

// ExtractionTarget names a piece of data a node should pull out of the page.
type ExtractionTarget struct {
	Name     string `json:"name"`
	Selector string `json:"selector"`
}

// ConstraintType tags a node-local constraint.
type ConstraintType string

const (
	// ConstraintDomain restricts a node to the intent's allowed domains. Every
	// node of a finalized DAG carries exactly one of these.
	ConstraintDomain ConstraintType = "domain"
)

// Constraint is a node-local invariant checked before execution.
type Constraint struct {
	Type    ConstraintType `json:"type"`
	Domains []string       `json:"domains,omitempty"`
}

// Node is one step of the plan. Cross-references are by node id only, never
// by pointer, so plans stay serializable and checkable.
type Node struct {
	ID                string             `json:"id"`
	Action            BrowserAction      `json:"action"`
	ExpectedOutcomes  []ExpectedOutcome  `json:"expectedOutcomes"`
	ExtractionTargets []ExtractionTarget `json:"extractionTargets,omitempty"`
	Constraints       []Constraint       `json:"constraints"`
	IsTerminal        bool               `json:"isTerminal,omitempty"`
	TerminalResult    TerminalResult     `json:"terminalResult,omitempty"`
}

// Edge is a directed transition between two nodes, guarded by a condition.
// Lower priority is evaluated first.
type Edge struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Condition BranchCondition `json:"condition"`
	Priority  int             `json:"priority"`
}

// DAG is the complete conditional execution plan for one session, produced
// before any untrusted content is observed.
type DAG struct {
	ID         string    `json:"id"`
	Intent     *Intent   `json:"intent,omitempty"`
	Nodes      []Node    `json:"nodes"`
	Edges      []Edge    `json:"edges"`
	EntryPoint string    `json:"entryPoint"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}

// NodeByID looks a node up by id.
func (d *DAG) NodeByID(id string) (*Node, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// OutgoingEdges returns the edges leaving the given node, in declaration
// order. Callers sort by priority as needed.
func (d *DAG) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// MarshalDAG serializes a DAG to its wire form.
func MarshalDAG(d *DAG) ([]byte, error) {
	return dagJSON.Marshal(d)
}

// UnmarshalDAG parses the wire form of a DAG. Missing constraint and outcome
// arrays become empty; a missing entry point falls back to the first node id
// so that partially-defaulted LLM output is usable before validation.
func UnmarshalDAG(data []byte) (*DAG, error) {
	var d DAG
	if err := dagJSON.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("dag unmarshal: %w", err)
	}
	for i := range d.Nodes {
		if d.Nodes[i].ExpectedOutcomes == nil {
			d.Nodes[i].ExpectedOutcomes = []ExpectedOutcome{}
		}
		if d.Nodes[i].Constraints == nil {
			d.Nodes[i].Constraints = []Constraint{}
		}
	}
	if d.EntryPoint == "" && len(d.Nodes) > 0 {
		d.EntryPoint = d.Nodes[0].ID
	}
	return &d, nil
}

// DAGResponseSchema is the JSON schema handed to LLM providers that support
// structured output. It mirrors the wire shape: required keys nodes, edges,
// entryPoint; enums per the action and condition alphabets.
const DAGResponseSchema = `{
  "type": "object",
  "required": ["nodes", "edges", "entryPoint"],
  "properties": {
    "entryPoint": {"type": "string"},
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "action"],
        "properties": {
          "id": {"type": "string"},
          "action": {
            "type": "object",
            "required": ["type", "description"],
            "properties": {
              "type": {"type": "string", "enum": ["navigate", "click", "scroll", "type", "extract", "screenshot", "wait"]},
              "target": {"type": "string"},
              "value": {"type": "string"},
              "description": {"type": "string"}
            }
          },
          "expectedOutcomes": {"type": "array"},
          "extractionTargets": {"type": "array"},
          "isTerminal": {"type": "boolean"},
          "terminalResult": {"type": "string", "enum": ["success", "error", "abort"]}
        }
      }
    },
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from", "to", "condition"],
        "properties": {
          "from": {"type": "string"},
          "to": {"type": "string"},
          "condition": {
            "type": "object",
            "required": ["type", "description"],
            "properties": {
              "type": {"type": "string", "enum": ["element_present", "element_absent", "url_match", "content_match", "default"]},
              "value": {"type": "string"},
              "description": {"type": "string"}
            }
          },
          "priority": {"type": "integer"}
        }
      }
    }
  }
}`
