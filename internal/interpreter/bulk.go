// File: internal/interpreter/bulk.go
package interpreter

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/refs"
)

var bulkJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Calibrated round-trip constants behind EstimateGains. Advisory only.
const (
	sequentialMsPerAction   = 6_400
	bulkMsPerBatch          = 10_500
	tokensPerSequentialCall = 6_800
	tokensPerBulkCall       = 8_000
)

// BatchVerdict is CanBatch's answer.
type BatchVerdict struct {
	OK     bool
	Reason string
}

// CanBatch decides whether a run of actions may execute as one batch: no
// navigation inside the batch (a navigation invalidates every ref after it),
// all refs minted by a single snapshot version, and no single-action
// constraint violations (every entry typed and carrying a parseable ref).
func CanBatch(actions []schemas.BulkAction) BatchVerdict {
	if len(actions) == 0 {
		return BatchVerdict{OK: false, Reason: "empty batch"}
	}
	var version uint32
	for i, a := range actions {
		if a.Type == schemas.ActionNavigate {
			return BatchVerdict{OK: false, Reason: "navigate cannot be batched"}
		}
		if a.Type == "" {
			return BatchVerdict{OK: false, Reason: fmt.Sprintf("action %d has no type", i)}
		}
		v, _, err := refs.ParseRef(a.Ref)
		if err != nil {
			return BatchVerdict{OK: false, Reason: fmt.Sprintf("action %d: %v", i, err)}
		}
		if i == 0 {
			version = v
		} else if v != version {
			return BatchVerdict{OK: false, Reason: fmt.Sprintf("mixed snapshot versions %d and %d", version, v)}
		}
	}
	return BatchVerdict{OK: true}
}

// Optimize greedily groups actions into executable batches: a new batch
// starts whenever adding the next action would make the current batch fail
// CanBatch. Navigations always cut and travel alone.
func Optimize(actions []schemas.BulkAction) [][]schemas.BulkAction {
	var batches [][]schemas.BulkAction
	var current []schemas.BulkAction

	flush := func() {
		if len(current) > 0 {
			batches = append(batches, current)
			current = nil
		}
	}

	for _, a := range actions {
		candidate := append(append([]schemas.BulkAction(nil), current...), a)
		if v := CanBatch(candidate); !v.OK {
			flush()
			if v := CanBatch([]schemas.BulkAction{a}); !v.OK {
				// Unbatchable on its own (e.g. a navigate); it still runs,
				// just as a singleton batch.
				batches = append(batches, []schemas.BulkAction{a})
				continue
			}
			current = []schemas.BulkAction{a}
			continue
		}
		current = candidate
	}
	flush()
	return batches
}

// bulkEnvelope accepts both wire spellings of a batch.
type bulkEnvelope struct {
	BulkActions []schemas.BulkAction `json:"bulkActions"`
	Actions     []schemas.BulkAction `json:"actions"`
}

// ParseBulk parses a bulk-action payload. Accepts {"bulkActions":[...]} or
// {"actions":[...]}; every entry must carry a type and a syntactically valid
// versioned ref.
func ParseBulk(data []byte) ([]schemas.BulkAction, error) {
	var env bulkEnvelope
	if err := bulkJSON.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bulk parse: %w", err)
	}
	actions := env.BulkActions
	if actions == nil {
		actions = env.Actions
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("bulk parse: no actions in payload")
	}
	for i, a := range actions {
		if a.Type == "" {
			return nil, fmt.Errorf("bulk parse: action %d has no type", i)
		}
		if _, _, err := refs.ParseRef(a.Ref); err != nil {
			return nil, fmt.Errorf("bulk parse: action %d: %w", i, err)
		}
	}
	return actions, nil
}

// MarshalBulk serializes a batch back to the canonical wire form.
func MarshalBulk(actions []schemas.BulkAction) ([]byte, error) {
	return bulkJSON.Marshal(bulkEnvelope{BulkActions: actions})
}

// EstimateGains reports what batching nActions into nBatches saves relative
// to sequential round-trips, using the calibrated constants.
func EstimateGains(nActions, nBatches int) schemas.BulkGains {
	if nActions <= 0 || nBatches <= 0 {
		return schemas.BulkGains{}
	}
	sequentialMs := int64(nActions) * sequentialMsPerAction
	bulkMs := int64(nBatches) * bulkMsPerBatch
	sequentialTokens := int64(nActions) * tokensPerSequentialCall
	bulkTokens := int64(nBatches) * tokensPerBulkCall

	return schemas.BulkGains{
		AvgBatchSize:         float64(nActions) / float64(nBatches),
		EstimatedTimeSavedMs: sequentialMs - bulkMs,
		EstimatedTokensSaved: sequentialTokens - bulkTokens,
	}
}
