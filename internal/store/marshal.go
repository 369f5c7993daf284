package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/revgraph/internal/ir"
)

// marshalState converts an attribute snapshot to canonical JSON TEXT.
// A nil snapshot (entity absent) is stored as the empty string so it can
// be told apart from an entity with no attributes ("{}").
func marshalState(state ir.Object) (string, error) {
	if state == nil {
		return "", nil
	}
	data, err := ir.MarshalCanonical(state)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	return string(data), nil
}

// unmarshalState parses canonical JSON TEXT back to an attribute snapshot.
// ir.Object.UnmarshalJSON keeps integers as int64 and rejects floats.
func unmarshalState(data string) (ir.Object, error) {
	if data == "" {
		return nil, nil
	}
	obj := ir.Object{}
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return obj, nil
}
