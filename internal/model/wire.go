package model

import (
	"encoding/json"
	"fmt"
)

// WireUpdate is the JSON form of an Update. Values are base64 in JSON.
type WireUpdate struct {
	Type  string `json:"type"`
	Key   int    `json:"key"`
	Value []byte `json:"value,omitempty"`
}

// WireOperation is the JSON form of an Operation.
//
//	{"type":"transaction","updates":[{"type":"insert","key":1,"value":"AAAAAA=="}]}
//	{"type":"clear","min_key":2}
//	{"type":"prepare","length":9}
type WireOperation struct {
	Type    string       `json:"type"`
	Updates []WireUpdate `json:"updates,omitempty"`
	MinKey  int          `json:"min_key,omitempty"`
	Length  int          `json:"length,omitempty"`
}

func ToWireUpdate(u Update) WireUpdate {
	switch u := u.(type) {
	case Insert:
		return WireUpdate{Type: INSERT.String(), Key: u.K, Value: u.V}
	case Remove:
		return WireUpdate{Type: REMOVE.String(), Key: u.K}
	default:
		panic(fmt.Sprintf("unknown update %T", u))
	}
}

func ToWire(op Operation) WireOperation {
	switch op := op.(type) {
	case Transaction:
		ups := make([]WireUpdate, len(op.Updates))
		for i, u := range op.Updates {
			ups[i] = ToWireUpdate(u)
		}
		return WireOperation{Type: TRANSACTION.String(), Updates: ups}
	case Clear:
		return WireOperation{Type: CLEAR.String(), MinKey: op.MinKey}
	case Prepare:
		return WireOperation{Type: PREPARE.String(), Length: op.Length}
	default:
		panic(fmt.Sprintf("unknown operation %T", op))
	}
}

func (w WireUpdate) Update() (Update, error) {
	if w.Key < 0 {
		return nil, fmt.Errorf("negative key %d", w.Key)
	}
	switch w.Type {
	case INSERT.String():
		return Insert{K: w.Key, V: w.Value}, nil
	case REMOVE.String():
		if len(w.Value) > 0 {
			return nil, fmt.Errorf("remove of key %d carries a value", w.Key)
		}
		return Remove{K: w.Key}, nil
	default:
		return nil, fmt.Errorf("unknown update type %q", w.Type)
	}
}

func (w WireOperation) Operation() (Operation, error) {
	switch w.Type {
	case TRANSACTION.String():
		ups := make([]Update, len(w.Updates))
		for i, wu := range w.Updates {
			u, err := wu.Update()
			if err != nil {
				return nil, fmt.Errorf("update %d: %w", i, err)
			}
			ups[i] = u
		}
		return Transaction{Updates: ups}, nil
	case CLEAR.String():
		if w.MinKey < 0 {
			return nil, fmt.Errorf("negative min_key %d", w.MinKey)
		}
		return Clear{MinKey: w.MinKey}, nil
	case PREPARE.String():
		if w.Length < 0 {
			return nil, fmt.Errorf("negative length %d", w.Length)
		}
		return Prepare{Length: w.Length}, nil
	default:
		return nil, fmt.Errorf("unknown operation type %q", w.Type)
	}
}

// MarshalOperation encodes op as JSON.
func MarshalOperation(op Operation) ([]byte, error) {
	return json.Marshal(ToWire(op))
}

// UnmarshalOperation decodes an operation from JSON.
func UnmarshalOperation(data []byte) (Operation, error) {
	var w WireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode operation: %w", err)
	}
	return w.Operation()
}
