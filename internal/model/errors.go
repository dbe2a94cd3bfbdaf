package model

import (
	"errors"
	"fmt"
)

// The only two reasons a store refuses an operation. Both are detected before
// anything is mutated.
var (
	// ErrInvalidArgument: the operation breaks a static limit of the format or
	// is inconsistent with itself (e.g. duplicate keys in one transaction).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoCapacity: the operation is well formed but the store lacks free words.
	ErrNoCapacity = errors.New("no capacity")
)

// Outcome is the externally observable result of applying an operation.
type Outcome byte

const (
	OutcomeOK Outcome = iota
	OutcomeInvalidArgument
	OutcomeNoCapacity
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeInvalidArgument:
		return "invalid_argument"
	case OutcomeNoCapacity:
		return "no_capacity"
	default:
		return fmt.Sprintf("Outcome(%d)", byte(o))
	}
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "ok":
		return OutcomeOK, nil
	case "invalid_argument":
		return OutcomeInvalidArgument, nil
	case "no_capacity":
		return OutcomeNoCapacity, nil
	default:
		return 0, fmt.Errorf("unknown outcome %q", s)
	}
}

// Err returns the sentinel error matching o, nil for OutcomeOK.
func (o Outcome) Err() error {
	switch o {
	case OutcomeInvalidArgument:
		return ErrInvalidArgument
	case OutcomeNoCapacity:
		return ErrNoCapacity
	default:
		return nil
	}
}

// OutcomeOf classifies the result of an apply call. Errors that are neither
// ErrInvalidArgument nor ErrNoCapacity are returned as-is.
func OutcomeOf(err error) (Outcome, error) {
	switch {
	case err == nil:
		return OutcomeOK, nil
	case errors.Is(err, ErrInvalidArgument):
		return OutcomeInvalidArgument, nil
	case errors.Is(err, ErrNoCapacity):
		return OutcomeNoCapacity, nil
	default:
		return 0, err
	}
}
