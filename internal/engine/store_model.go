package engine

import (
	"fmt"
	"maps"
	"slices"

	"storemodel/internal/model"
)

// Format supplies the fixed limits a Model checks operations against.
// Implementations must be immutable for the lifetime of the models using them.
type Format interface {
	TotalCapacity() int
	MaxKey() int
	MaxValueLen() int
	MaxUpdates() int
	BytesToWords(n int) int
}

/*
Model is the logical model of the mutable side of a store.

It tracks only the content (key to value) and the capacity a perfectly compacted
store would have; physical layout, erase cycles and read-only queries belong to
the driver. For every operation a real driver must produce the same outcome and
content as the model:

  - every rejected operation leaves the content untouched,
  - an operation is fully validated, and its cost computed, before anything is
    mutated.

A Model is not safe for concurrent use.
*/
type Model struct {
	content map[int][]byte
	format  Format
}

// New returns an empty model for the given format.
func New(format Format) *Model {
	return &Model{
		content: make(map[int][]byte),
		format:  format,
	}
}

// Format returns the modeled storage configuration.
func (m *Model) Format() Format {
	return m.format
}

// Content returns a copy of the modeled content.
func (m *Model) Content() map[int][]byte {
	out := make(map[int][]byte, len(m.content))
	for k, v := range m.content {
		out[k] = slices.Clone(v)
	}
	return out
}

// Get returns a copy of the value stored under key.
func (m *Model) Get(key int) ([]byte, bool) {
	v, ok := m.content[key]
	if !ok {
		return nil, false
	}
	return slices.Clone(v), true
}

// Keys returns the stored keys in increasing order.
func (m *Model) Keys() []int {
	return slices.Sorted(maps.Keys(m.content))
}

// Len returns the number of stored entries.
func (m *Model) Len() int {
	return len(m.content)
}

// Clone returns an independent copy of m sharing the same format. Stored
// values are never modified in place, so the copies may share them.
func (m *Model) Clone() *Model {
	return &Model{content: maps.Clone(m.content), format: m.format}
}

// Apply simulates a store operation. It returns nil, or an error wrapping
// model.ErrInvalidArgument or model.ErrNoCapacity in which case m is unchanged.
func (m *Model) Apply(op model.Operation) error {
	switch op := op.(type) {
	case model.Transaction:
		return m.transaction(op.Updates)
	case model.Clear:
		return m.clear(op.MinKey)
	case model.Prepare:
		return m.prepare(op.Length)
	default:
		panic(fmt.Sprintf("unknown operation %T", op))
	}
}

func (m *Model) transaction(updates []model.Update) error {
	if len(updates) > m.format.MaxUpdates() {
		return fmt.Errorf("%w: %d updates exceed the limit of %d", model.ErrInvalidArgument, len(updates), m.format.MaxUpdates())
	}
	for i, u := range updates {
		if err := m.validUpdate(u); err != nil {
			return fmt.Errorf("update %d: %w", i, err)
		}
	}
	// The updates must act like disjoint single-key writes.
	seen := make(map[int]struct{}, len(updates))
	for _, u := range updates {
		if _, dup := seen[u.Key()]; dup {
			return fmt.Errorf("%w: key %d appears more than once", model.ErrInvalidArgument, u.Key())
		}
		seen[u.Key()] = struct{}{}
	}

	cost := m.transactionCost(updates)
	if remaining := m.Capacity().Remaining(); remaining < cost {
		return fmt.Errorf("%w: transaction needs %d words, %d remaining", model.ErrNoCapacity, cost, remaining)
	}

	// Keys are disjoint so the order of application does not matter.
	for _, u := range updates {
		switch u := u.(type) {
		case model.Insert:
			m.content[u.K] = slices.Clone(u.V)
		case model.Remove:
			delete(m.content, u.K)
		default:
			panic(fmt.Sprintf("unknown update %T", u))
		}
	}
	return nil
}

func (m *Model) clear(minKey int) error {
	if minKey < 0 || minKey > m.format.MaxKey() {
		return fmt.Errorf("%w: min key %d outside [0, %d]", model.ErrInvalidArgument, minKey, m.format.MaxKey())
	}
	maps.DeleteFunc(m.content, func(k int, _ []byte) bool {
		return k >= minKey
	})
	return nil
}

// prepare only checks that compaction could make length words available; the
// driver does the actual work.
func (m *Model) prepare(length int) error {
	if length < 0 {
		return fmt.Errorf("%w: negative length %d", model.ErrInvalidArgument, length)
	}
	if remaining := m.Capacity().Remaining(); remaining < length {
		return fmt.Errorf("%w: %d words requested, %d remaining", model.ErrNoCapacity, length, remaining)
	}
	return nil
}

func (m *Model) validUpdate(u model.Update) error {
	if u == nil {
		return fmt.Errorf("%w: nil update", model.ErrInvalidArgument)
	}
	if u.Key() < 0 || u.Key() > m.format.MaxKey() {
		return fmt.Errorf("%w: key %d outside [0, %d]", model.ErrInvalidArgument, u.Key(), m.format.MaxKey())
	}
	if v, ok := u.Value(); ok && len(v) > m.format.MaxValueLen() {
		return fmt.Errorf("%w: value of %d bytes exceeds %d", model.ErrInvalidArgument, len(v), m.format.MaxValueLen())
	}
	return nil
}
