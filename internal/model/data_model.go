// Package model holds the vocabulary shared by the store model, the journal and
// the HTTP surface: single-key updates, store-level operations, capacity ratios
// and the two ways an operation can be refused.
package model

import "fmt"

// UpdateKind tags the variants of Update on the wire and in the journal.
type UpdateKind byte

const (
	INSERT UpdateKind = iota
	REMOVE
)

// OpKind tags the variants of Operation on the wire and in the journal.
type OpKind byte

const (
	TRANSACTION OpKind = iota
	CLEAR
	PREPARE
)

func (k UpdateKind) String() string {
	switch k {
	case INSERT:
		return "insert"
	case REMOVE:
		return "remove"
	default:
		return fmt.Sprintf("UpdateKind(%d)", byte(k))
	}
}

func (k OpKind) String() string {
	switch k {
	case TRANSACTION:
		return "transaction"
	case CLEAR:
		return "clear"
	case PREPARE:
		return "prepare"
	default:
		return fmt.Sprintf("OpKind(%d)", byte(k))
	}
}

// Update is a mutation of a single key. It is one of Insert or Remove; no
// other implementation exists outside this package.
type Update interface {
	Key() int
	// Value returns the inserted value, or false for a removal.
	Value() ([]byte, bool)
	Kind() UpdateKind

	isUpdate()
}

// Insert creates or overwrites the value of Key.
type Insert struct {
	K int
	V []byte
}

// Remove deletes Key. Removing an absent key is not an error.
type Remove struct {
	K int
}

func (u Insert) Key() int              { return u.K }
func (u Insert) Value() ([]byte, bool) { return u.V, true }
func (Insert) Kind() UpdateKind        { return INSERT }
func (Insert) isUpdate()               {}

func (u Remove) Key() int            { return u.K }
func (Remove) Value() ([]byte, bool) { return nil, false }
func (Remove) Kind() UpdateKind      { return REMOVE }
func (Remove) isUpdate()             {}

// Operation is a store-level mutation. It is one of Transaction, Clear or
// Prepare.
type Operation interface {
	Kind() OpKind

	isOperation()
}

// Transaction applies a batch of updates on pairwise distinct keys atomically.
type Transaction struct {
	Updates []Update
}

// Clear deletes every entry whose key is at least MinKey.
type Clear struct {
	MinKey int
}

// Prepare asks for Length words to be immediately available.
type Prepare struct {
	Length int
}

func (Transaction) Kind() OpKind { return TRANSACTION }
func (Transaction) isOperation() {}
func (Clear) Kind() OpKind       { return CLEAR }
func (Clear) isOperation()       {}
func (Prepare) Kind() OpKind     { return PREPARE }
func (Prepare) isOperation()     {}

// Tx is shorthand for a Transaction over updates.
func Tx(updates ...Update) Transaction {
	return Transaction{Updates: updates}
}

func (op Transaction) String() string {
	return fmt.Sprintf("transaction(%d updates)", len(op.Updates))
}

func (op Clear) String() string {
	return fmt.Sprintf("clear(min_key=%d)", op.MinKey)
}

func (op Prepare) String() string {
	return fmt.Sprintf("prepare(length=%d)", op.Length)
}

// Ratio is a used/total pair of word counts.
type Ratio struct {
	Used  int `json:"used"`
	Total int `json:"total"`
}

func (r Ratio) Remaining() int {
	return r.Total - r.Used
}
