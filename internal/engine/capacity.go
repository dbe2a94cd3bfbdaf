package engine

import (
	"fmt"

	"storemodel/internal/model"
)

// Capacity returns the capacity according to the model.
//
// This is a logical figure: it is what a perfectly compacted store would use.
// Stale entries, tombstones and erase overhead on the real medium are not
// counted, so it is an upper bound on the free space the driver must be able
// to reach through compaction, not the raw free space on flash.
func (m *Model) Capacity() model.Ratio {
	used := 0
	for _, v := range m.content {
		used += m.entrySize(v)
	}
	return model.Ratio{Used: used, Total: m.format.TotalCapacity()}
}

// transactionCost returns how many words applying updates may consume.
func (m *Model) transactionCost(updates []model.Update) int {
	switch len(updates) {
	case 0:
		return 0
	case 1:
		// A single update is written without a marker entry.
		switch u := updates[0].(type) {
		case model.Insert:
			return m.entrySize(u.V)
		case model.Remove:
			// A lone removal never needs headroom.
			return 0
		default:
			panic(fmt.Sprintf("unknown update %T", u))
		}
	default:
		// One word for the marker entry in addition to the updates.
		cost := 1
		for _, u := range updates {
			cost += m.updateSize(u)
		}
		return cost
	}
}

// updateSize returns the words an update takes inside a multi-update
// transaction.
func (m *Model) updateSize(u model.Update) int {
	switch u := u.(type) {
	case model.Insert:
		return m.entrySize(u.V)
	case model.Remove:
		return 1
	default:
		panic(fmt.Sprintf("unknown update %T", u))
	}
}

// entrySize is one header word plus the payload words.
func (m *Model) entrySize(value []byte) int {
	return 1 + m.format.BytesToWords(len(value))
}
