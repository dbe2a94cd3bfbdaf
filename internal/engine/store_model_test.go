package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storemodel/internal/format"
	"storemodel/internal/model"
)

// 10 words, keys up to 100, values up to 8 bytes, 4 updates per transaction.
func smallFormat(t *testing.T) format.Format {
	t.Helper()
	return formatWithCapacity(t, 10)
}

func formatWithCapacity(t *testing.T, capacity int) format.Format {
	t.Helper()
	f, err := format.New(format.Config{WordSize: 4, TotalCapacity: capacity, MaxKey: 100, MaxValueLen: 8, MaxUpdates: 4})
	require.NoError(t, err)
	return f
}

func bytesOf(n int) []byte {
	return make([]byte, n)
}

func TestScenarioLoneInsert(t *testing.T) {
	m := New(smallFormat(t))

	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 1, V: []byte{0, 0, 0, 0}})))

	require.Equal(t, map[int][]byte{1: {0, 0, 0, 0}}, m.Content())
	require.Equal(t, 2, m.entrySize([]byte{0, 0, 0, 0}))
	require.Equal(t, model.Ratio{Used: 2, Total: 10}, m.Capacity())
	require.Equal(t, 8, m.Capacity().Remaining())
}

func TestScenarioDuplicateKeys(t *testing.T) {
	m := New(smallFormat(t))
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 1, V: []byte{0, 0, 0, 0}})))
	before := m.Content()

	err := m.Apply(model.Tx(
		model.Insert{K: 2, V: []byte{1}},
		model.Insert{K: 2, V: []byte{2}},
	))
	require.ErrorIs(t, err, model.ErrInvalidArgument)
	require.Equal(t, before, m.Content())

	// Insert and remove of the same key are just as ambiguous.
	err = m.Apply(model.Tx(model.Insert{K: 1, V: nil}, model.Remove{K: 1}))
	require.ErrorIs(t, err, model.ErrInvalidArgument)
	require.Equal(t, before, m.Content())
}

func TestScenarioPrepareTooMuch(t *testing.T) {
	m := New(smallFormat(t))
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 1, V: []byte{0, 0, 0, 0}})))
	before, capBefore := m.Content(), m.Capacity()

	require.ErrorIs(t, m.Apply(model.Prepare{Length: 9}), model.ErrNoCapacity)
	require.Equal(t, before, m.Content())
	require.Equal(t, capBefore, m.Capacity())

	require.NoError(t, m.Apply(model.Prepare{Length: 8}))
	require.NoError(t, m.Apply(model.Prepare{Length: 0}))
	require.Equal(t, capBefore, m.Capacity())
}

func TestScenarioClear(t *testing.T) {
	m := New(smallFormat(t))
	v1, v5 := []byte{1}, []byte{5, 5, 5, 5, 5}
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 1, V: v1}, model.Insert{K: 5, V: v5})))
	usedBefore := m.Capacity().Used

	require.NoError(t, m.Apply(model.Clear{MinKey: 2}))

	require.Equal(t, map[int][]byte{1: v1}, m.Content())
	require.Equal(t, usedBefore-m.entrySize(v5), m.Capacity().Used)
}

func TestScenarioEmptyTransactionWhenFull(t *testing.T) {
	m := New(smallFormat(t))
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 1, V: bytesOf(4)}))) // 2
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 2, V: bytesOf(8)}))) // 3
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 3, V: bytesOf(8)}))) // 3
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 4, V: bytesOf(1)}))) // 2
	require.Equal(t, 0, m.Capacity().Remaining())

	require.NoError(t, m.Apply(model.Tx()))
	require.Equal(t, 4, m.Len())
}

func TestLoneRemoveIsFree(t *testing.T) {
	m := New(smallFormat(t))
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 1, V: bytesOf(8)}, model.Insert{K: 2, V: bytesOf(8)}))) // 1+3+3
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 3, V: bytesOf(4)})))                                  // 2
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 4, V: bytesOf(1)})))                                  // 2
	require.Equal(t, 0, m.Capacity().Remaining())

	// Two removals cost a marker word plus one word each.
	err := m.Apply(model.Tx(model.Remove{K: 1}, model.Remove{K: 2}))
	require.ErrorIs(t, err, model.ErrNoCapacity)
	require.Equal(t, 4, m.Len())

	// A single removal costs nothing.
	require.NoError(t, m.Apply(model.Tx(model.Remove{K: 1})))
	require.Equal(t, []int{2, 3, 4}, m.Keys())

	// Removing an absent key is not an error.
	require.NoError(t, m.Apply(model.Tx(model.Remove{K: 99})))
}

func TestTransactionCost(t *testing.T) {
	tcs := []struct {
		name    string
		updates []model.Update
		cost    int
	}{
		{"empty", nil, 0},
		{"lone insert", []model.Update{model.Insert{K: 1, V: bytesOf(4)}}, 2},
		{"lone empty insert", []model.Update{model.Insert{K: 1}}, 1},
		{"lone remove", []model.Update{model.Remove{K: 1}}, 0},
		{"insert and remove", []model.Update{model.Insert{K: 1, V: bytesOf(4)}, model.Remove{K: 2}}, 4},
		{"two removes", []model.Update{model.Remove{K: 1}, model.Remove{K: 2}}, 3},
		{"two inserts", []model.Update{model.Insert{K: 1, V: bytesOf(5)}, model.Insert{K: 2, V: bytesOf(8)}}, 7},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			m := New(smallFormat(t))
			require.Equal(t, tc.cost, m.transactionCost(tc.updates))

			if tc.cost == 0 {
				require.NoError(t, New(formatWithCapacity(t, 0)).Apply(model.Tx(tc.updates...)))
				return
			}
			// Exactly enough room succeeds, one word less fails.
			require.NoError(t, New(formatWithCapacity(t, tc.cost)).Apply(model.Tx(tc.updates...)))
			short := New(formatWithCapacity(t, tc.cost-1))
			require.ErrorIs(t, short.Apply(model.Tx(tc.updates...)), model.ErrNoCapacity)
			require.Zero(t, short.Len())
		})
	}
}

func TestOverwriteIsChargedInFull(t *testing.T) {
	m := New(formatWithCapacity(t, 5))
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 1, V: bytesOf(8)})))
	require.Equal(t, 2, m.Capacity().Remaining())

	// The new value needs 3 free words even though the old one is replaced.
	require.ErrorIs(t, m.Apply(model.Tx(model.Insert{K: 1, V: bytesOf(8)})), model.ErrNoCapacity)

	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 1, V: []byte("ab")})))
	require.Equal(t, map[int][]byte{1: []byte("ab")}, m.Content())
	require.Equal(t, 2, m.Capacity().Used)
}

func TestTransactionValidation(t *testing.T) {
	tcs := []struct {
		name    string
		updates []model.Update
	}{
		{"too many updates", []model.Update{
			model.Remove{K: 1}, model.Remove{K: 2}, model.Remove{K: 3}, model.Remove{K: 4}, model.Remove{K: 5},
		}},
		{"key above max", []model.Update{model.Insert{K: 101, V: nil}}},
		{"remove above max", []model.Update{model.Remove{K: 101}}},
		{"negative key", []model.Update{model.Remove{K: -1}}},
		{"value too long", []model.Update{model.Insert{K: 1, V: bytesOf(9)}}},
		{"one bad update among good", []model.Update{model.Insert{K: 1, V: nil}, model.Insert{K: 2, V: bytesOf(9)}}},
		{"duplicate removes", []model.Update{model.Remove{K: 3}, model.Remove{K: 3}}},
		{"nil update", []model.Update{model.Insert{K: 1, V: nil}, nil}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			m := New(smallFormat(t))
			require.NoError(t, m.Apply(model.Tx(model.Insert{K: 7, V: []byte{7}})))
			before := m.Content()

			require.ErrorIs(t, m.Apply(model.Tx(tc.updates...)), model.ErrInvalidArgument)
			require.Equal(t, before, m.Content())
		})
	}
}

func TestValidationPrecedesCapacity(t *testing.T) {
	m := New(formatWithCapacity(t, 0))

	require.ErrorIs(t, m.Apply(model.Tx(model.Insert{K: 101, V: nil})), model.ErrInvalidArgument)
	require.ErrorIs(t, m.Apply(model.Tx(model.Insert{K: 1}, model.Insert{K: 1})), model.ErrInvalidArgument)
	require.ErrorIs(t, m.Apply(model.Tx(model.Insert{K: 1})), model.ErrNoCapacity)
}

func TestLimitsAreInclusive(t *testing.T) {
	m := New(smallFormat(t))
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 100, V: bytesOf(8)})))
	require.NoError(t, m.Apply(model.Tx(
		model.Remove{K: 0}, model.Remove{K: 1}, model.Remove{K: 2}, model.Remove{K: 3},
	)))
	require.NoError(t, m.Apply(model.Clear{MinKey: 100}))
	require.Zero(t, m.Len())
}

func TestClearValidation(t *testing.T) {
	m := New(smallFormat(t))
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 0, V: nil}, model.Insert{K: 100, V: nil})))

	require.ErrorIs(t, m.Apply(model.Clear{MinKey: 101}), model.ErrInvalidArgument)
	require.ErrorIs(t, m.Apply(model.Clear{MinKey: -1}), model.ErrInvalidArgument)
	require.Equal(t, []int{0, 100}, m.Keys())

	require.NoError(t, m.Apply(model.Clear{MinKey: 0}))
	require.Zero(t, m.Len())
	require.Zero(t, m.Capacity().Used)
}

func TestClearIgnoresCapacity(t *testing.T) {
	m := New(formatWithCapacity(t, 3))
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 4, V: bytesOf(8)})))
	require.Zero(t, m.Capacity().Remaining())

	require.NoError(t, m.Apply(model.Clear{MinKey: 5}))
	require.Equal(t, []int{4}, m.Keys())
	require.NoError(t, m.Apply(model.Clear{MinKey: 4}))
	require.Empty(t, m.Keys())
}

func TestPrepareNegativeLength(t *testing.T) {
	m := New(smallFormat(t))
	require.ErrorIs(t, m.Apply(model.Prepare{Length: -1}), model.ErrInvalidArgument)
}

func TestContentIsACopy(t *testing.T) {
	m := New(smallFormat(t))
	value := []byte{1, 2, 3}
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 1, V: value})))

	// Neither the caller's slice nor a returned view reaches the model.
	value[0] = 9
	c := m.Content()
	c[1][1] = 9
	c[2] = []byte{2}
	got, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got)
	got[2] = 9
	assert.Equal(t, map[int][]byte{1: {1, 2, 3}}, m.Content())

	_, ok = m.Get(2)
	assert.False(t, ok)
}

func TestClone(t *testing.T) {
	m := New(smallFormat(t))
	require.NoError(t, m.Apply(model.Tx(model.Insert{K: 1, V: []byte{1}})))

	c := m.Clone()
	require.NoError(t, c.Apply(model.Tx(model.Insert{K: 2, V: []byte{2}})))
	require.NoError(t, c.Apply(model.Tx(model.Remove{K: 1})))

	assert.Equal(t, map[int][]byte{1: {1}}, m.Content())
	assert.Equal(t, map[int][]byte{2: {2}}, c.Content())
	assert.Equal(t, m.Format(), c.Format())
}
