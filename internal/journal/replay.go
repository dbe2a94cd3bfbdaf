package journal

import (
	"storemodel/internal/engine"
	"storemodel/internal/model"
)

// Replay applies records, in order, to a fresh model of f. It returns the
// resulting model, and a *engine.Divergence for the first record whose stored
// outcome differs from the model's. The Driver side of the divergence is the
// recorded outcome.
func Replay(records []Record, f engine.Format) (*engine.Model, error) {
	m := engine.New(f)
	for i, rec := range records {
		got, err := model.OutcomeOf(m.Apply(rec.Op))
		if err != nil {
			return m, err
		}
		if got != rec.Outcome {
			return m, &engine.Divergence{Step: i, Op: rec.Op, Model: got, Driver: rec.Outcome}
		}
	}
	return m, nil
}
