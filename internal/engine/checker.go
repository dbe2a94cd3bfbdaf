package engine

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"storemodel/internal/model"
)

// Driver is the store implementation under test.
type Driver interface {
	// Apply performs op and returns nil, or an error wrapping
	// model.ErrInvalidArgument or model.ErrNoCapacity. Any other error is a
	// failure of the driver itself.
	Apply(ctx context.Context, op model.Operation) error
	// Content returns the full key to value content of the store.
	Content(ctx context.Context) (map[int][]byte, error)
}

// Divergence reports the first step at which a driver disagreed with the model.
type Divergence struct {
	Step   int
	Op     model.Operation
	Model  model.Outcome
	Driver model.Outcome
	// Key is the smallest key whose content differs, when HasKey is set.
	Key    int
	HasKey bool
}

func (d *Divergence) Error() string {
	if d.Model != d.Driver {
		return fmt.Sprintf("step %d %v: model returned %v, driver returned %v", d.Step, d.Op, d.Model, d.Driver)
	}
	return fmt.Sprintf("step %d %v: content differs at key %d", d.Step, d.Op, d.Key)
}

// Checker applies every operation to both a model and a driver and compares
// their outcomes and content.
type Checker struct {
	model  *Model
	driver Driver
	log    *zap.Logger
	step   int
}

// NewChecker returns a checker comparing driver against an empty model of f.
// The driver is expected to start empty as well.
func NewChecker(f Format, driver Driver, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{model: New(f), driver: driver, log: log}
}

// Model returns the model the driver is compared against.
func (c *Checker) Model() *Model {
	return c.model
}

// Step applies op to the model and the driver. It returns a *Divergence if they
// disagree.
func (c *Checker) Step(ctx context.Context, op model.Operation) error {
	step := c.step
	c.step++

	want, err := model.OutcomeOf(c.model.Apply(op))
	if err != nil {
		return fmt.Errorf("model apply: %w", err)
	}
	got, err := model.OutcomeOf(c.driver.Apply(ctx, op))
	if err != nil {
		return fmt.Errorf("driver apply: %w", err)
	}
	c.log.Debug("applied operation",
		zap.Int("step", step),
		zap.Stringer("op", op.Kind()),
		zap.Stringer("outcome", want))
	if want != got {
		return &Divergence{Step: step, Op: op, Model: want, Driver: got}
	}

	content, err := c.driver.Content(ctx)
	if err != nil {
		return fmt.Errorf("driver content: %w", err)
	}
	if key, ok := firstDifference(c.model.content, content); ok {
		return &Divergence{Step: step, Op: op, Model: want, Driver: got, Key: key, HasKey: true}
	}
	return nil
}

// Run steps through ops and stops at the first divergence or error.
func (c *Checker) Run(ctx context.Context, ops []model.Operation) error {
	for _, op := range ops {
		if err := c.Step(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func firstDifference(a, b map[int][]byte) (int, bool) {
	keys := slices.Sorted(maps.Keys(a))
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		va, oka := a[k]
		vb, okb := b[k]
		if oka != okb || !bytes.Equal(va, vb) {
			return k, true
		}
	}
	return 0, false
}
