// Package format describes the fixed limits of a store: how many words it holds,
// how large keys and values may be, and how many updates a transaction may carry.
//
// A Format is an immutable value. It is built once, handed to a model, and may be
// shared read-only between as many models as needed.
package format

import (
	"errors"
	"fmt"
)

var ErrInvalidFormat = errors.New("invalid format")

// Format holds the limits of a store. The zero value is not usable; build one
// with New or FromGeometry.
type Format struct {
	wordSize      int
	totalCapacity int
	maxKey        int
	maxValueLen   int
	maxUpdates    int
}

// New validates cfg and returns the corresponding Format.
func New(cfg Config) (Format, error) {
	if cfg.WordSize <= 0 {
		return Format{}, fmt.Errorf("%w: word size must be positive, got %d", ErrInvalidFormat, cfg.WordSize)
	}
	if cfg.TotalCapacity < 0 {
		return Format{}, fmt.Errorf("%w: total capacity must not be negative, got %d", ErrInvalidFormat, cfg.TotalCapacity)
	}
	if cfg.MaxKey < 0 {
		return Format{}, fmt.Errorf("%w: max key must not be negative, got %d", ErrInvalidFormat, cfg.MaxKey)
	}
	if cfg.MaxValueLen < 0 {
		return Format{}, fmt.Errorf("%w: max value length must not be negative, got %d", ErrInvalidFormat, cfg.MaxValueLen)
	}
	if cfg.MaxUpdates < 0 {
		return Format{}, fmt.Errorf("%w: max updates must not be negative, got %d", ErrInvalidFormat, cfg.MaxUpdates)
	}
	return Format{
		wordSize:      cfg.WordSize,
		totalCapacity: cfg.TotalCapacity,
		maxKey:        cfg.MaxKey,
		maxValueLen:   cfg.MaxValueLen,
		maxUpdates:    cfg.MaxUpdates,
	}, nil
}

// MustNew is like New but panics on an invalid configuration.
func MustNew(cfg Config) Format {
	f, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return f
}

// TotalCapacity is the number of words available to entries when the store is
// fully compacted.
func (f Format) TotalCapacity() int { return f.totalCapacity }

func (f Format) MaxKey() int { return f.maxKey }

// MaxValueLen is in bytes.
func (f Format) MaxValueLen() int { return f.maxValueLen }

func (f Format) MaxUpdates() int { return f.maxUpdates }

func (f Format) WordSize() int { return f.wordSize }

// BytesToWords returns the number of words needed to hold n bytes.
func (f Format) BytesToWords(n int) int {
	return (n + f.wordSize - 1) / f.wordSize
}

// Config returns the limits of f as a Config.
func (f Format) Config() Config {
	return Config{
		WordSize:      f.wordSize,
		TotalCapacity: f.totalCapacity,
		MaxKey:        f.maxKey,
		MaxValueLen:   f.maxValueLen,
		MaxUpdates:    f.maxUpdates,
	}
}

func (f Format) String() string {
	return fmt.Sprintf("format{capacity=%d words, max_key=%d, max_value_len=%d, max_updates=%d, word=%dB}",
		f.totalCapacity, f.maxKey, f.maxValueLen, f.maxUpdates, f.wordSize)
}
