package format

import "fmt"

const (
	// Words at the start of every page reserved for the page header.
	pageHeaderWords = 2

	maxValueLenCap = 1023
	geometryMaxKey = 4095
	geometryMaxUpd = 31
	minPages       = 3
)

// Geometry is the physical shape of the flash area backing a store.
type Geometry struct {
	WordSize int `yaml:"word_size" json:"word_size"`
	PageSize int `yaml:"page_size" json:"page_size"` // bytes
	NumPages int `yaml:"num_pages" json:"num_pages"`
}

func DefaultGeometry() Geometry {
	return Geometry{WordSize: 4, PageSize: 4096, NumPages: 20}
}

// Config derives the logical limits of a store laid out on g.
//
// Each page loses its header words. One page is always kept free for
// compaction, every other page spends one word on its compaction marker, and
// room for one maximal entry is held back so that an interrupted compaction can
// always finish.
func (g Geometry) Config() Config {
	virtPage := g.PageSize/g.WordSize - pageHeaderWords
	maxValueLen := min((virtPage-1)*g.WordSize, maxValueLenCap)
	maxValueWords := (maxValueLen + g.WordSize - 1) / g.WordSize
	return Config{
		WordSize:      g.WordSize,
		TotalCapacity: (g.NumPages-1)*(virtPage-1) - maxValueWords,
		MaxKey:        geometryMaxKey,
		MaxValueLen:   maxValueLen,
		MaxUpdates:    geometryMaxUpd,
	}
}

// FromGeometry validates g and returns the Format of a store laid out on it.
func FromGeometry(g Geometry) (Format, error) {
	if g.WordSize <= 0 {
		return Format{}, fmt.Errorf("%w: word size must be positive, got %d", ErrInvalidFormat, g.WordSize)
	}
	if g.PageSize%g.WordSize != 0 {
		return Format{}, fmt.Errorf("%w: page size %d is not a multiple of word size %d", ErrInvalidFormat, g.PageSize, g.WordSize)
	}
	if g.PageSize/g.WordSize <= pageHeaderWords+1 {
		return Format{}, fmt.Errorf("%w: page of %d bytes cannot hold an entry", ErrInvalidFormat, g.PageSize)
	}
	if g.NumPages < minPages {
		return Format{}, fmt.Errorf("%w: need at least %d pages, got %d", ErrInvalidFormat, minPages, g.NumPages)
	}
	cfg := g.Config()
	if cfg.TotalCapacity <= 0 {
		return Format{}, fmt.Errorf("%w: geometry leaves no capacity", ErrInvalidFormat)
	}
	return New(cfg)
}
