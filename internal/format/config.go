package format

// Config holds the raw limits of a store as they appear in configuration files
// and API requests.
type Config struct {
	WordSize      int `yaml:"word_size" json:"word_size"`
	TotalCapacity int `yaml:"total_capacity" json:"total_capacity"` // words
	MaxKey        int `yaml:"max_key" json:"max_key"`
	MaxValueLen   int `yaml:"max_value_len" json:"max_value_len"` // bytes
	MaxUpdates    int `yaml:"max_updates" json:"max_updates"`
}

// DefaultConfig returns the limits of a 20 page store with 4KiB pages and 4 byte
// words.
func DefaultConfig() Config {
	return DefaultGeometry().Config()
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.WordSize != 0 {
		c.WordSize = source.WordSize
	}
	if source.TotalCapacity != 0 {
		c.TotalCapacity = source.TotalCapacity
	}
	if source.MaxKey != 0 {
		c.MaxKey = source.MaxKey
	}
	if source.MaxValueLen != 0 {
		c.MaxValueLen = source.MaxValueLen
	}
	if source.MaxUpdates != 0 {
		c.MaxUpdates = source.MaxUpdates
	}
}
