package nestedset

import (
	"fmt"
	"log/slog"
)

const defaultCacheSize = 4096

// Config names the structural columns of the tree table. It is copied into
// the Tree by NewTree and cannot be changed afterwards.
type Config struct {
	LeftField       string
	RightField      string
	ParentField     string
	LevelField      string
	PrimaryKeyField string

	// CacheSize bounds the node cache; 0 means the default.
	CacheSize int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the column layout of the classic nested set table:
// left_key, right_key, parent_id, level, id.
func DefaultConfig() Config {
	return Config{
		LeftField:       "left_key",
		RightField:      "right_key",
		ParentField:     "parent_id",
		LevelField:      "level",
		PrimaryKeyField: "id",
	}
}

func (c Config) structural() []string {
	return []string{c.LeftField, c.RightField, c.ParentField, c.LevelField, c.PrimaryKeyField}
}

// Validate checks that the five structural field names are set and distinct.
func (c Config) Validate() error {
	names := map[string]string{
		"left":        c.LeftField,
		"right":       c.RightField,
		"parent":      c.ParentField,
		"level":       c.LevelField,
		"primary key": c.PrimaryKeyField,
	}
	seen := make(map[string]string, len(names))
	for _, opt := range []string{"left", "right", "parent", "level", "primary key"} {
		name := names[opt]
		if name == "" {
			return fmt.Errorf("%w: %s field name is empty", ErrInvalidConfig, opt)
		}
		if other, ok := seen[name]; ok {
			return fmt.Errorf("%w: %s and %s fields are both %q", ErrInvalidConfig, other, opt, name)
		}
		seen[name] = opt
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("%w: negative cache size %d", ErrInvalidConfig, c.CacheSize)
	}
	return nil
}

func (c Config) isStructural(field string) bool {
	for _, f := range c.structural() {
		if f == field {
			return true
		}
	}
	return false
}
