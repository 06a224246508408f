package catalog

import (
	"github.com/felixgeelhaar/trilhas/internal/domain"
	"gopkg.in/yaml.v3"
)

// TrailFile is the YAML layout of one trail file.
type TrailFile struct {
	ID        string               `yaml:"id"`
	Slug      string               `yaml:"slug"`
	Title     domain.LocalizedText `yaml:"title"`
	Objective domain.LocalizedText `yaml:"objective"`
	Order     int                  `yaml:"order"`
	Blocks    []BlockFile          `yaml:"blocks"`

	path string
}

// BlockFile is the YAML layout of a block.
type BlockFile struct {
	ID          string               `yaml:"id"`
	Title       domain.LocalizedText `yaml:"title"`
	Description domain.LocalizedText `yaml:"description"`
	Order       int                  `yaml:"order"` // defaults to list position
	IsFree      *bool                `yaml:"is_free"`
	Phases      []PhaseFile          `yaml:"phases"`
	Readings    []ReadingFile        `yaml:"readings"`
}

// PhaseFile is the YAML layout of a phase.
type PhaseFile struct {
	ID          string               `yaml:"id"`
	Title       domain.LocalizedText `yaml:"title"`
	Description domain.LocalizedText `yaml:"description"`
	Order       int                  `yaml:"order"`
	Type        string               `yaml:"type"` // regular (default) or review
	Challenges  []ChallengeFile      `yaml:"challenges"`
}

// ChallengeFile is the YAML layout of a challenge. Payload is kept as a raw
// node so it can be checked against the schema of its type.
type ChallengeFile struct {
	ID      string    `yaml:"id"`
	Order   int       `yaml:"order"`
	Type    string    `yaml:"type"`
	IsFinal *bool     `yaml:"is_final"`
	Payload yaml.Node `yaml:"payload"`
}

// ReadingFile is the YAML layout of a reading.
type ReadingFile struct {
	ID     string               `yaml:"id"`
	Order  int                  `yaml:"order"`
	Title  domain.LocalizedText `yaml:"title"`
	Author string               `yaml:"author"`
	URL    string               `yaml:"url"`
	Notes  domain.LocalizedText `yaml:"notes"`
}
