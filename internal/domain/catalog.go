package domain

import (
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultLocale is the locale content falls back to when a translation is missing.
const DefaultLocale = "pt-BR"

// PhaseType distinguishes ordinary phases from the terminal review phase of a block.
type PhaseType string

const (
	PhaseRegular PhaseType = "regular"
	PhaseReview  PhaseType = "review"
)

// Valid reports whether t is a known phase type.
func (t PhaseType) Valid() bool {
	return t == PhaseRegular || t == PhaseReview
}

// LocalizedText maps a locale tag to its translation.
type LocalizedText map[string]string

// In returns the text for locale, falling back to fallback and then to the
// first locale in lexical order. An empty map yields "".
func (l LocalizedText) In(locale, fallback string) string {
	if s, ok := l[locale]; ok {
		return s
	}
	if s, ok := l[fallback]; ok {
		return s
	}
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return l[keys[0]]
}

// UnmarshalYAML accepts either a plain scalar (stored under DefaultLocale) or
// a locale map.
func (l *LocalizedText) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = LocalizedText{DefaultLocale: node.Value}
		return nil
	}
	m := map[string]string{}
	if err := node.Decode(&m); err != nil {
		return fmt.Errorf("localized text: %w", err)
	}
	*l = m
	return nil
}

// UnmarshalJSON mirrors UnmarshalYAML for JSON documents.
func (l *LocalizedText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = LocalizedText{DefaultLocale: s}
		return nil
	}
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("localized text: %w", err)
	}
	*l = m
	return nil
}

// Trail is the top-level curriculum unit.
type Trail struct {
	ID         string
	Slug       string
	Title      LocalizedText
	Objective  LocalizedText
	OrderIndex int
	BlockIDs   []string // ordered by Block.OrderIndex
}

// Block is a themed unit of a trail. TrailID is a back-reference only.
type Block struct {
	ID          string
	TrailID     string
	Title       LocalizedText
	Description LocalizedText
	OrderIndex  int
	IsFree      bool
	PhaseIDs    []string // ordered by Phase.OrderIndex
	ReadingIDs  []string
}

// IsFirst reports whether the block opens its trail.
func (b *Block) IsFirst() bool { return b.OrderIndex == 1 }

// Phase is an ordered group of challenges within a block.
type Phase struct {
	ID           string
	BlockID      string
	Title        LocalizedText
	Description  LocalizedText
	OrderIndex   int
	Type         PhaseType
	ChallengeIDs []string // ordered by Challenge.OrderIndex
}

// IsFirst reports whether the phase opens its block.
func (p *Phase) IsFirst() bool { return p.OrderIndex == 1 }

// IsReview reports whether the phase is the block's review phase.
func (p *Phase) IsReview() bool { return p.Type == PhaseReview }

// Reading is a supplementary text attached to a block.
type Reading struct {
	ID         string
	BlockID    string
	OrderIndex int
	Title      LocalizedText
	Author     string
	URL        string
	Notes      LocalizedText
}
