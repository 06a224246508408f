// Package catalog holds the read-only content hierarchy: trails, blocks,
// phases, challenges and readings.
//
// Entities live in flat tables keyed by id; parents list child ids in order
// and children carry a back-reference to their parent.
package catalog

import (
	"fmt"
	"sort"

	"github.com/felixgeelhaar/trilhas/internal/domain"
)

// Catalog is an immutable, validated content hierarchy.
type Catalog struct {
	trails     map[string]*domain.Trail
	slugs      map[string]string // slug -> trail id
	trailOrder []string
	blocks     map[string]*domain.Block
	phases     map[string]*domain.Phase
	challenges map[string]*domain.Challenge
	readings   map[string]*domain.Reading
}

func newCatalog() *Catalog {
	return &Catalog{
		trails:     make(map[string]*domain.Trail),
		slugs:      make(map[string]string),
		blocks:     make(map[string]*domain.Block),
		phases:     make(map[string]*domain.Phase),
		challenges: make(map[string]*domain.Challenge),
		readings:   make(map[string]*domain.Reading),
	}
}

// Trails returns every trail ordered by order index, then slug.
func (c *Catalog) Trails() []*domain.Trail {
	out := make([]*domain.Trail, len(c.trailOrder))
	for i, id := range c.trailOrder {
		out[i] = c.trails[id]
	}
	return out
}

// Trail returns a trail by id or slug.
func (c *Catalog) Trail(idOrSlug string) (*domain.Trail, error) {
	if t, ok := c.trails[idOrSlug]; ok {
		return t, nil
	}
	if id, ok := c.slugs[idOrSlug]; ok {
		return c.trails[id], nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrTrailNotFound, idOrSlug)
}

// Block returns a block by id.
func (c *Catalog) Block(id string) (*domain.Block, error) {
	b, ok := c.blocks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBlockNotFound, id)
	}
	return b, nil
}

// Phase returns a phase by id.
func (c *Catalog) Phase(id string) (*domain.Phase, error) {
	p, ok := c.phases[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPhaseNotFound, id)
	}
	return p, nil
}

// Challenge returns a challenge by id.
func (c *Catalog) Challenge(id string) (*domain.Challenge, error) {
	ch, ok := c.challenges[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrChallengeNotFound, id)
	}
	return ch, nil
}

// Locate resolves a challenge and every ancestor up to its trail.
func (c *Catalog) Locate(challengeID string) (*domain.Challenge, *domain.Phase, *domain.Block, *domain.Trail, error) {
	ch, err := c.Challenge(challengeID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	phase, err := c.Phase(ch.PhaseID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	block, err := c.Block(phase.BlockID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	trail, err := c.Trail(block.TrailID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return ch, phase, block, trail, nil
}

// Blocks returns the blocks of a trail in order.
func (c *Catalog) Blocks(t *domain.Trail) []*domain.Block {
	out := make([]*domain.Block, 0, len(t.BlockIDs))
	for _, id := range t.BlockIDs {
		out = append(out, c.blocks[id])
	}
	return out
}

// Phases returns the phases of a block in order.
func (c *Catalog) Phases(b *domain.Block) []*domain.Phase {
	out := make([]*domain.Phase, 0, len(b.PhaseIDs))
	for _, id := range b.PhaseIDs {
		out = append(out, c.phases[id])
	}
	return out
}

// Challenges returns the challenges of a phase in order.
func (c *Catalog) Challenges(p *domain.Phase) []*domain.Challenge {
	out := make([]*domain.Challenge, 0, len(p.ChallengeIDs))
	for _, id := range p.ChallengeIDs {
		out = append(out, c.challenges[id])
	}
	return out
}

// Readings returns the readings of a block in order.
func (c *Catalog) Readings(b *domain.Block) []*domain.Reading {
	out := make([]*domain.Reading, 0, len(b.ReadingIDs))
	for _, id := range b.ReadingIDs {
		out = append(out, c.readings[id])
	}
	return out
}

// PreviousBlock returns the block ordered right before b, or nil for the first block.
func (c *Catalog) PreviousBlock(b *domain.Block) *domain.Block {
	return c.siblingBlock(b, -1)
}

// NextBlock returns the block ordered right after b, or nil for the last block.
func (c *Catalog) NextBlock(b *domain.Block) *domain.Block {
	return c.siblingBlock(b, +1)
}

func (c *Catalog) siblingBlock(b *domain.Block, delta int) *domain.Block {
	t, ok := c.trails[b.TrailID]
	if !ok {
		return nil
	}
	// Order indices are contiguous from 1, so position = OrderIndex-1.
	i := b.OrderIndex - 1 + delta
	if i < 0 || i >= len(t.BlockIDs) {
		return nil
	}
	return c.blocks[t.BlockIDs[i]]
}

// PreviousPhase returns the phase ordered right before p, or nil for the first phase.
func (c *Catalog) PreviousPhase(p *domain.Phase) *domain.Phase {
	b, ok := c.blocks[p.BlockID]
	if !ok {
		return nil
	}
	i := p.OrderIndex - 2
	if i < 0 || i >= len(b.PhaseIDs) {
		return nil
	}
	return c.phases[b.PhaseIDs[i]]
}

// ChallengeIDs returns every challenge id in a block, phase by phase.
func (c *Catalog) ChallengeIDs(b *domain.Block) []string {
	var ids []string
	for _, pid := range b.PhaseIDs {
		ids = append(ids, c.phases[pid].ChallengeIDs...)
	}
	return ids
}

// Stats summarizes the catalog size.
type Stats struct {
	Trails     int
	Blocks     int
	Phases     int
	Challenges int
	Readings   int
}

// Stats returns entity counts.
func (c *Catalog) Stats() Stats {
	return Stats{
		Trails:     len(c.trails),
		Blocks:     len(c.blocks),
		Phases:     len(c.phases),
		Challenges: len(c.challenges),
		Readings:   len(c.readings),
	}
}

func (c *Catalog) sortTrails() {
	c.trailOrder = c.trailOrder[:0]
	for id := range c.trails {
		c.trailOrder = append(c.trailOrder, id)
	}
	sort.Slice(c.trailOrder, func(i, j int) bool {
		a, b := c.trails[c.trailOrder[i]], c.trails[c.trailOrder[j]]
		if a.OrderIndex != b.OrderIndex {
			return a.OrderIndex < b.OrderIndex
		}
		return a.Slug < b.Slug
	})
}
