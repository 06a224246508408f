package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/felixgeelhaar/trilhas/internal/domain"
)

// ValidationError lists every problem found while building a catalog.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid catalog: %d problem(s):\n  %s", len(e.Problems), strings.Join(e.Problems, "\n  "))
}

func (e *ValidationError) Unwrap() error { return domain.ErrInvalidCatalog }

type builder struct {
	cat      *Catalog
	problems []string
}

func (b *builder) addf(format string, args ...any) {
	b.problems = append(b.problems, fmt.Sprintf(format, args...))
}

// Build assembles trail files into a validated Catalog. All problems are
// reported together in a *ValidationError.
func Build(files []*TrailFile) (*Catalog, error) {
	b := &builder{cat: newCatalog()}
	for _, f := range files {
		b.trail(f)
	}
	if len(b.problems) > 0 {
		return nil, &ValidationError{Problems: b.problems}
	}
	b.cat.sortTrails()
	return b.cat, nil
}

func (b *builder) trail(f *TrailFile) {
	where := "trail " + f.ID
	if f.path != "" {
		where = f.path + ": " + where
	}
	if f.ID == "" {
		b.addf("%s: id is required", where)
		return
	}
	if f.Slug == "" {
		b.addf("%s: slug is required", where)
	}
	if _, dup := b.cat.trails[f.ID]; dup {
		b.addf("%s: duplicate trail id", where)
		return
	}
	if other, dup := b.cat.slugs[f.Slug]; dup && f.Slug != "" {
		b.addf("%s: slug %q already used by trail %s", where, f.Slug, other)
	}
	if len(f.Title) == 0 {
		b.addf("%s: title is required", where)
	}
	if len(f.Blocks) == 0 {
		b.addf("%s: at least one block is required", where)
	}

	t := &domain.Trail{
		ID:         f.ID,
		Slug:       f.Slug,
		Title:      f.Title,
		Objective:  f.Objective,
		OrderIndex: f.Order,
	}
	b.cat.trails[t.ID] = t
	if f.Slug != "" {
		b.cat.slugs[f.Slug] = t.ID
	}

	orders := make([]int, len(f.Blocks))
	for i, bf := range f.Blocks {
		orders[i] = orderOr(bf.Order, i)
	}
	for _, i := range b.sequence(where+": blocks", orders) {
		if id := b.block(where, t, &f.Blocks[i], orders[i]); id != "" {
			t.BlockIDs = append(t.BlockIDs, id)
		}
	}
}

func (b *builder) block(parent string, t *domain.Trail, f *BlockFile, order int) string {
	where := fmt.Sprintf("%s: block %s", parent, f.ID)
	if f.ID == "" {
		b.addf("%s: block #%d: id is required", parent, order)
		return ""
	}
	if _, dup := b.cat.blocks[f.ID]; dup {
		b.addf("%s: duplicate block id", where)
		return ""
	}

	// The first block is always the free entry; no other block may claim it.
	free := order == 1
	if !free && f.IsFree != nil && *f.IsFree {
		b.addf("%s: only the first block of a trail may be free", where)
	}
	if len(f.Phases) == 0 {
		b.addf("%s: at least one phase is required", where)
	}

	blk := &domain.Block{
		ID:          f.ID,
		TrailID:     t.ID,
		Title:       f.Title,
		Description: f.Description,
		OrderIndex:  order,
		IsFree:      free,
	}
	b.cat.blocks[blk.ID] = blk

	orders := make([]int, len(f.Phases))
	for i, pf := range f.Phases {
		orders[i] = orderOr(pf.Order, i)
	}
	reviews := 0
	for _, i := range b.sequence(where+": phases", orders) {
		pf := &f.Phases[i]
		if id := b.phase(where, blk, pf, orders[i], len(f.Phases)); id != "" {
			blk.PhaseIDs = append(blk.PhaseIDs, id)
			if b.cat.phases[id].IsReview() {
				reviews++
			}
		}
	}
	if reviews > 1 {
		b.addf("%s: at most one review phase is allowed, found %d", where, reviews)
	}

	orders = make([]int, len(f.Readings))
	for i, rf := range f.Readings {
		orders[i] = orderOr(rf.Order, i)
	}
	for _, i := range b.sequence(where+": readings", orders) {
		rf := &f.Readings[i]
		if rf.ID == "" {
			b.addf("%s: reading #%d: id is required", where, orders[i])
			continue
		}
		if _, dup := b.cat.readings[rf.ID]; dup {
			b.addf("%s: duplicate reading id %s", where, rf.ID)
			continue
		}
		b.cat.readings[rf.ID] = &domain.Reading{
			ID:         rf.ID,
			BlockID:    blk.ID,
			OrderIndex: orders[i],
			Title:      rf.Title,
			Author:     rf.Author,
			URL:        rf.URL,
			Notes:      rf.Notes,
		}
		blk.ReadingIDs = append(blk.ReadingIDs, rf.ID)
	}
	return blk.ID
}

func (b *builder) phase(parent string, blk *domain.Block, f *PhaseFile, order, siblings int) string {
	where := fmt.Sprintf("%s: phase %s", parent, f.ID)
	if f.ID == "" {
		b.addf("%s: phase #%d: id is required", parent, order)
		return ""
	}
	if _, dup := b.cat.phases[f.ID]; dup {
		b.addf("%s: duplicate phase id", where)
		return ""
	}

	typ := domain.PhaseType(f.Type)
	if typ == "" {
		typ = domain.PhaseRegular
	}
	if !typ.Valid() {
		b.addf("%s: unknown phase type %q", where, f.Type)
	}
	if typ == domain.PhaseReview && order != siblings {
		b.addf("%s: review phase must be the last phase of its block", where)
	}
	if len(f.Challenges) == 0 {
		b.addf("%s: at least one challenge is required", where)
	}

	ph := &domain.Phase{
		ID:          f.ID,
		BlockID:     blk.ID,
		Title:       f.Title,
		Description: f.Description,
		OrderIndex:  order,
		Type:        typ,
	}
	b.cat.phases[ph.ID] = ph

	orders := make([]int, len(f.Challenges))
	for i, cf := range f.Challenges {
		orders[i] = orderOr(cf.Order, i)
	}
	for _, i := range b.sequence(where+": challenges", orders) {
		if id := b.challenge(where, ph, &f.Challenges[i], orders[i], len(f.Challenges)); id != "" {
			ph.ChallengeIDs = append(ph.ChallengeIDs, id)
		}
	}
	return ph.ID
}

func (b *builder) challenge(parent string, ph *domain.Phase, f *ChallengeFile, order, siblings int) string {
	where := fmt.Sprintf("%s: challenge %s", parent, f.ID)
	if f.ID == "" {
		b.addf("%s: challenge #%d: id is required", parent, order)
		return ""
	}
	if _, dup := b.cat.challenges[f.ID]; dup {
		b.addf("%s: duplicate challenge id", where)
		return ""
	}

	typ := domain.ChallengeType(f.Type)
	if !typ.Valid() {
		b.addf("%s: unknown challenge type %q", where, f.Type)
		return ""
	}

	final := order == siblings
	if f.IsFinal != nil && *f.IsFinal != final {
		if final {
			b.addf("%s: the last challenge of a phase must be final", where)
		} else {
			b.addf("%s: only the last challenge of a phase may be final", where)
		}
	}

	payload, err := decodePayload(typ, &f.Payload)
	if err != nil {
		b.addf("%s: %v", where, err)
		return ""
	}

	b.cat.challenges[f.ID] = &domain.Challenge{
		ID:         f.ID,
		PhaseID:    ph.ID,
		OrderIndex: order,
		Type:       typ,
		IsFinal:    final,
		Payload:    payload,
	}
	return f.ID
}

// sequence checks that orders are exactly 1..n and returns the item indexes
// sorted by order.
func (b *builder) sequence(where string, orders []int) []int {
	idx := make([]int, len(orders))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return orders[idx[i]] < orders[idx[j]] })

	for pos, i := range idx {
		if orders[i] != pos+1 {
			b.addf("%s: order indices must be unique and contiguous from 1, got %v", where, sortedCopy(orders))
			break
		}
	}
	return idx
}

func orderOr(order, position int) int {
	if order == 0 {
		return position + 1
	}
	return order
}

func sortedCopy(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	return out
}
