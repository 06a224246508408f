package progression

import (
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/trilhas/internal/catalog"
	"github.com/felixgeelhaar/trilhas/internal/domain"
	"github.com/felixgeelhaar/trilhas/internal/unlock"
)

// TrailBlock is a block as listed inside a trail.
type TrailBlock struct {
	ID          string                `json:"id"`
	OrderIndex  int                   `json:"orderIndex"`
	Title       string                `json:"title"`
	Description *string               `json:"description"`
	IsFree      bool                  `json:"isFree"`
	HasAccess   bool                  `json:"hasAccess"`
	IsUnlocked  bool                  `json:"isUnlocked"`
	Status      domain.ProgressStatus `json:"status"`
	LockReason  *domain.LockReason    `json:"lockReason"`
}

// TrailSummary is a trail with its resolved blocks.
type TrailSummary struct {
	ID         string       `json:"id"`
	Slug       string       `json:"slug"`
	Title      string       `json:"title"`
	Objective  *string      `json:"objective"`
	OrderIndex int          `json:"orderIndex"`
	Blocks     []TrailBlock `json:"blocks"`
}

// TrailDetail is the single-trail view.
type TrailDetail = TrailSummary

// PhaseSummary is a phase as listed inside a block.
type PhaseSummary struct {
	ID              string                `json:"id"`
	OrderIndex      int                   `json:"orderIndex"`
	Title           string                `json:"title"`
	Description     *string               `json:"description"`
	PhaseType       domain.PhaseType      `json:"phaseType"`
	IsUnlocked      bool                  `json:"isUnlocked"`
	Status          domain.ProgressStatus `json:"status"`
	LockReason      *domain.LockReason    `json:"lockReason"`
	TotalChallenges int                   `json:"totalChallenges"`
}

// ReadingItem is a reading attached to a block.
type ReadingItem struct {
	ID         string  `json:"id"`
	OrderIndex int     `json:"orderIndex"`
	Title      string  `json:"title"`
	Author     *string `json:"author"`
	URL        *string `json:"url"`
	Notes      *string `json:"notes"`
}

// BlockDetail is a block with its resolved phases and readings.
type BlockDetail struct {
	TrailBlock
	TrailID  string         `json:"trailId"`
	Phases   []PhaseSummary `json:"phases"`
	Readings []ReadingItem  `json:"readings"`
}

// AttemptSummary is the best attempt shown next to a challenge.
type AttemptSummary struct {
	Answers   json.RawMessage `json:"answers"`
	Result    bool            `json:"result"`
	Score     int             `json:"score"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ChallengeItem is a challenge with its localized payload.
type ChallengeItem struct {
	ID          string               `json:"id"`
	OrderIndex  int                  `json:"orderIndex"`
	Type        domain.ChallengeType `json:"type"`
	IsFinal     bool                 `json:"isFinal"`
	Payload     any                  `json:"payload"`
	BestAttempt *AttemptSummary      `json:"bestAttempt"`
}

// PhaseDetail is a phase with its challenges.
type PhaseDetail struct {
	PhaseSummary
	BlockID    string          `json:"blockId"`
	Challenges []ChallengeItem `json:"challenges"`
}

// NextBlockSummary is the block that follows a completed one.
type NextBlockSummary struct {
	TrailBlock
	TrailID string `json:"trailId"`
}

// SubmitResult is the aggregated outcome of one submission.
type SubmitResult struct {
	Result          bool                  `json:"result"`
	Score           int                   `json:"score"`
	PhaseStatus     domain.ProgressStatus `json:"phaseStatus"`
	PhaseCompleted  bool                  `json:"phaseCompleted"`
	BlockStatus     domain.ProgressStatus `json:"blockStatus"`
	BlockCompleted  bool                  `json:"blockCompleted"`
	CorrectCount    int                   `json:"correctCount"`
	TotalChallenges int                   `json:"totalChallenges"`
	PhaseType       domain.PhaseType      `json:"phaseType"`
	NextBlock       *NextBlockSummary     `json:"nextBlock,omitempty"`
}

// view renders catalog entities for one account and locale.
type view struct {
	cat      *catalog.Catalog
	resolver *unlock.Resolver
	acct     unlock.AccountContext
	locale   string
	fallback string
}

func (v *view) text(l domain.LocalizedText) string {
	return l.In(v.locale, v.fallback)
}

// optional renders l, nil when it has no text in any locale.
func (v *view) optional(l domain.LocalizedText) *string {
	if len(l) == 0 {
		return nil
	}
	s := v.text(l)
	if s == "" {
		return nil
	}
	return &s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func lockReason(r domain.LockReason) *domain.LockReason {
	if r == domain.LockNone {
		return nil
	}
	return &r
}

func (v *view) trail(t *domain.Trail) TrailSummary {
	blocks := v.cat.Blocks(t)
	out := TrailSummary{
		ID:         t.ID,
		Slug:       t.Slug,
		Title:      v.text(t.Title),
		Objective:  v.optional(t.Objective),
		OrderIndex: t.OrderIndex,
		Blocks:     make([]TrailBlock, 0, len(blocks)),
	}
	for _, b := range blocks {
		out.Blocks = append(out.Blocks, v.block(b))
	}
	return out
}

func (v *view) block(b *domain.Block) TrailBlock {
	res := v.resolver.Block(b, v.acct)
	return TrailBlock{
		ID:          b.ID,
		OrderIndex:  b.OrderIndex,
		Title:       v.text(b.Title),
		Description: v.optional(b.Description),
		IsFree:      b.IsFree,
		HasAccess:   res.HasAccess,
		IsUnlocked:  res.IsUnlocked,
		Status:      res.Status,
		LockReason:  lockReason(res.LockReason),
	}
}

func (v *view) blockDetail(b *domain.Block) *BlockDetail {
	phases := v.cat.Phases(b)
	readings := v.cat.Readings(b)
	out := &BlockDetail{
		TrailBlock: v.block(b),
		TrailID:    b.TrailID,
		Phases:     make([]PhaseSummary, 0, len(phases)),
		Readings:   make([]ReadingItem, 0, len(readings)),
	}
	for _, p := range phases {
		out.Phases = append(out.Phases, v.phase(p))
	}
	for _, r := range readings {
		out.Readings = append(out.Readings, ReadingItem{
			ID:         r.ID,
			OrderIndex: r.OrderIndex,
			Title:      v.text(r.Title),
			Author:     optionalString(r.Author),
			URL:        optionalString(r.URL),
			Notes:      v.optional(r.Notes),
		})
	}
	return out
}

func (v *view) phase(p *domain.Phase) PhaseSummary {
	res := v.resolver.Phase(p, v.acct)
	return PhaseSummary{
		ID:              p.ID,
		OrderIndex:      p.OrderIndex,
		Title:           v.text(p.Title),
		Description:     v.optional(p.Description),
		PhaseType:       p.Type,
		IsUnlocked:      res.IsUnlocked,
		Status:          res.Status,
		LockReason:      lockReason(res.LockReason),
		TotalChallenges: len(p.ChallengeIDs),
	}
}

func (v *view) phaseDetail(p *domain.Phase, best map[string]*domain.Attempt) *PhaseDetail {
	challenges := v.cat.Challenges(p)
	out := &PhaseDetail{
		PhaseSummary: v.phase(p),
		BlockID:      p.BlockID,
		Challenges:   make([]ChallengeItem, 0, len(challenges)),
	}
	for _, c := range challenges {
		item := ChallengeItem{
			ID:         c.ID,
			OrderIndex: c.OrderIndex,
			Type:       c.Type,
			IsFinal:    c.IsFinal,
			Payload:    c.Payload.Localize(v.locale, v.fallback),
		}
		if a := best[c.ID]; a != nil {
			item.BestAttempt = &AttemptSummary{
				Answers:   a.Answer,
				Result:    a.Result,
				Score:     a.Score,
				CreatedAt: a.CreatedAt,
			}
		}
		out.Challenges = append(out.Challenges, item)
	}
	return out
}

func (v *view) nextBlock(b *domain.Block) *NextBlockSummary {
	return &NextBlockSummary{TrailBlock: v.block(b), TrailID: b.TrailID}
}
