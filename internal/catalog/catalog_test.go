package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/trilhas/internal/domain"
)

const minimalTrail = `id: logica
slug: logica
title: Lógica
blocks:
  - id: silogismos
    title: Silogismos
    phases:
      - id: silogismos-1
        title: Premissas
        challenges:
          - id: silogismos-1-a
            type: true_false
            payload:
              prompt: Todo homem é mortal.
              answer: true
          - id: silogismos-1-b
            type: quiz
            payload:
              prompt: Qual é a conclusão?
              choices: [Sócrates é mortal, Sócrates é imortal]
              answer_index: 0
  - id: falacias
    title: Falácias
    phases:
      - id: falacias-1
        title: Ad hominem
        challenges:
          - id: falacias-1-a
            type: true_false
            payload:
              prompt: Atacar a pessoa refuta o argumento.
              answer: false
`

func buildString(t *testing.T, docs ...string) (*Catalog, error) {
	t.Helper()
	files := make([]*TrailFile, 0, len(docs))
	for _, doc := range docs {
		f, err := Parse([]byte(doc))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		files = append(files, f)
	}
	return Build(files)
}

func TestBuild(t *testing.T) {
	c, err := buildString(t, minimalTrail)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	trail, err := c.Trail("logica")
	if err != nil {
		t.Fatalf("Trail() error = %v", err)
	}
	if len(trail.BlockIDs) != 2 {
		t.Fatalf("len(BlockIDs) = %d; want 2", len(trail.BlockIDs))
	}

	first, _ := c.Block("silogismos")
	second, _ := c.Block("falacias")
	if !first.IsFree || second.IsFree {
		t.Errorf("IsFree = %v, %v; want true, false", first.IsFree, second.IsFree)
	}
	if second.OrderIndex != 2 || second.TrailID != "logica" {
		t.Errorf("second block = %+v", second)
	}
	if got := c.NextBlock(first); got == nil || got.ID != "falacias" {
		t.Errorf("NextBlock(first) = %v; want falacias", got)
	}
	if got := c.NextBlock(second); got != nil {
		t.Errorf("NextBlock(last) = %v; want nil", got.ID)
	}
	if got := c.PreviousBlock(second); got == nil || got.ID != "silogismos" {
		t.Errorf("PreviousBlock(second) = %v; want silogismos", got)
	}

	a, _ := c.Challenge("silogismos-1-a")
	b, _ := c.Challenge("silogismos-1-b")
	if a.IsFinal || !b.IsFinal {
		t.Errorf("IsFinal = %v, %v; want false, true", a.IsFinal, b.IsFinal)
	}
	if b.OrderIndex != 2 || b.PhaseID != "silogismos-1" {
		t.Errorf("challenge b = %+v", b)
	}

	ph, _ := c.Phase("silogismos-1")
	if ph.Type != domain.PhaseRegular {
		t.Errorf("Type = %q; want regular", ph.Type)
	}
}

func TestLocate(t *testing.T) {
	c, err := buildString(t, minimalTrail)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	ch, ph, blk, trail, err := c.Locate("falacias-1-a")
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if ch.ID != "falacias-1-a" || ph.ID != "falacias-1" || blk.ID != "falacias" || trail.ID != "logica" {
		t.Errorf("Locate() = %s %s %s %s", ch.ID, ph.ID, blk.ID, trail.ID)
	}

	_, _, _, _, err = c.Locate("missing")
	if !errors.Is(err, domain.ErrChallengeNotFound) || !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Locate(missing) error = %v; want ErrChallengeNotFound", err)
	}
}

func TestTrailBySlug(t *testing.T) {
	doc := strings.Replace(minimalTrail, "slug: logica", "slug: logica-classica", 1)
	c, err := buildString(t, doc)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	trail, err := c.Trail("logica-classica")
	if err != nil || trail.ID != "logica" {
		t.Errorf("Trail(slug) = %v, %v; want logica", trail, err)
	}
	if _, err := c.Trail("nope"); !errors.Is(err, domain.ErrTrailNotFound) {
		t.Errorf("Trail(nope) error = %v; want ErrTrailNotFound", err)
	}
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		problem string
	}{
		{
			name:    "second block flagged free",
			mutate:  func(s string) string { return strings.Replace(s, "  - id: falacias\n", "  - id: falacias\n    is_free: true\n", 1) },
			problem: "only the first block of a trail may be free",
		},
		{
			name:    "non contiguous block order",
			mutate:  func(s string) string { return strings.Replace(s, "  - id: falacias\n", "  - id: falacias\n    order: 3\n", 1) },
			problem: "order indices must be unique and contiguous",
		},
		{
			name:    "unknown challenge type",
			mutate:  func(s string) string { return strings.Replace(s, "type: true_false", "type: essay", 1) },
			problem: `unknown challenge type "essay"`,
		},
		{
			name:    "answer index out of range",
			mutate:  func(s string) string { return strings.Replace(s, "answer_index: 0", "answer_index: 5", 1) },
			problem: "answer_index 5 out of range",
		},
		{
			name:    "payload fails schema",
			mutate:  func(s string) string { return strings.Replace(s, "answer: true", "answer: sim", 1) },
			problem: "payload schema",
		},
		{
			name: "non final challenge flagged final",
			mutate: func(s string) string {
				return strings.Replace(s, "          - id: silogismos-1-a\n", "          - id: silogismos-1-a\n            is_final: true\n", 1)
			},
			problem: "only the last challenge of a phase may be final",
		},
		{
			name:    "duplicate challenge id",
			mutate:  func(s string) string { return strings.Replace(s, "id: falacias-1-a", "id: silogismos-1-a", 1) },
			problem: "duplicate challenge id",
		},
		{
			name:    "unknown phase type",
			mutate:  func(s string) string { return strings.Replace(s, "      - id: falacias-1\n", "      - id: falacias-1\n        type: exam\n", 1) },
			problem: `unknown phase type "exam"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildString(t, tt.mutate(minimalTrail))
			if err == nil {
				t.Fatal("Build() error = nil; want validation error")
			}
			if !errors.Is(err, domain.ErrInvalidCatalog) {
				t.Errorf("Build() error = %v; want ErrInvalidCatalog", err)
			}
			if !strings.Contains(err.Error(), tt.problem) {
				t.Errorf("Build() error = %v; want it to mention %q", err, tt.problem)
			}
		})
	}
}

func TestBuildReviewPhaseMustBeLast(t *testing.T) {
	doc := minimalTrail + `      - id: falacias-2
        title: Espantalho
        challenges:
          - id: falacias-2-a
            type: true_false
            payload:
              prompt: Distorcer o argumento do outro é válido.
              answer: false
`
	doc = strings.Replace(doc, "      - id: falacias-1\n", "      - id: falacias-1\n        type: review\n", 1)

	_, err := buildString(t, doc)
	if err == nil || !strings.Contains(err.Error(), "review phase must be the last phase") {
		t.Errorf("Build() error = %v; want review placement problem", err)
	}
}

func TestBuildReportsAllProblems(t *testing.T) {
	doc := strings.Replace(minimalTrail, "type: true_false", "type: essay", -1)
	_, err := buildString(t, doc)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Build() error = %v; want *ValidationError", err)
	}
	if len(verr.Problems) != 2 {
		t.Errorf("len(Problems) = %d; want 2: %v", len(verr.Problems), verr.Problems)
	}
}

func TestBuildDuplicateTrail(t *testing.T) {
	_, err := buildString(t, minimalTrail, minimalTrail)
	if err == nil || !strings.Contains(err.Error(), "duplicate trail id") {
		t.Errorf("Build() error = %v; want duplicate trail id", err)
	}
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "logica.yaml"), []byte(minimalTrail), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a trail"), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := NewLoader(dir).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s := c.Stats(); s.Trails != 1 || s.Blocks != 2 || s.Challenges != 3 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestLoader_LoadEmptyDir(t *testing.T) {
	if _, err := NewLoader(t.TempDir()).Load(context.Background()); err == nil {
		t.Error("Load() error = nil; want error for empty directory")
	}
}

func TestLoader_LoadMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("id: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := NewLoader(dir).Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "bad.yaml") {
		t.Errorf("Load() error = %v; want it to name the file", err)
	}
}

func TestShippedCatalogIsValid(t *testing.T) {
	c, err := NewLoader(filepath.Join("..", "..", "catalog")).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	trail, err := c.Trail("filosofia-antiga")
	if err != nil {
		t.Fatalf("Trail() error = %v", err)
	}
	if got := trail.Title.In("en", domain.DefaultLocale); got != "Ancient Philosophy" {
		t.Errorf("Title(en) = %q", got)
	}

	blocks := c.Blocks(trail)
	if len(blocks) != 3 {
		t.Fatalf("len(blocks) = %d; want 3", len(blocks))
	}
	for _, b := range blocks {
		phases := c.Phases(b)
		for _, p := range phases[:len(phases)-1] {
			if p.IsReview() {
				t.Errorf("block %s: review phase %s is not last", b.ID, p.ID)
			}
		}
	}
	if len(c.Readings(blocks[0])) != 1 {
		t.Errorf("readings of %s = %d; want 1", blocks[0].ID, len(c.Readings(blocks[0])))
	}
}

func TestRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logica.yaml")
	if err := os.WriteFile(path, []byte(minimalTrail), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(NewLoader(dir))
	if r.Catalog() != nil {
		t.Fatal("Catalog() before Load should be nil")
	}
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	first := r.Catalog()

	// A broken file must not replace the served catalog.
	if err := os.WriteFile(path, []byte(strings.Replace(minimalTrail, "type: quiz", "type: essay", 1)), 0644); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(context.Background()); err == nil {
		t.Fatal("Reload() error = nil; want validation error")
	}
	if r.Catalog() != first {
		t.Error("Reload() failure replaced the served catalog")
	}
}
