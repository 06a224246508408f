package mcp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/trilhas/internal/catalog"
	"github.com/felixgeelhaar/trilhas/internal/domain"
	"github.com/felixgeelhaar/trilhas/internal/ledger"
	"github.com/felixgeelhaar/trilhas/internal/progression"
	"github.com/felixgeelhaar/trilhas/internal/storage/sqlite"
)

// setupTestServer creates a server over a fresh sqlite ledger and the
// bundled catalog.
func setupTestServer(t *testing.T, admin bool) *Server {
	t.Helper()
	ctx := context.Background()

	cat, err := catalog.NewLoader(filepath.Join("..", "..", "catalog")).Load(ctx)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "trilhas.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	l := ledger.New(sqlite.NewLedgerStore(db))
	t.Cleanup(func() { l.Close() })

	svc := progression.New(catalog.NewStaticRegistry(cat), l, progression.DefaultConfig())
	server, err := NewServer(Config{
		Engine:    svc,
		AccountID: uuid.NewString(),
		Locale:    "pt-BR",
		Admin:     admin,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return server
}

func TestNewServer(t *testing.T) {
	server := setupTestServer(t, false)
	if server.mcpServer == nil {
		t.Fatal("expected non-nil MCP server")
	}
	if server.GetMCPServer() == nil {
		t.Fatal("expected non-nil underlying MCP server")
	}
}

func TestNewServer_InvalidAccount(t *testing.T) {
	if _, err := NewServer(Config{AccountID: "nope"}); err == nil {
		t.Fatal("expected error for non-UUID account")
	}
}

func TestHandleTrails(t *testing.T) {
	server := setupTestServer(t, false)

	out, err := server.handleTrails(context.Background(), LocaleInput{Locale: "en"})
	if err != nil {
		t.Fatalf("handleTrails: %v", err)
	}
	if len(out.Trails) == 0 {
		t.Fatal("expected at least one trail")
	}
	if len(out.Trails[0].Blocks) == 0 {
		t.Fatal("expected blocks in first trail")
	}
}

func TestHandleReads_NotFound(t *testing.T) {
	server := setupTestServer(t, false)
	ctx := context.Background()

	trail, err := server.handleTrail(ctx, TrailInput{TrailID: "missing"})
	if err != nil || trail.Found {
		t.Errorf("trail = %+v, err = %v; want not found", trail, err)
	}
	block, err := server.handleBlock(ctx, BlockInput{BlockID: "missing"})
	if err != nil || block.Found {
		t.Errorf("block = %+v, err = %v; want not found", block, err)
	}
	phase, err := server.handlePhase(ctx, PhaseInput{PhaseID: "missing"})
	if err != nil || phase.Found {
		t.Errorf("phase = %+v, err = %v; want not found", phase, err)
	}
	next, err := server.handleNextBlock(ctx, BlockInput{BlockID: "agostinho"})
	if err != nil || next.Found {
		t.Errorf("next = %+v, err = %v; want none after last block", next, err)
	}
}

func TestHandleSubmit(t *testing.T) {
	server := setupTestServer(t, false)
	ctx := context.Background()

	res, err := server.handleSubmit(ctx, SubmitInput{
		ChallengeID: "platao-ideias-1",
		Answers:     map[string]any{"choiceIndex": 2},
	})
	if err != nil {
		t.Fatalf("handleSubmit: %v", err)
	}
	if !res.Result || res.Score != 100 {
		t.Errorf("result = %v score = %d, want correct 100", res.Result, res.Score)
	}

	phase, err := server.handlePhase(ctx, PhaseInput{PhaseID: "platao-ideias"})
	if err != nil || !phase.Found {
		t.Fatalf("handlePhase: %+v, %v", phase, err)
	}
	if phase.Phase.Challenges[0].BestAttempt == nil {
		t.Error("expected best attempt after submission")
	}
}

func TestHandleSubmit_NextBlockLocale(t *testing.T) {
	server := setupTestServer(t, false)
	ctx := context.Background()

	steps := []SubmitInput{
		{ChallengeID: "platao-ideias-1", Answers: map[string]any{"choiceIndex": 2}},
		{ChallengeID: "platao-ideias-2", Answers: map[string]any{"answer": false}},
	}
	for _, in := range steps {
		if _, err := server.handleSubmit(ctx, in); err != nil {
			t.Fatalf("handleSubmit(%s): %v", in.ChallengeID, err)
		}
	}

	res, err := server.handleSubmit(ctx, SubmitInput{
		ChallengeID: "platao-revisao-1",
		Locale:      "en",
		Answers: map[string]any{"pairs": []map[string]string{
			{"left": "Sombras", "right": "Aparências"},
			{"left": "Sol", "right": "Bem"},
			{"left": "Caverna", "right": "Mundo sensível"},
			{"left": "Prisioneiros", "right": "Humanidade"},
		}},
	})
	if err != nil {
		t.Fatalf("handleSubmit(review): %v", err)
	}
	if res.NextBlock == nil || res.NextBlock.Title != "Aristotle" {
		t.Errorf("NextBlock = %+v; want Aristotle", res.NextBlock)
	}
}

func TestHandleSubmit_WrongShape(t *testing.T) {
	server := setupTestServer(t, false)

	_, err := server.handleSubmit(context.Background(), SubmitInput{
		ChallengeID: "platao-ideias-1",
		Answers:     map[string]any{"answer": true},
	})
	if err == nil {
		t.Fatal("expected error for wrong answer shape")
	}
}

func TestAdminTools(t *testing.T) {
	server := setupTestServer(t, true)
	ctx := context.Background()
	learner := uuid.NewString()

	grant, err := server.handleGrant(ctx, GrantInput{AccountID: learner, ProductID: "assinatura"})
	if err != nil || !grant.Granted {
		t.Fatalf("handleGrant: %+v, %v", grant, err)
	}

	counts, err := server.handleReset(ctx, ResetInput{AccountID: learner})
	if err != nil {
		t.Fatalf("handleReset: %v", err)
	}
	if counts != (domain.ResetCounts{EntitlementsDeleted: 1}) {
		t.Errorf("counts = %+v, want one entitlement deleted", counts)
	}
}

func TestLocaleFallback(t *testing.T) {
	server := setupTestServer(t, false)
	if got := server.locale(""); got != "pt-BR" {
		t.Errorf("locale(\"\") = %q, want pt-BR", got)
	}
	if got := server.locale("en"); got != "en" {
		t.Errorf("locale(\"en\") = %q, want en", got)
	}
}
