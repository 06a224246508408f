// Package mcp exposes the progression engine to MCP clients as tools. The
// server acts on behalf of a single account fixed at startup.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/trilhas/internal/domain"
	"github.com/felixgeelhaar/trilhas/internal/progression"
)

// Engine is the part of the progression service the tools call.
type Engine interface {
	GetTrails(ctx context.Context, accountID, locale string) ([]progression.TrailSummary, error)
	GetTrail(ctx context.Context, accountID, trailID, locale string) (*progression.TrailDetail, error)
	GetBlock(ctx context.Context, accountID, blockID, locale string) (*progression.BlockDetail, error)
	GetPhase(ctx context.Context, accountID, phaseID, locale string) (*progression.PhaseDetail, error)
	GetNextBlock(ctx context.Context, accountID, blockID, locale string) (*progression.NextBlockSummary, error)
	SubmitAttempt(ctx context.Context, accountID, challengeID string, answer json.RawMessage, locale string) (*progression.SubmitResult, error)
	GrantEntitlement(ctx context.Context, accountID, productID string) error
	ResetAccount(ctx context.Context, accountID string) (domain.ResetCounts, error)
}

// Server wraps the MCP server with trilhas tools
type Server struct {
	mcpServer     *server.Server
	engine        Engine
	accountID     string
	defaultLocale string
	admin         bool
}

// Config contains configuration for the MCP server
type Config struct {
	Engine    Engine
	AccountID string
	Locale    string
	// Admin registers trilhas_grant and trilhas_reset.
	Admin   bool
	Version string
}

// NewServer creates a new MCP server. AccountID must be a UUID.
func NewServer(cfg Config) (*Server, error) {
	if _, err := uuid.Parse(cfg.AccountID); err != nil {
		return nil, fmt.Errorf("account id: %w", errors.Join(domain.ErrInvalidID, err))
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		engine:        cfg.Engine,
		accountID:     cfg.AccountID,
		defaultLocale: cfg.Locale,
		admin:         cfg.Admin,
	}

	s.mcpServer = server.New(server.Info{
		Name:    "trilhas",
		Version: cfg.Version,
	}, server.WithInstructions(`
Trilhas serves study trails: ordered blocks of phases, each phase a set of
challenges (quiz, true_false, match). Phases and blocks unlock as earlier
ones are completed; paid blocks also need an entitlement.

Available tools:
- trilhas_trails: List trails with block status
- trilhas_trail: Show one trail
- trilhas_block: Show a block with its phases and readings
- trilhas_phase: Show a phase with its challenges and best attempts
- trilhas_submit: Submit an answer to a challenge
- trilhas_next_block: Show the block after a given one
`))

	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("trilhas_trails").
		Description("List trails with per-block status for the current account.").
		Handler(s.handleTrails)

	s.mcpServer.Tool("trilhas_trail").
		Description("Show one trail and its blocks.").
		Handler(s.handleTrail)

	s.mcpServer.Tool("trilhas_block").
		Description("Show a block with its phases and readings.").
		Handler(s.handleBlock)

	s.mcpServer.Tool("trilhas_phase").
		Description("Show a phase with its challenges and best attempts.").
		Handler(s.handlePhase)

	s.mcpServer.Tool("trilhas_submit").
		Description("Submit an answer to a challenge and report progression changes.").
		Handler(s.handleSubmit)

	s.mcpServer.Tool("trilhas_next_block").
		Description("Show the block ordered after the given block, if any.").
		Handler(s.handleNextBlock)

	if s.admin {
		s.mcpServer.Tool("trilhas_grant").
			Description("Grant an entitlement to an account.").
			Handler(s.handleGrant)

		s.mcpServer.Tool("trilhas_reset").
			Description("Delete all progress, attempts and entitlements of an account.").
			Handler(s.handleReset)
	}
}

// Input/Output types for tools

type LocaleInput struct {
	Locale string `json:"locale,omitempty" jsonschema:"description=Content locale such as pt-BR or en"`
}

type TrailInput struct {
	TrailID string `json:"trail_id" jsonschema:"description=Trail ID"`
	Locale  string `json:"locale,omitempty" jsonschema:"description=Content locale"`
}

type BlockInput struct {
	BlockID string `json:"block_id" jsonschema:"description=Block ID"`
	Locale  string `json:"locale,omitempty" jsonschema:"description=Content locale"`
}

type PhaseInput struct {
	PhaseID string `json:"phase_id" jsonschema:"description=Phase ID"`
	Locale  string `json:"locale,omitempty" jsonschema:"description=Content locale"`
}

type SubmitInput struct {
	ChallengeID string         `json:"challenge_id" jsonschema:"description=Challenge ID"`
	Answers     map[string]any `json:"answers" jsonschema:"description=Answer object: {choiceIndex} for quiz or {answer} for true_false or {pairs:[{left right}]} for match"`
	Locale      string         `json:"locale,omitempty" jsonschema:"description=Locale of the next block summary"`
}

type GrantInput struct {
	AccountID string `json:"account_id" jsonschema:"description=Account UUID"`
	ProductID string `json:"product_id" jsonschema:"description=Product ID"`
}

type ResetInput struct {
	AccountID string `json:"account_id" jsonschema:"description=Account UUID"`
}

type TrailsOutput struct {
	Trails []progression.TrailSummary `json:"trails"`
}

type TrailOutput struct {
	Found bool                     `json:"found"`
	Trail *progression.TrailDetail `json:"trail,omitempty"`
}

type BlockOutput struct {
	Found bool                     `json:"found"`
	Block *progression.BlockDetail `json:"block,omitempty"`
}

type PhaseOutput struct {
	Found bool                     `json:"found"`
	Phase *progression.PhaseDetail `json:"phase,omitempty"`
}

type NextBlockOutput struct {
	Found bool                          `json:"found"`
	Block *progression.NextBlockSummary `json:"block,omitempty"`
}

type GrantOutput struct {
	Granted bool `json:"granted"`
}

// Tool handlers

func (s *Server) locale(requested string) string {
	if requested != "" {
		return requested
	}
	return s.defaultLocale
}

// notFound turns a missing entity into an empty result.
func notFound(err error) (bool, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return true, nil
	}
	return false, err
}

func (s *Server) handleTrails(ctx context.Context, input LocaleInput) (TrailsOutput, error) {
	trails, err := s.engine.GetTrails(ctx, s.accountID, s.locale(input.Locale))
	if err != nil {
		return TrailsOutput{}, fmt.Errorf("list trails: %w", err)
	}
	return TrailsOutput{Trails: trails}, nil
}

func (s *Server) handleTrail(ctx context.Context, input TrailInput) (TrailOutput, error) {
	trail, err := s.engine.GetTrail(ctx, s.accountID, input.TrailID, s.locale(input.Locale))
	if missing, err := notFound(err); missing || err != nil {
		return TrailOutput{}, err
	}
	return TrailOutput{Found: true, Trail: trail}, nil
}

func (s *Server) handleBlock(ctx context.Context, input BlockInput) (BlockOutput, error) {
	block, err := s.engine.GetBlock(ctx, s.accountID, input.BlockID, s.locale(input.Locale))
	if missing, err := notFound(err); missing || err != nil {
		return BlockOutput{}, err
	}
	return BlockOutput{Found: true, Block: block}, nil
}

func (s *Server) handlePhase(ctx context.Context, input PhaseInput) (PhaseOutput, error) {
	phase, err := s.engine.GetPhase(ctx, s.accountID, input.PhaseID, s.locale(input.Locale))
	if missing, err := notFound(err); missing || err != nil {
		return PhaseOutput{}, err
	}
	return PhaseOutput{Found: true, Phase: phase}, nil
}

func (s *Server) handleNextBlock(ctx context.Context, input BlockInput) (NextBlockOutput, error) {
	next, err := s.engine.GetNextBlock(ctx, s.accountID, input.BlockID, s.locale(input.Locale))
	if missing, err := notFound(err); missing || err != nil {
		return NextBlockOutput{}, err
	}
	return NextBlockOutput{Found: next != nil, Block: next}, nil
}

func (s *Server) handleSubmit(ctx context.Context, input SubmitInput) (progression.SubmitResult, error) {
	raw, err := json.Marshal(input.Answers)
	if err != nil {
		return progression.SubmitResult{}, fmt.Errorf("encode answers: %w", err)
	}
	res, err := s.engine.SubmitAttempt(ctx, s.accountID, input.ChallengeID, raw, s.locale(input.Locale))
	if err != nil {
		return progression.SubmitResult{}, fmt.Errorf("submit attempt: %w", err)
	}
	return *res, nil
}

func (s *Server) handleGrant(ctx context.Context, input GrantInput) (GrantOutput, error) {
	if err := s.engine.GrantEntitlement(ctx, input.AccountID, input.ProductID); err != nil {
		return GrantOutput{}, fmt.Errorf("grant entitlement: %w", err)
	}
	return GrantOutput{Granted: true}, nil
}

func (s *Server) handleReset(ctx context.Context, input ResetInput) (domain.ResetCounts, error) {
	counts, err := s.engine.ResetAccount(ctx, input.AccountID)
	if err != nil {
		return domain.ResetCounts{}, fmt.Errorf("reset account: %w", err)
	}
	return counts, nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
