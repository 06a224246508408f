// Package progression orchestrates grading, progress bookkeeping and unlock
// resolution for accounts moving through the catalog.
package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/trilhas/internal/catalog"
	"github.com/felixgeelhaar/trilhas/internal/domain"
	"github.com/felixgeelhaar/trilhas/internal/events"
	"github.com/felixgeelhaar/trilhas/internal/ledger"
	"github.com/felixgeelhaar/trilhas/internal/unlock"
)

// Config holds orchestrator settings.
type Config struct {
	// SubmissionTimeout bounds one SubmitAttempt, waits included.
	SubmissionTimeout time.Duration
	// ResetTimeout bounds how long a reset waits for in-flight submissions.
	ResetTimeout time.Duration
	// SubscriptionProducts restricts which entitlements unlock paid blocks.
	// Empty means any active entitlement.
	SubscriptionProducts []string
	DefaultLocale        string
	// MaxInFlight caps concurrent submissions per account.
	MaxInFlight int64
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		SubmissionTimeout: 10 * time.Second,
		ResetTimeout:      5 * time.Second,
		DefaultLocale:     domain.DefaultLocale,
		MaxInFlight:       16,
	}
}

// Service is the progression entry point.
type Service struct {
	catalog   *catalog.Registry
	ledger    *ledger.Ledger
	publisher events.Publisher
	logger    *slog.Logger
	cfg       Config

	accounts   *gateSet
	challenges *gateSet
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the progress event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service.
func New(reg *catalog.Registry, l *ledger.Ledger, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.SubmissionTimeout <= 0 {
		cfg.SubmissionTimeout = def.SubmissionTimeout
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = def.DefaultLocale
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = def.MaxInFlight
	}

	s := &Service{
		catalog:    reg,
		ledger:     l,
		publisher:  events.NopPublisher{},
		logger:     slog.Default(),
		cfg:        cfg,
		accounts:   newGateSet(cfg.MaxInFlight),
		challenges: newGateSet(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks the ledger is reachable and a catalog is loaded.
func (s *Service) Ping(ctx context.Context) error {
	if _, err := s.currentCatalog(); err != nil {
		return err
	}
	return s.ledger.Ping(ctx)
}

func (s *Service) currentCatalog() (*catalog.Catalog, error) {
	c := s.catalog.Catalog()
	if c == nil {
		return nil, domain.Transient(errors.New("catalog not loaded"))
	}
	return c, nil
}

func (s *Service) locale(requested string) string {
	if requested == "" {
		return s.cfg.DefaultLocale
	}
	return requested
}

func requireAccount(accountID string) error {
	if accountID == "" {
		return fmt.Errorf("missing account: %w", domain.ErrUnauthorized)
	}
	return nil
}

// accountContext projects a ledger snapshot onto the resolver's input.
func (s *Service) accountContext(snap *ledger.Snapshot) unlock.AccountContext {
	acct := unlock.AccountContext{
		AccountID:   snap.AccountID,
		Entitled:    snap.Entitled(s.cfg.SubscriptionProducts),
		BlockStatus: make(map[string]domain.ProgressStatus, len(snap.Blocks)),
		PhaseStatus: make(map[string]domain.ProgressStatus, len(snap.Phases)),
	}
	for id, r := range snap.Blocks {
		acct.BlockStatus[id] = r.Status
	}
	for id, r := range snap.Phases {
		acct.PhaseStatus[id] = r.Status
	}
	return acct
}

// acquire serializes a submission against other submissions to the same
// challenge and against resets of the same account.
func (s *Service) acquire(ctx context.Context, accountID, challengeID string) (func(), error) {
	releaseAccount, err := s.accounts.acquire(ctx, accountID, 1)
	if err != nil {
		return nil, s.waitError(err)
	}
	releaseChallenge, err := s.challenges.acquire(ctx, accountID+"/"+challengeID, 1)
	if err != nil {
		releaseAccount()
		return nil, s.waitError(err)
	}
	return func() {
		releaseChallenge()
		releaseAccount()
	}, nil
}

func (s *Service) waitError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(fmt.Errorf("waiting for account: %w", err))
	}
	return err
}

func (s *Service) publish(ctx context.Context, evs []*events.ProgressEvent) {
	for _, e := range evs {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.Warn("failed to publish progress event",
				"type", e.Type,
				"account_id", e.AccountID,
				"block_id", e.BlockID,
				"error", err,
			)
		}
	}
}
