// Package ledger implements the Usage Ledger: a pre-flight spend
// check and a post-flight idempotent debit, kept consistent via the
// invariant balance == Σ usage_log.
package ledger

import (
	"context"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teeinfer/gateway/internal/db"
	"github.com/teeinfer/gateway/internal/domain"
	"github.com/teeinfer/gateway/internal/xerrors"
)

// maxTokensPerField and maxCostPerToken bound the values this ledger will
// accept, per the overflow-safety contract: with these caps the
// total-cost product fits comfortably inside an int64 nano-unit.
const (
	maxTokensPerField = 1 << 20
	maxCostPerToken   = 1 << 30
)

// Store is the persistence surface the ledger needs. Repository
// implements it against pgx; tests substitute a fake.
type Store interface {
	GetOrganizationBalance(ctx context.Context, orgID string) (domain.OrganizationBalance, error)
	GetAPIKeySpent(ctx context.Context, keyID string) (int64, error)
	InsertUsageIdempotent(ctx context.Context, q db.Querier, entry domain.UsageLogEntry) (bool, error)
	IncrementBalance(ctx context.Context, q db.Querier, orgID string, amountNano int64) error
}

// Service implements the pre-flight check and post-flight record.
type Service struct {
	pool  *pgxpool.Pool
	store Store
}

func New(pool *pgxpool.Pool, store Store) *Service {
	return &Service{pool: pool, store: store}
}

// PreflightCheck enforces the organization's and the API key's spend
// limits before a request is admitted to the Provider Pool. The two
// limits are independent caps, checked organization first (see
// DESIGN.md). Rate limiting is a separate check performed by the rate
// limiter.
func (s *Service) PreflightCheck(ctx context.Context, org domain.Organization, key domain.APIKey) error {
	if !org.Active {
		return xerrors.New(xerrors.KindForbidden, "organization is not active")
	}

	balance, err := s.store.GetOrganizationBalance(ctx, org.ID)
	if err != nil {
		return xerrors.Wrap(xerrors.KindInternal, "read organization balance", err)
	}

	if org.SpendLimitNano > 0 && balance.TotalSpentNano >= org.SpendLimitNano {
		return xerrors.New(xerrors.KindInsufficientCredits, "organization spend limit reached")
	}

	if key.SpendLimitNano != nil {
		spent, err := s.store.GetAPIKeySpent(ctx, key.ID)
		if err != nil {
			return xerrors.Wrap(xerrors.KindInternal, "read api key spend", err)
		}

		if spent >= *key.SpendLimitNano {
			return xerrors.New(xerrors.KindAPIKeyLimitExceeded, "api key spend limit reached")
		}
	}

	return nil
}

// validateOverflow enforces the token/cost bounds so a single bad
// pricing row or a runaway token count can never overflow the int64
// nano-unit total-cost computation.
func validateOverflow(entry domain.UsageLogEntry) error {
	if entry.InputTokens < 0 || entry.InputTokens > maxTokensPerField {
		return xerrors.New(xerrors.KindValidation, "input token count out of range")
	}

	if entry.OutputTokens < 0 || entry.OutputTokens > maxTokensPerField {
		return xerrors.New(xerrors.KindValidation, "output token count out of range")
	}

	costPerInputToken := int64(0)
	if entry.InputTokens > 0 {
		costPerInputToken = entry.InputCostNano / entry.InputTokens
	}

	costPerOutputToken := int64(0)
	if entry.OutputTokens > 0 {
		costPerOutputToken = entry.OutputCostNano / entry.OutputTokens
	}

	if costPerInputToken > maxCostPerToken || costPerOutputToken > maxCostPerToken {
		return xerrors.New(xerrors.KindValidation, "cost per token out of range")
	}

	if entry.TotalCostNano < 0 || entry.TotalCostNano > math.MaxInt64/2 {
		return xerrors.New(xerrors.KindValidation, "total cost out of range")
	}

	return nil
}

// Record performs the idempotent debit: a conditional insert on
// (organization_id, inference_id) followed by an atomic balance
// increment, both inside one transaction. A second Record call
// carrying the same InferenceID is a no-op — this is what makes a
// cancelled-mid-stream retry, or a client-side retry after a timeout,
// safe to resubmit.
func (s *Service) Record(ctx context.Context, entry domain.UsageLogEntry) error {
	if err := validateOverflow(entry); err != nil {
		return err
	}

	return db.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		inserted, err := s.store.InsertUsageIdempotent(ctx, tx, entry)
		if err != nil {
			return xerrors.Wrap(xerrors.KindInternal, "insert usage log", err)
		}

		if !inserted {
			return nil
		}

		if err := s.store.IncrementBalance(ctx, tx, entry.OrganizationID, entry.TotalCostNano); err != nil {
			return xerrors.Wrap(xerrors.KindInternal, "increment organization balance", err)
		}

		return nil
	})
}
