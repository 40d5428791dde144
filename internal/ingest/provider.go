package ingest

import (
	"context"

	"github.com/gallerist/token-ingest/internal/domain"
)

// FetchOptions carries per-session fetch preferences
type FetchOptions struct {
	// ExcludeSpam drops records the provider classified as spam. Exact
	// non-spam counts require full page fetches, so enabling this makes
	// count-driven completeness checks a higher-latency path.
	ExcludeSpam bool
}

// Page is one page of normalized records from a provider
type Page struct {
	Records []domain.NormalizedRecord
	// NextCursor is the opaque continuation token; nil or empty means the
	// provider claims there is no more data. Providers are known to be wrong
	// about this, which is the orchestrator's problem.
	NextCursor *string
	// TotalCount is the provider's claimed total for the wallet, when the
	// provider documents one
	TotalCount *int
}

// TokenProvider is the common adapter contract over one upstream indexing
// provider
//
//go:generate mockgen -source=provider.go -destination=../mocks/token_provider.go -package=mocks -mock_names=TokenProvider=MockTokenProvider
type TokenProvider interface {
	// Name returns the provider tag used as the queue entry source
	Name() string

	// FetchPage fetches one page of tokens owned by wallet, already mapped to
	// the canonical record shape. Records that do not match the expected
	// provider shape are skipped, not fatal.
	FetchPage(ctx context.Context, wallet string, pageSize int, cursor string, opts FetchOptions) (*Page, error)

	// OwnedCount returns the provider's cheap owned-token count for a wallet.
	// Providers without a count endpoint return domain.ErrCountUnavailable.
	OwnedCount(ctx context.Context, wallet string) (int, error)
}
