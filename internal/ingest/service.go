package ingest

import (
	"context"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/gallerist/token-ingest/internal/adapter"
	"github.com/gallerist/token-ingest/internal/config"
	"github.com/gallerist/token-ingest/internal/domain"
	"github.com/gallerist/token-ingest/internal/logger"
	"github.com/gallerist/token-ingest/internal/providers/vendors/alchemy"
	"github.com/gallerist/token-ingest/internal/providers/vendors/opensea"
	"github.com/gallerist/token-ingest/internal/ratelimit"
	"github.com/gallerist/token-ingest/internal/store"
)

// WalletResult is the outcome of one wallet ingestion session
type WalletResult struct {
	Wallet    string
	SessionID string
	// Records is the deduplicated set the session fetched, in first-seen order
	Records []domain.NormalizedRecord
	// Providers lists the provider tags that contributed records, in order;
	// fallback providers carry a "provider_fallback:" prefix
	Providers []string
	// StrategiesUsed lists the pagination strategies the contributing
	// providers ran, in execution order
	StrategiesUsed []string
	Enqueued       int
	Skipped        int
	Warnings       []string
	Err            error
}

// Service drives ingestion sessions: fetch via the pagination orchestrator,
// dedup, and enqueue into the durable index queue
type Service struct {
	cfg   *config.IngestConfig
	store store.Store
	http  adapter.HTTPClient
	json  adapter.JSON
	clock adapter.Clock

	// hits is shared across all sessions so concurrent wallets feel each
	// other's rate-limit pressure
	hits *ratelimit.HitCounter

	// workers bounds concurrent wallet sessions
	workers int
}

// NewService creates an ingestion service
func NewService(cfg *config.IngestConfig, s store.Store, httpClient adapter.HTTPClient, jsonAdapter adapter.JSON, clock adapter.Clock, workers int) *Service {
	if workers <= 0 {
		workers = 4
	}
	return &Service{
		cfg:     cfg,
		store:   s,
		http:    httpClient,
		json:    jsonAdapter,
		clock:   clock,
		hits:    ratelimit.NewHitCounter(clock, cfg.RateLimiter.GlobalWindow),
		workers: workers,
	}
}

// newProviders builds the provider chain for one session, primary first.
// Limiters are per-session so one wallet's backoff does not slow another;
// only the hit counter is shared.
func (s *Service) newProviders() []TokenProvider {
	openseaClient := opensea.NewClient(s.http, s.cfg.Providers.OpenSeaURL, s.cfg.Providers.OpenSeaAPIKey, s.json)
	alchemyClient := alchemy.NewClient(s.http, s.cfg.Providers.AlchemyURL, s.cfg.Providers.AlchemyAPIKey, s.json)

	return []TokenProvider{
		NewOpenSeaProvider(openseaClient, ratelimit.NewAdaptiveLimiter(s.cfg.RateLimiter, s.clock, s.hits)),
		NewAlchemyProvider(alchemyClient, ratelimit.NewAdaptiveLimiter(s.cfg.RateLimiter, s.clock, s.hits)),
	}
}

// IngestWallet runs one full ingestion session for a wallet: orchestrated
// fetch from the primary provider, fallback to the next provider when the
// primary errors out or comes back empty, dedup, and enqueue
func (s *Service) IngestWallet(ctx context.Context, wallet string, opts FetchOptions) *WalletResult {
	result := &WalletResult{
		Wallet:    wallet,
		SessionID: ulid.Make().String(),
	}

	if !domain.IsEthereumAddress(wallet) {
		result.Err = fmt.Errorf("unsupported wallet address %q", wallet)
		return result
	}
	wallet = domain.NormalizeContractAddress(wallet)

	orchestrator := NewOrchestrator(s.cfg.Pagination, s.clock)

	var merged []domain.NormalizedRecord
	for i, provider := range s.newProviders() {
		if i > 0 && len(merged) > 0 {
			break
		}

		tag := provider.Name()
		if i > 0 {
			tag = "provider_fallback:" + provider.Name()
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("primary provider yielded nothing, falling back to %s", provider.Name()))
		}

		expected := s.expectedCount(ctx, provider, wallet)
		fetch := orchestrator.FetchAll(ctx, provider, wallet, expected, opts)
		result.Warnings = append(result.Warnings, fetch.Warnings...)

		logger.InfoCtx(ctx, "provider fetch complete",
			zap.String("session_id", result.SessionID),
			zap.String("wallet", wallet),
			zap.String("provider", provider.Name()),
			zap.Int("records", len(fetch.Records)),
			zap.Int("pages", fetch.PagesProcessed),
			zap.Strings("strategies", fetch.StrategiesUsed))

		if len(fetch.Records) == 0 {
			continue
		}

		result.Providers = append(result.Providers, tag)
		result.StrategiesUsed = append(result.StrategiesUsed, fetch.StrategiesUsed...)
		merged = Dedup(append(merged, fetch.Records...))
	}

	if len(merged) == 0 {
		result.Warnings = append(result.Warnings, "no provider returned records for wallet")
		return result
	}
	result.Records = merged

	for i := range merged {
		record := merged[i]
		if !record.HasIdentity() {
			result.Skipped++
			logger.WarnCtx(ctx, "skipping record without identity",
				zap.String("session_id", result.SessionID),
				zap.String("wallet", wallet))
			continue
		}

		source := result.Providers[0]
		if _, err := s.store.UpsertQueueEntry(ctx, record, source); err != nil {
			result.Err = fmt.Errorf("failed to enqueue %s: %w", record.IdentityKey(), err)
			return result
		}
		result.Enqueued++
	}

	logger.InfoCtx(ctx, "wallet ingestion complete",
		zap.String("session_id", result.SessionID),
		zap.String("wallet", wallet),
		zap.Int("enqueued", result.Enqueued),
		zap.Int("skipped", result.Skipped),
		zap.Int("warnings", len(result.Warnings)))

	return result
}

// IngestWallets fans independent wallet sessions out on a bounded worker
// pool and waits for all of them
func (s *Service) IngestWallets(ctx context.Context, wallets []string, opts FetchOptions) []*WalletResult {
	pool := pond.NewResultPool[*WalletResult](s.workers, pond.WithContext(ctx))
	defer func() { _ = pool.Stop() }()

	tasks := make([]pond.Result[*WalletResult], 0, len(wallets))
	for _, wallet := range wallets {
		w := wallet
		tasks = append(tasks, pool.Submit(func() *WalletResult {
			return s.IngestWallet(ctx, w, opts)
		}))
	}

	results := make([]*WalletResult, 0, len(wallets))
	for i, task := range tasks {
		res, err := task.Wait()
		if res == nil {
			res = &WalletResult{Wallet: wallets[i], Err: err}
		}
		results = append(results, res)
	}
	return results
}

// expectedCount asks the provider for its claimed total; providers without a
// count endpoint contribute zero and the orchestrator adopts in-band totals
func (s *Service) expectedCount(ctx context.Context, provider TokenProvider, wallet string) int {
	count, err := provider.OwnedCount(ctx, wallet)
	if err != nil {
		return 0
	}
	return count
}
