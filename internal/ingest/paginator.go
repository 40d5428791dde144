package ingest

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/gallerist/token-ingest/internal/adapter"
	"github.com/gallerist/token-ingest/internal/config"
	"github.com/gallerist/token-ingest/internal/domain"
	"github.com/gallerist/token-ingest/internal/logger"
)

// distrust an early "no more data" signal below this share of the expected count
const underReportThreshold = 0.8

// rerun with alternate page sizes when the primary strategy lands below this
// share of the expected count
const completenessThreshold = 0.85

// sessionState is the pagination session state machine
type sessionState int

const (
	stateFetching sessionState = iota
	stateBackoff
	stateDone
	stateAborted
)

// FetchResult is the best-effort output of one orchestrated fetch. Warnings
// describe residual uncertainty and are advisory, never fatal: a caller always
// gets the records that could be recovered.
type FetchResult struct {
	Records        []domain.NormalizedRecord
	PagesProcessed int
	StrategiesUsed []string
	Warnings       []string
}

// Orchestrator drives a TokenProvider through multiple fetch strategies to
// recover records that naive single-strategy pagination would miss. Providers
// are known to return a null cursor while still holding undelivered records;
// the orchestrator compensates with cursor-chain restarts and alternate page
// sizes, feeding everything through the deduplicator.
type Orchestrator struct {
	cfg   config.PaginationConfig
	clock adapter.Clock
}

// NewOrchestrator creates a pagination orchestrator
func NewOrchestrator(cfg config.PaginationConfig, clock adapter.Clock) *Orchestrator {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 50
	}
	if len(cfg.FallbackPageSizes) == 0 {
		cfg.FallbackPageSizes = []int{25, 100}
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 200
	}
	if cfg.MaxConsecutiveEmptyPages <= 0 {
		cfg.MaxConsecutiveEmptyPages = 3
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 3
	}
	if cfg.InterPageDelay <= 0 {
		cfg.InterPageDelay = 300 * time.Millisecond
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	return &Orchestrator{cfg: cfg, clock: clock}
}

// FetchAll fetches every token a wallet owns on one provider, best-effort.
// expectedCount, when positive, is an independently sourced owned-token count
// that the orchestrator uses to decide whether to distrust the provider's
// pagination; pass 0 when no such count is known.
func (o *Orchestrator) FetchAll(ctx context.Context, provider TokenProvider, wallet string, expectedCount int, opts FetchOptions) *FetchResult {
	result := &FetchResult{}

	records, pages, warnings := o.runStrategy(ctx, provider, wallet, o.cfg.DefaultPageSize, &expectedCount, opts)
	result.Records = Dedup(records)
	result.PagesProcessed = pages
	result.StrategiesUsed = append(result.StrategiesUsed, "primary")
	result.Warnings = append(result.Warnings, warnings...)

	// Alternate page sizes recover from provider-side bugs sensitive to page
	// size. Only worth running when an independent count says we are short.
	if expectedCount > 0 && float64(len(result.Records)) < completenessThreshold*float64(expectedCount) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"primary pagination returned %d of %d expected records; provider may be under-reporting",
			len(result.Records), expectedCount))

		for _, pageSize := range o.cfg.FallbackPageSizes {
			if ctx.Err() != nil {
				break
			}

			before := len(result.Records)
			records, pages, warnings := o.runStrategy(ctx, provider, wallet, pageSize, &expectedCount, opts)
			result.Records = Dedup(append(result.Records, records...))
			result.PagesProcessed += pages
			result.StrategiesUsed = append(result.StrategiesUsed, fmt.Sprintf("page_size_%d", pageSize))
			result.Warnings = append(result.Warnings, warnings...)

			recovered := len(result.Records) - before
			logger.Info("fallback pagination strategy finished",
				zap.String("provider", provider.Name()),
				zap.String("wallet", wallet),
				zap.Int("page_size", pageSize),
				zap.Int("recovered", recovered))

			// Stop early once a strategy contributes materially more than one
			// page of new records, or once the expected count is reached
			if recovered > pageSize || len(result.Records) >= expectedCount {
				break
			}
		}
	}

	return result
}

// runStrategy runs one cursor-pagination session at a fixed page size. It
// terminates in bounded time through its hard caps and reports problems as
// warnings so callers can use partial results.
func (o *Orchestrator) runStrategy(ctx context.Context, provider TokenProvider, wallet string, pageSize int, expectedCount *int, opts FetchOptions) (records []domain.NormalizedRecord, pages int, warnings []string) {
	var (
		cursor       string
		emptyStreak  int
		failStreak   int
		cursorResets int
		state        = stateFetching
	)

	for state == stateFetching || state == stateBackoff {
		if ctx.Err() != nil {
			warnings = append(warnings, "fetch session canceled: "+ctx.Err().Error())
			return records, pages, warnings
		}
		if pages >= o.cfg.MaxPages {
			warnings = append(warnings, fmt.Sprintf("aborted after hard cap of %d pages", o.cfg.MaxPages))
			return records, pages, warnings
		}

		page, err := provider.FetchPage(ctx, wallet, pageSize, cursor, opts)
		if err != nil {
			failStreak++
			if failStreak >= o.cfg.MaxConsecutiveFailures {
				warnings = append(warnings, fmt.Sprintf(
					"aborted after %d consecutive request failures: %v", failStreak, err))
				return records, pages, warnings
			}
			o.sleep(ctx, o.backoff(failStreak))
			state = stateBackoff
			continue
		}

		pages++
		state = stateFetching

		// Adopt the provider's documented total when no independent count was
		// supplied; it feeds the same distrust heuristics
		if *expectedCount <= 0 && page.TotalCount != nil && *page.TotalCount > 0 {
			*expectedCount = *page.TotalCount
		}

		if len(page.Records) > 0 {
			records = append(records, page.Records...)
			emptyStreak = 0
			failStreak = 0

			if domain.StringNilOrEmpty(page.NextCursor) {
				state = stateDone
				continue
			}
			cursor = *page.NextCursor
			o.sleep(ctx, o.cfg.InterPageDelay)
			continue
		}

		// Empty page
		emptyStreak++

		if !domain.StringNilOrEmpty(page.NextCursor) {
			// Empty page with a continuation cursor: transient provider
			// glitch. Continue with a longer delay unless it keeps recurring.
			if emptyStreak >= o.cfg.MaxConsecutiveEmptyPages {
				warnings = append(warnings, fmt.Sprintf(
					"aborted after %d consecutive empty pages with continuation cursors", emptyStreak))
				state = stateAborted
				continue
			}
			cursor = *page.NextCursor
			o.sleep(ctx, 2*o.cfg.InterPageDelay)
			continue
		}

		// Empty page with no cursor: the provider claims completion. Distrust
		// it while the unique running total is well below an independently
		// known count; restart the cursor chain after exponential backoff.
		// Restarted chains re-deliver records, so the raw slice length
		// overstates progress.
		unique := uniqueRecordCount(records)
		if *expectedCount > 0 &&
			float64(unique) < underReportThreshold*float64(*expectedCount) &&
			cursorResets < o.cfg.MaxConsecutiveEmptyPages {
			cursorResets++
			warnings = append(warnings, fmt.Sprintf(
				"provider signaled completion at %d of %d expected records; retrying from the start of the cursor chain (attempt %d)",
				unique, *expectedCount, cursorResets))
			logger.Warn("provider may be under-reporting, restarting cursor chain",
				zap.String("provider", provider.Name()),
				zap.String("wallet", wallet),
				zap.Int("have", unique),
				zap.Int("expected", *expectedCount),
				zap.Int("attempt", cursorResets))
			o.sleep(ctx, o.backoff(emptyStreak))
			cursor = ""
			state = stateBackoff
			continue
		}

		state = stateDone
	}

	return records, pages, warnings
}

// uniqueRecordCount counts distinct identities in a possibly-repetitive
// record slice
func uniqueRecordCount(records []domain.NormalizedRecord) int {
	seen := make(map[string]struct{}, len(records))
	for i := range records {
		seen[records[i].IdentityKey()] = struct{}{}
	}
	return len(seen)
}

// backoff computes the exponential session backoff for the given streak
func (o *Orchestrator) backoff(streak int) time.Duration {
	return time.Duration(float64(o.cfg.BaseBackoff) * math.Pow(2, float64(streak-1)))
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-o.clock.After(d):
	}
}
