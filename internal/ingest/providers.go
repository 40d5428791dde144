package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gallerist/token-ingest/internal/domain"
	"github.com/gallerist/token-ingest/internal/logger"
	"github.com/gallerist/token-ingest/internal/providers/vendors/alchemy"
	"github.com/gallerist/token-ingest/internal/providers/vendors/opensea"
	"github.com/gallerist/token-ingest/internal/ratelimit"
)

// OpenSeaProvider adapts the OpenSea client to the TokenProvider contract.
// OpenSea paginates with an opaque cursor and exposes no owned-count endpoint.
type OpenSeaProvider struct {
	client  opensea.Client
	limiter ratelimit.Limiter
}

// NewOpenSeaProvider creates the OpenSea provider adapter. The limiter should
// be owned by the calling ingestion session.
func NewOpenSeaProvider(client opensea.Client, limiter ratelimit.Limiter) *OpenSeaProvider {
	return &OpenSeaProvider{client: client, limiter: limiter}
}

// Name returns the provider tag used as the queue entry source
func (p *OpenSeaProvider) Name() string {
	return opensea.PROVIDER_NAME
}

// FetchPage fetches one page of a wallet's tokens and maps it to the canonical
// shape. Records that fail mapping are skipped and logged, never fatal for the
// page.
func (p *OpenSeaProvider) FetchPage(ctx context.Context, wallet string, pageSize int, cursor string, _ FetchOptions) (*Page, error) {
	raw, res := ratelimit.Call(ctx, p.limiter, "opensea.list_assets", func(ctx context.Context) (*opensea.AssetsPage, error) {
		return p.client.ListAssetsByAccount(ctx, wallet, pageSize, cursor)
	})
	if !res.Success {
		return nil, fmt.Errorf("opensea page fetch failed after %d attempts: %w", res.Attempts, res.Err)
	}

	page := &Page{}
	if raw.Next != "" {
		next := raw.Next
		page.NextCursor = &next
	}

	for _, asset := range raw.NFTs {
		record, err := MapOpenSeaAsset(asset)
		if err != nil {
			logger.Warn("skipping malformed opensea record",
				zap.String("wallet", wallet),
				zap.Error(err))
			continue
		}
		page.Records = append(page.Records, record)
	}

	return page, nil
}

// OwnedCount is unavailable on OpenSea
func (p *OpenSeaProvider) OwnedCount(_ context.Context, _ string) (int, error) {
	return 0, domain.ErrCountUnavailable
}

// AlchemyProvider adapts the Alchemy client to the TokenProvider contract.
// Alchemy paginates with a page key, documents a total count on every page,
// and classifies spam contracts per item.
type AlchemyProvider struct {
	client  alchemy.Client
	limiter ratelimit.Limiter

	// deployer lookups are contract-level; cache them for the session
	contractMeta map[string]*alchemy.ContractMetadata
}

// NewAlchemyProvider creates the Alchemy provider adapter. The limiter should
// be owned by the calling ingestion session.
func NewAlchemyProvider(client alchemy.Client, limiter ratelimit.Limiter) *AlchemyProvider {
	return &AlchemyProvider{
		client:       client,
		limiter:      limiter,
		contractMeta: make(map[string]*alchemy.ContractMetadata),
	}
}

// Name returns the provider tag used as the queue entry source
func (p *AlchemyProvider) Name() string {
	return alchemy.PROVIDER_NAME
}

// FetchPage fetches one page of a wallet's tokens, drops spam-classified items
// when requested, and maps the rest to the canonical shape
func (p *AlchemyProvider) FetchPage(ctx context.Context, wallet string, pageSize int, cursor string, opts FetchOptions) (*Page, error) {
	raw, res := ratelimit.Call(ctx, p.limiter, "alchemy.nfts_for_owner", func(ctx context.Context) (*alchemy.OwnedNFTsPage, error) {
		return p.client.GetNFTsForOwner(ctx, wallet, pageSize, cursor)
	})
	if !res.Success {
		return nil, fmt.Errorf("alchemy page fetch failed after %d attempts: %w", res.Attempts, res.Err)
	}

	page := &Page{}
	if raw.PageKey != nil && *raw.PageKey != "" {
		page.NextCursor = raw.PageKey
	}
	if raw.TotalCount > 0 {
		total := raw.TotalCount
		page.TotalCount = &total
	}

	for _, nft := range raw.OwnedNFTs {
		if opts.ExcludeSpam && nft.IsSpam() {
			continue
		}

		record, err := MapAlchemyNFT(nft)
		if err != nil {
			logger.Warn("skipping malformed alchemy record",
				zap.String("wallet", wallet),
				zap.Error(err))
			continue
		}

		// The embedded contract deployer is sometimes absent; fall back to a
		// cached contract metadata lookup so creator attribution keeps its
		// deployer candidate
		if record.Creator == nil {
			if deployer := p.lookupDeployer(ctx, record.ContractAddress); deployer != "" {
				record.Creator = &domain.CreatorInfo{
					Address:          deployer,
					ResolutionSource: domain.CreatorSourceContractDeployer,
				}
			}
		}

		page.Records = append(page.Records, record)
	}

	return page, nil
}

// OwnedCount returns the provider's documented total for a wallet. The raw
// count may include spam; use NonSpamOwnedCount for an exact non-spam count.
func (p *AlchemyProvider) OwnedCount(ctx context.Context, wallet string) (int, error) {
	raw, res := ratelimit.Call(ctx, p.limiter, "alchemy.owned_count", func(ctx context.Context) (*alchemy.OwnedNFTsPage, error) {
		return p.client.GetNFTsForOwner(ctx, wallet, 1, "")
	})
	if !res.Success {
		return 0, fmt.Errorf("alchemy count fetch failed after %d attempts: %w", res.Attempts, res.Err)
	}
	return raw.TotalCount, nil
}

// NonSpamOwnedCount counts a wallet's non-spam tokens. Spam classification is
// per item, so this walks full pages; callers must expect a higher-latency
// path than OwnedCount.
func (p *AlchemyProvider) NonSpamOwnedCount(ctx context.Context, wallet string, pageSize int) (int, error) {
	var count int
	cursor := ""

	for {
		raw, res := ratelimit.Call(ctx, p.limiter, "alchemy.non_spam_count", func(ctx context.Context) (*alchemy.OwnedNFTsPage, error) {
			return p.client.GetNFTsForOwner(ctx, wallet, pageSize, cursor)
		})
		if !res.Success {
			return count, fmt.Errorf("alchemy count fetch failed after %d attempts: %w", res.Attempts, res.Err)
		}

		for _, nft := range raw.OwnedNFTs {
			if !nft.IsSpam() {
				count++
			}
		}

		if raw.PageKey == nil || *raw.PageKey == "" {
			return count, nil
		}
		cursor = *raw.PageKey
	}
}

func (p *AlchemyProvider) lookupDeployer(ctx context.Context, contractAddress string) string {
	if meta, ok := p.contractMeta[contractAddress]; ok {
		if meta == nil {
			return ""
		}
		return domain.SafeString(meta.ContractDeployer)
	}

	meta, res := ratelimit.Call(ctx, p.limiter, "alchemy.contract_metadata", func(ctx context.Context) (*alchemy.ContractMetadata, error) {
		return p.client.GetContractMetadata(ctx, contractAddress)
	})
	if !res.Success {
		// Negative-cache so one broken contract does not retrigger lookups
		p.contractMeta[contractAddress] = nil
		return ""
	}

	p.contractMeta[contractAddress] = meta
	return domain.SafeString(meta.ContractDeployer)
}
