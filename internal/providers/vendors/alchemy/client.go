package alchemy

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/gallerist/token-ingest/internal/adapter"
	"github.com/gallerist/token-ingest/internal/domain"
)

const PROVIDER_NAME = "alchemy"

// OwnedNFT represents one NFT from the getNFTsForOwner endpoint (NFT API v3)
type OwnedNFT struct {
	Contract    ContractInfo `json:"contract"`
	TokenID     string       `json:"tokenId"`
	TokenType   *string      `json:"tokenType"`
	Name        *string      `json:"name"`
	Description *string      `json:"description"`
	TokenURI    *string      `json:"tokenUri"`
	Image       ImageInfo    `json:"image"`
	Raw         RawInfo      `json:"raw"`
	Balance     *string      `json:"balance"`
	Mint        *MintInfo    `json:"mint"`
	AcquiredAt  *AcquiredAt  `json:"acquiredAt"`
}

// ContractInfo carries the contract-level fields embedded on each NFT
type ContractInfo struct {
	Address             string           `json:"address"`
	Name                *string          `json:"name"`
	Symbol              *string          `json:"symbol"`
	TotalSupply         *string          `json:"totalSupply"`
	TokenType           *string          `json:"tokenType"`
	ContractDeployer    *string          `json:"contractDeployer"`
	IsSpam              *bool            `json:"isSpam"`
	SpamClassifications []string         `json:"spamClassifications"`
	OpenSeaMetadata     *OpenSeaMetadata `json:"openSeaMetadata"`
}

// OpenSeaMetadata is the marketplace metadata Alchemy relays per contract
type OpenSeaMetadata struct {
	CollectionName *string `json:"collectionName"`
	CollectionSlug *string `json:"collectionSlug"`
	Description    *string `json:"description"`
	ImageURL       *string `json:"imageUrl"`
	ExternalURL    *string `json:"externalUrl"`
}

// ImageInfo carries the cached media variants for an NFT
type ImageInfo struct {
	CachedURL    *string `json:"cachedUrl"`
	ThumbnailURL *string `json:"thumbnailUrl"`
	PngURL       *string `json:"pngUrl"`
	OriginalURL  *string `json:"originalUrl"`
	ContentType  *string `json:"contentType"`
	Size         *int64  `json:"size"`
}

// RawInfo carries the token's raw on-chain metadata
type RawInfo struct {
	TokenURI *string                `json:"tokenUri"`
	Metadata map[string]interface{} `json:"metadata"`
	Error    *string                `json:"error"`
}

// MintInfo describes the mint transaction of an NFT
type MintInfo struct {
	MintAddress     *string `json:"mintAddress"`
	BlockNumber     *uint64 `json:"blockNumber"`
	Timestamp       *string `json:"timestamp"`
	TransactionHash *string `json:"transactionHash"`
}

// AcquiredAt describes when the current owner received the NFT
type AcquiredAt struct {
	BlockTimestamp *string `json:"blockTimestamp"`
	BlockNumber    *uint64 `json:"blockNumber"`
}

// OwnedNFTsPage is one page of getNFTsForOwner. PageKey is nil on the last
// page; TotalCount is the provider's documented total for the wallet and is
// present on every page.
type OwnedNFTsPage struct {
	OwnedNFTs  []OwnedNFT `json:"ownedNfts"`
	PageKey    *string    `json:"pageKey"`
	TotalCount int        `json:"totalCount"`
}

// ContractMetadata is the response of getContractMetadata
type ContractMetadata struct {
	Address          string  `json:"address"`
	Name             *string `json:"name"`
	Symbol           *string `json:"symbol"`
	TotalSupply      *string `json:"totalSupply"`
	TokenType        *string `json:"tokenType"`
	ContractDeployer *string `json:"contractDeployer"`
	DeployedBlock    *uint64 `json:"deployedBlockNumber"`
}

// Client defines the interface for Alchemy NFT API operations to enable mocking
//
//go:generate mockgen -source=client.go -destination=../../../mocks/alchemy_client.go -package=mocks -mock_names=Client=MockAlchemyClient
type Client interface {
	// GetNFTsForOwner fetches one page of NFTs owned by a wallet
	GetNFTsForOwner(ctx context.Context, owner string, pageSize int, pageKey string) (*OwnedNFTsPage, error)

	// GetContractMetadata fetches contract-level metadata (deployer, token type)
	GetContractMetadata(ctx context.Context, contractAddress string) (*ContractMetadata, error)
}

// AlchemyClient implements the Alchemy NFT API client
type AlchemyClient struct {
	httpClient adapter.HTTPClient
	apiURL     string
	apiKey     string
	json       adapter.JSON
}

// NewClient creates a new Alchemy client
func NewClient(httpClient adapter.HTTPClient, apiURL string, apiKey string, json adapter.JSON) Client {
	return &AlchemyClient{
		httpClient: httpClient,
		apiURL:     apiURL,
		apiKey:     apiKey,
		json:       json,
	}
}

// GetNFTsForOwner fetches one page of NFTs owned by a wallet, with full
// metadata so spam classification and media fields are present
func (c *AlchemyClient) GetNFTsForOwner(ctx context.Context, owner string, pageSize int, pageKey string) (*OwnedNFTsPage, error) {
	if c.apiKey == "" {
		return nil, domain.ErrMissingCredentials
	}

	endpoint := fmt.Sprintf("%s/%s/getNFTsForOwner?owner=%s&withMetadata=true&pageSize=%d",
		c.apiURL,
		c.apiKey,
		url.QueryEscape(owner),
		pageSize,
	)
	if pageKey != "" {
		endpoint += "&pageKey=" + url.QueryEscape(pageKey)
	}

	respBody, err := c.httpClient.GetBytes(ctx, endpoint, nil)
	if err != nil {
		return nil, wrapProviderError(err)
	}

	var page OwnedNFTsPage
	if err := c.json.Unmarshal(respBody, &page); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal Alchemy owner page: %v", domain.ErrShapeMismatch, err)
	}

	return &page, nil
}

// GetContractMetadata fetches contract-level metadata
func (c *AlchemyClient) GetContractMetadata(ctx context.Context, contractAddress string) (*ContractMetadata, error) {
	if c.apiKey == "" {
		return nil, domain.ErrMissingCredentials
	}

	endpoint := fmt.Sprintf("%s/%s/getContractMetadata?contractAddress=%s",
		c.apiURL,
		c.apiKey,
		url.QueryEscape(contractAddress),
	)

	respBody, err := c.httpClient.GetBytes(ctx, endpoint, nil)
	if err != nil {
		return nil, wrapProviderError(err)
	}

	var meta ContractMetadata
	if err := c.json.Unmarshal(respBody, &meta); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal Alchemy contract metadata: %v", domain.ErrShapeMismatch, err)
	}

	return &meta, nil
}

// IsSpam reports whether the provider classified the NFT's contract as spam
func (n *OwnedNFT) IsSpam() bool {
	if n.Contract.IsSpam != nil && *n.Contract.IsSpam {
		return true
	}
	return len(n.Contract.SpamClassifications) > 0
}

func wrapProviderError(err error) error {
	var statusErr *adapter.StatusError
	if errors.As(err, &statusErr) {
		return &domain.ProviderError{
			Provider:   PROVIDER_NAME,
			StatusCode: statusErr.StatusCode,
			Body:       statusErr.Body,
		}
	}
	return fmt.Errorf("failed to call Alchemy API: %w", err)
}
