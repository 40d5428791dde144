package opensea

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gallerist/token-ingest/internal/adapter"
	"github.com/gallerist/token-ingest/internal/domain"
)

const PROVIDER_NAME = "opensea"

// Asset represents one NFT from the OpenSea account NFTs endpoint
type Asset struct {
	Identifier          string  `json:"identifier"`
	Collection          string  `json:"collection"`
	Contract            string  `json:"contract"`
	TokenStandard       *string `json:"token_standard"`
	Name                *string `json:"name"`
	Description         *string `json:"description"`
	ImageURL            *string `json:"image_url"`
	DisplayImageURL     *string `json:"display_image_url"`
	DisplayAnimationURL *string `json:"display_animation_url"`
	AnimationURL        *string `json:"animation_url"`
	MetadataURL         *string `json:"metadata_url"`
	UpdatedAt           *string `json:"updated_at"`
	Creator             *string `json:"creator"`
	Traits              []Trait `json:"traits"`
}

// Trait represents a trait/attribute of an NFT
type Trait struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
}

// AssetsPage is one page of the account NFTs endpoint. Next is the opaque
// continuation cursor; empty means the provider claims there is no more data,
// which historically undercounts large wallets.
type AssetsPage struct {
	NFTs []Asset `json:"nfts"`
	Next string  `json:"next"`
}

// Collection represents collection metadata from the collections endpoint
type Collection struct {
	Slug        string  `json:"collection"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
	ProjectURL  *string `json:"project_url"`
	Owner       *string `json:"owner"`
	Contracts   []struct {
		Address string `json:"address"`
		Chain   string `json:"chain"`
	} `json:"contracts"`
}

// Client defines the interface for OpenSea client operations to enable mocking
//
//go:generate mockgen -source=client.go -destination=../../../mocks/opensea_client.go -package=mocks -mock_names=Client=MockOpenSeaClient
type Client interface {
	// ListAssetsByAccount fetches one page of NFTs owned by a wallet
	ListAssetsByAccount(ctx context.Context, wallet string, limit int, next string) (*AssetsPage, error)

	// GetCollection fetches collection metadata by slug
	GetCollection(ctx context.Context, slug string) (*Collection, error)
}

// OpenSeaClient implements OpenSea client
type OpenSeaClient struct {
	httpClient adapter.HTTPClient
	apiURL     string
	apiKey     string
	json       adapter.JSON
}

// NewClient creates a new OpenSea client
func NewClient(httpClient adapter.HTTPClient, apiURL string, apiKey string, json adapter.JSON) Client {
	return &OpenSeaClient{
		httpClient: httpClient,
		apiURL:     apiURL,
		apiKey:     apiKey,
		json:       json,
	}
}

// ListAssetsByAccount fetches one page of NFTs owned by a wallet from the
// OpenSea API v2
func (c *OpenSeaClient) ListAssetsByAccount(ctx context.Context, wallet string, limit int, next string) (*AssetsPage, error) {
	if c.apiKey == "" {
		return nil, domain.ErrMissingCredentials
	}

	endpoint := fmt.Sprintf("%s/chain/ethereum/account/%s/nfts?limit=%d",
		c.apiURL,
		strings.ToLower(wallet),
		limit,
	)
	if next != "" {
		endpoint += "&next=" + url.QueryEscape(next)
	}

	respBody, err := c.httpClient.GetBytes(ctx, endpoint, c.headers())
	if err != nil {
		return nil, wrapProviderError(err)
	}

	var page AssetsPage
	if err := c.json.Unmarshal(respBody, &page); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal OpenSea assets page: %v", domain.ErrShapeMismatch, err)
	}

	return &page, nil
}

// GetCollection fetches collection metadata by slug
func (c *OpenSeaClient) GetCollection(ctx context.Context, slug string) (*Collection, error) {
	if c.apiKey == "" {
		return nil, domain.ErrMissingCredentials
	}

	endpoint := fmt.Sprintf("%s/collections/%s", c.apiURL, url.PathEscape(slug))

	respBody, err := c.httpClient.GetBytes(ctx, endpoint, c.headers())
	if err != nil {
		return nil, wrapProviderError(err)
	}

	var collection Collection
	if err := c.json.Unmarshal(respBody, &collection); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal OpenSea collection: %v", domain.ErrShapeMismatch, err)
	}

	return &collection, nil
}

func (c *OpenSeaClient) headers() map[string]string {
	return map[string]string{
		"X-API-KEY": c.apiKey,
		"Accept":    "application/json",
	}
}

// wrapProviderError converts adapter status errors into the typed provider
// error the rate limiter classifies on
func wrapProviderError(err error) error {
	var statusErr *adapter.StatusError
	if errors.As(err, &statusErr) {
		return &domain.ProviderError{
			Provider:   PROVIDER_NAME,
			StatusCode: statusErr.StatusCode,
			Body:       statusErr.Body,
		}
	}
	return fmt.Errorf("failed to call OpenSea API: %w", err)
}
