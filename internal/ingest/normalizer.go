package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gallerist/token-ingest/internal/domain"
	"github.com/gallerist/token-ingest/internal/metadata"
	"github.com/gallerist/token-ingest/internal/providers/vendors/alchemy"
	"github.com/gallerist/token-ingest/internal/providers/vendors/opensea"
)

// ManualSubmission is the manually-submitted record shape accepted alongside
// provider payloads
type ManualSubmission struct {
	ContractAddress string            `json:"contract_address"`
	TokenID         string            `json:"token_id"`
	Blockchain      string            `json:"blockchain,omitempty"`
	Title           string            `json:"title,omitempty"`
	Description     string            `json:"description,omitempty"`
	ImageURL        string            `json:"image_url,omitempty"`
	ThumbnailURL    string            `json:"thumbnail_url,omitempty"`
	AnimationURL    string            `json:"animation_url,omitempty"`
	MetadataURL     string            `json:"metadata_url,omitempty"`
	CreatorAddress  string            `json:"creator_address,omitempty"`
	CreatorName     string            `json:"creator_name,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
}

// firstNonEmpty returns the first candidate that is set and non-empty, or nil.
// Unset logical fields stay nil so downstream merges can tell "unknown" from
// "known empty".
func firstNonEmpty(candidates ...*string) *string {
	for _, c := range candidates {
		if c != nil && *c != "" {
			v := *c
			return &v
		}
	}
	return nil
}

// MapOpenSeaAsset maps one OpenSea asset into the canonical record shape
func MapOpenSeaAsset(a opensea.Asset) (domain.NormalizedRecord, error) {
	if a.Contract == "" || a.Identifier == "" {
		return domain.NormalizedRecord{}, fmt.Errorf("%w: opensea asset %q/%q", domain.ErrShapeMismatch, a.Contract, a.Identifier)
	}

	record := domain.NormalizedRecord{
		ContractAddress: domain.NormalizeContractAddress(a.Contract),
		TokenID:         a.Identifier,
		Blockchain:      domain.AddressToBlockchain(a.Contract),
		Title:           firstNonEmpty(a.Name),
		Description:     firstNonEmpty(a.Description),
		TokenStandard:   firstNonEmpty(a.TokenStandard),
		ImageURL:        firstNonEmpty(a.ImageURL, a.DisplayImageURL),
		ThumbnailURL:    firstNonEmpty(a.DisplayImageURL),
		AnimationURL:    firstNonEmpty(a.AnimationURL, a.DisplayAnimationURL),
		MetadataURL:     firstNonEmpty(a.MetadataURL),
	}

	if record.AnimationURL != nil && strings.Contains(strings.ToLower(*record.AnimationURL), "generator") {
		record.GeneratorURL = record.AnimationURL
	}

	for _, trait := range a.Traits {
		value := stringifyTraitValue(trait.Value)
		if trait.TraitType == "" || value == "" {
			continue
		}
		record.Attributes = append(record.Attributes, domain.Attribute{
			TraitType: trait.TraitType,
			Value:     value,
		})
	}

	record.Creator = metadata.ResolveCreator(metadata.CreatorCandidates{
		MetadataCreator: domain.SafeString(a.Creator),
	})

	record.Dimensions = metadata.ResolveDimensions(metadata.DimensionInput{
		Attributes: record.Attributes,
		FreeText:   []string{domain.SafeString(a.Description)},
	})

	if a.Collection != "" {
		record.Collection = &domain.CollectionInfo{
			Slug:            a.Collection,
			ContractAddress: record.ContractAddress,
		}
	}

	return record, nil
}

// MapAlchemyNFT maps one Alchemy owned NFT into the canonical record shape
func MapAlchemyNFT(n alchemy.OwnedNFT) (domain.NormalizedRecord, error) {
	if n.Contract.Address == "" || n.TokenID == "" {
		return domain.NormalizedRecord{}, fmt.Errorf("%w: alchemy nft %q/%q", domain.ErrShapeMismatch, n.Contract.Address, n.TokenID)
	}

	record := domain.NormalizedRecord{
		ContractAddress: domain.NormalizeContractAddress(n.Contract.Address),
		TokenID:         n.TokenID,
		Blockchain:      domain.AddressToBlockchain(n.Contract.Address),
		Title:           firstNonEmpty(n.Name, n.Contract.Name),
		Description:     firstNonEmpty(n.Description),
		TokenStandard:   firstNonEmpty(lowerPtr(n.TokenType), lowerPtr(n.Contract.TokenType)),
		ImageURL:        firstNonEmpty(n.Image.CachedURL, n.Image.PngURL, n.Image.OriginalURL),
		ThumbnailURL:    firstNonEmpty(n.Image.ThumbnailURL),
		MetadataURL:     firstNonEmpty(n.TokenURI, n.Raw.TokenURI),
		MIMEType:        firstNonEmpty(n.Image.ContentType),
	}

	if anim := rawStringField(n.Raw.Metadata, "animation_url"); anim != "" {
		record.AnimationURL = &anim
	}
	if gen := rawStringField(n.Raw.Metadata, "generator_url"); gen != "" {
		record.GeneratorURL = &gen
	}

	if n.Balance != nil {
		if supply, err := strconv.ParseInt(*n.Balance, 10, 64); err == nil {
			record.Supply = &supply
		}
	}

	if mintDate := alchemyMintDate(n); mintDate != nil {
		record.MintDate = mintDate
	}

	record.Attributes = rawAttributes(n.Raw.Metadata)

	record.Creator = metadata.ResolveCreator(metadata.CreatorCandidates{
		MintCounterparty: mintAddress(n.Mint),
		ContractDeployer: domain.SafeString(n.Contract.ContractDeployer),
		MetadataCreator:  rawCreatorField(n.Raw.Metadata),
	})

	record.Dimensions = metadata.ResolveDimensions(metadata.DimensionInput{
		Attributes: record.Attributes,
		FreeText: []string{
			rawStringField(n.Raw.Metadata, "dimensions"),
			rawStringField(n.Raw.Metadata, "medium"),
			domain.SafeString(n.Description),
		},
	})

	if os := n.Contract.OpenSeaMetadata; os != nil && os.CollectionSlug != nil && *os.CollectionSlug != "" {
		record.Collection = &domain.CollectionInfo{
			Slug:            *os.CollectionSlug,
			Title:           firstNonEmpty(os.CollectionName),
			ContractAddress: record.ContractAddress,
			Description:     firstNonEmpty(os.Description),
			ImageURL:        firstNonEmpty(os.ImageURL),
			ExternalURL:     firstNonEmpty(os.ExternalURL),
		}
	}

	return record, nil
}

// MapManualSubmission maps a manually-submitted shape into the canonical
// record shape. Blockchain falls back to the contract address shape.
func MapManualSubmission(m ManualSubmission) (domain.NormalizedRecord, error) {
	if m.ContractAddress == "" || m.TokenID == "" {
		return domain.NormalizedRecord{}, domain.ErrMissingIdentity
	}

	blockchain := domain.Blockchain(m.Blockchain)
	if !domain.IsValidBlockchain(blockchain) {
		blockchain = domain.AddressToBlockchain(m.ContractAddress)
	}

	record := domain.NormalizedRecord{
		ContractAddress: domain.NormalizeContractAddress(m.ContractAddress),
		TokenID:         m.TokenID,
		Blockchain:      blockchain,
		Title:           firstNonEmpty(&m.Title),
		Description:     firstNonEmpty(&m.Description),
		ImageURL:        firstNonEmpty(&m.ImageURL),
		ThumbnailURL:    firstNonEmpty(&m.ThumbnailURL),
		AnimationURL:    firstNonEmpty(&m.AnimationURL),
		MetadataURL:     firstNonEmpty(&m.MetadataURL),
	}

	for trait, value := range m.Attributes {
		record.Attributes = append(record.Attributes, domain.Attribute{TraitType: trait, Value: value})
	}

	var creatorName *string
	if m.CreatorName != "" {
		creatorName = &m.CreatorName
	}
	record.Creator = metadata.ResolveCreator(metadata.CreatorCandidates{
		MetadataCreator: m.CreatorAddress,
		CreatorName:     creatorName,
	})

	record.Dimensions = metadata.ResolveDimensions(metadata.DimensionInput{
		Attributes: record.Attributes,
		FreeText:   []string{m.Description},
	})

	return record, nil
}

func lowerPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToLower(*s)
	return &v
}

func mintAddress(m *alchemy.MintInfo) string {
	if m == nil {
		return ""
	}
	return domain.SafeString(m.MintAddress)
}

func alchemyMintDate(n alchemy.OwnedNFT) *time.Time {
	var candidates []string
	if n.Mint != nil && n.Mint.Timestamp != nil {
		candidates = append(candidates, *n.Mint.Timestamp)
	}
	if n.AcquiredAt != nil && n.AcquiredAt.BlockTimestamp != nil {
		candidates = append(candidates, *n.AcquiredAt.BlockTimestamp)
	}
	for _, c := range candidates {
		if t, err := time.Parse(time.RFC3339, c); err == nil {
			return &t
		}
	}
	return nil
}

// rawAttributes extracts ordered trait pairs from OpenSea-standard raw metadata
func rawAttributes(raw map[string]interface{}) []domain.Attribute {
	attrs, ok := raw["attributes"].([]interface{})
	if !ok {
		return nil
	}

	var result []domain.Attribute
	for _, item := range attrs {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		traitType, _ := entry["trait_type"].(string)
		value := stringifyTraitValue(entry["value"])
		if traitType == "" || value == "" {
			continue
		}
		result = append(result, domain.Attribute{TraitType: traitType, Value: value})
	}
	return result
}

var rawCreatorKeys = []string{"artist", "creator", "created_by", "artist_name"}

func rawCreatorField(raw map[string]interface{}) string {
	for _, key := range rawCreatorKeys {
		if v, ok := raw[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func rawStringField(raw map[string]interface{}, key string) string {
	v, _ := raw[key].(string)
	return v
}

func stringifyTraitValue(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", value)
	}
}
