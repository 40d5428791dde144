package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Blockchain represents the blockchain a token lives on
type Blockchain string

const (
	BlockchainEthereum Blockchain = "ethereum"
	BlockchainTezos    Blockchain = "tezos"
	BlockchainPolygon  Blockchain = "polygon"
	BlockchainBase     Blockchain = "base"
	BlockchainShape    Blockchain = "shape"
)

// IsValidBlockchain checks if a blockchain value is one we index
func IsValidBlockchain(b Blockchain) bool {
	switch b {
	case BlockchainEthereum, BlockchainTezos, BlockchainPolygon, BlockchainBase, BlockchainShape:
		return true
	}
	return false
}

// CreatorSource tags where a creator attribution came from
type CreatorSource string

const (
	CreatorSourceMintTransaction  CreatorSource = "mint_transaction"
	CreatorSourceContractDeployer CreatorSource = "contract_deployer"
	CreatorSourceMetadata         CreatorSource = "metadata"
)

// Attribute is one trait key/value pair; order within a record is preserved
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Dimensions holds pixel dimensions of the primary media asset
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CreatorInfo is a best-effort creator attribution
type CreatorInfo struct {
	Address          string        `json:"address"`
	Name             *string       `json:"name,omitempty"`
	ProfileImageURL  *string       `json:"profile_image_url,omitempty"`
	Bio              *string       `json:"bio,omitempty"`
	ResolutionSource CreatorSource `json:"resolution_source"`
}

// CollectionInfo is best-effort collection metadata
type CollectionInfo struct {
	Slug            string  `json:"slug"`
	Title           *string `json:"title,omitempty"`
	ContractAddress string  `json:"contract_address"`
	Description     *string `json:"description,omitempty"`
	ImageURL        *string `json:"image_url,omitempty"`
	ExternalURL     *string `json:"external_url,omitempty"`
}

// NormalizedRecord is the canonical, provider-agnostic representation of one
// ingested token. Optional fields are pointers so that "unknown" stays
// distinguishable from "known empty" across merges.
type NormalizedRecord struct {
	// Identity
	ContractAddress string     `json:"contract_address"`
	TokenID         string     `json:"token_id"`
	Blockchain      Blockchain `json:"blockchain"`

	// Descriptive
	Title         *string `json:"title,omitempty"`
	Description   *string `json:"description,omitempty"`
	TokenStandard *string `json:"token_standard,omitempty"`

	// Media
	ImageURL     *string `json:"image_url,omitempty"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	AnimationURL *string `json:"animation_url,omitempty"`
	GeneratorURL *string `json:"generator_url,omitempty"`
	MetadataURL  *string `json:"metadata_url,omitempty"`
	MIMEType     *string `json:"mime,omitempty"`

	// Provenance / value
	Supply     *int64      `json:"supply,omitempty"`
	MintDate   *time.Time  `json:"mint_date,omitempty"`
	Dimensions *Dimensions `json:"dimensions,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`

	// Relations
	Creator    *CreatorInfo    `json:"creator,omitempty"`
	Collection *CollectionInfo `json:"collection,omitempty"`
}

// IdentityKey returns the case-normalized dedup key for this record
func (r *NormalizedRecord) IdentityKey() string {
	return fmt.Sprintf("%s:%s", strings.ToLower(r.ContractAddress), r.TokenID)
}

// HasIdentity reports whether the record carries the required identity fields
func (r *NormalizedRecord) HasIdentity() bool {
	return r.ContractAddress != "" && r.TokenID != ""
}

// Merge fills fields on r that are absent using values from other.
// A known value is never overwritten; later fetches may only add.
func (r *NormalizedRecord) Merge(other *NormalizedRecord) {
	if other == nil {
		return
	}
	mergeStr(&r.Title, other.Title)
	mergeStr(&r.Description, other.Description)
	mergeStr(&r.TokenStandard, other.TokenStandard)
	mergeStr(&r.ImageURL, other.ImageURL)
	mergeStr(&r.ThumbnailURL, other.ThumbnailURL)
	mergeStr(&r.AnimationURL, other.AnimationURL)
	mergeStr(&r.GeneratorURL, other.GeneratorURL)
	mergeStr(&r.MetadataURL, other.MetadataURL)
	mergeStr(&r.MIMEType, other.MIMEType)
	if r.Supply == nil && other.Supply != nil {
		v := *other.Supply
		r.Supply = &v
	}
	if r.MintDate == nil && other.MintDate != nil {
		v := *other.MintDate
		r.MintDate = &v
	}
	if r.Dimensions == nil && other.Dimensions != nil {
		v := *other.Dimensions
		r.Dimensions = &v
	}
	if len(r.Attributes) == 0 && len(other.Attributes) > 0 {
		r.Attributes = append([]Attribute(nil), other.Attributes...)
	}
	if r.Creator == nil && other.Creator != nil {
		v := *other.Creator
		r.Creator = &v
	}
	if r.Collection == nil && other.Collection != nil {
		v := *other.Collection
		r.Collection = &v
	}
	if r.Blockchain == "" {
		r.Blockchain = other.Blockchain
	}
}

func mergeStr(dst **string, src *string) {
	if *dst == nil && src != nil && *src != "" {
		v := *src
		*dst = &v
	}
}

// AddressToBlockchain derives the blockchain family from an address shape.
// Hex-prefixed addresses are treated as ethereum-family, everything else as
// Tezos-family.
func AddressToBlockchain(address string) Blockchain {
	if strings.HasPrefix(address, "0x") {
		return BlockchainEthereum
	}
	return BlockchainTezos
}

// NormalizeContractAddress lowercases EVM contract addresses so the identity
// triple compares stably; Tezos addresses are case-sensitive and kept verbatim.
func NormalizeContractAddress(address string) string {
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		return strings.ToLower(address)
	}
	return address
}

// EthereumZeroAddress is the EVM mint/burn counterparty address
const EthereumZeroAddress = "0x0000000000000000000000000000000000000000"

// IsEthereumAddress checks if a string is a valid Ethereum address
func IsEthereumAddress(s string) bool {
	return common.IsHexAddress(s)
}

// IsTezosAddress checks if a string is a valid Tezos address
func IsTezosAddress(s string) bool {
	return strings.HasPrefix(s, "tz1") || strings.HasPrefix(s, "tz2") ||
		strings.HasPrefix(s, "tz3") || strings.HasPrefix(s, "tz4") ||
		strings.HasPrefix(s, "KT1")
}

// IsZeroAddress reports whether an address is empty or the EVM zero address
func IsZeroAddress(s string) bool {
	return s == "" || strings.EqualFold(s, EthereumZeroAddress)
}

// StringPtr converts a string to a pointer to a string
func StringPtr(s string) *string {
	return &s
}

// StringNilOrEmpty checks if a pointer to a string is nil or empty
func StringNilOrEmpty(s *string) bool {
	return s == nil || *s == ""
}

// SafeString returns a safe string from a pointer to a string
func SafeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
