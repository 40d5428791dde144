package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		name     string
		record   NormalizedRecord
		expected string
	}{
		{
			name: "lowercase address",
			record: NormalizedRecord{
				ContractAddress: "0xabc123",
				TokenID:         "42",
			},
			expected: "0xabc123:42",
		},
		{
			name: "mixed case address is normalized",
			record: NormalizedRecord{
				ContractAddress: "0xABC123",
				TokenID:         "42",
			},
			expected: "0xabc123:42",
		},
		{
			name: "token id case preserved",
			record: NormalizedRecord{
				ContractAddress: "KT1BvXTW1XqhE1GHTRKRvz8w3a7X5f5NqEZr",
				TokenID:         "7",
			},
			expected: "kt1bvxtw1xqhe1ghtrkrvz8w3a7x5f5nqezr:7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.record.IdentityKey())
		})
	}
}

func TestHasIdentity(t *testing.T) {
	assert.True(t, (&NormalizedRecord{ContractAddress: "0xabc", TokenID: "1"}).HasIdentity())
	assert.False(t, (&NormalizedRecord{ContractAddress: "0xabc"}).HasIdentity())
	assert.False(t, (&NormalizedRecord{TokenID: "1"}).HasIdentity())
	assert.False(t, (&NormalizedRecord{}).HasIdentity())
}

func TestMerge_FillsGapsOnly(t *testing.T) {
	mintDate := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	dst := NormalizedRecord{
		ContractAddress: "0xabc",
		TokenID:         "1",
		Title:           StringPtr("Original Title"),
	}
	src := NormalizedRecord{
		ContractAddress: "0xabc",
		TokenID:         "1",
		Title:           StringPtr("Competing Title"),
		Description:     StringPtr("A description"),
		MintDate:        &mintDate,
		Dimensions:      &Dimensions{Width: 100, Height: 200},
		Creator:         &CreatorInfo{Address: "0xcreator", ResolutionSource: CreatorSourceMetadata},
		Attributes:      []Attribute{{TraitType: "Style", Value: "Abstract"}},
	}

	dst.Merge(&src)

	// Known values are never overwritten
	assert.Equal(t, "Original Title", *dst.Title)

	// Gaps are filled
	assert.Equal(t, "A description", *dst.Description)
	assert.Equal(t, mintDate, *dst.MintDate)
	assert.Equal(t, 100, dst.Dimensions.Width)
	assert.Equal(t, "0xcreator", dst.Creator.Address)
	assert.Len(t, dst.Attributes, 1)
}

func TestMerge_CopiesNotAliases(t *testing.T) {
	src := NormalizedRecord{
		Creator:    &CreatorInfo{Address: "0xcreator"},
		Dimensions: &Dimensions{Width: 10, Height: 10},
	}
	var dst NormalizedRecord
	dst.Merge(&src)

	src.Creator.Address = "0xmutated"
	src.Dimensions.Width = 999

	assert.Equal(t, "0xcreator", dst.Creator.Address)
	assert.Equal(t, 10, dst.Dimensions.Width)
}

func TestMerge_EmptyStringDoesNotFill(t *testing.T) {
	var dst NormalizedRecord
	dst.Merge(&NormalizedRecord{Title: StringPtr("")})
	assert.Nil(t, dst.Title)
}

func TestMerge_Nil(t *testing.T) {
	dst := NormalizedRecord{ContractAddress: "0xabc", TokenID: "1"}
	dst.Merge(nil)
	assert.Equal(t, "0xabc", dst.ContractAddress)
}

func TestAddressToBlockchain(t *testing.T) {
	assert.Equal(t, BlockchainEthereum, AddressToBlockchain("0x396343362be2A4dA1cE0C1C210945346fb82Aa49"))
	assert.Equal(t, BlockchainTezos, AddressToBlockchain("tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb"))
	assert.Equal(t, BlockchainTezos, AddressToBlockchain("KT1BvXTW1XqhE1GHTRKRvz8w3a7X5f5NqEZr"))
}

func TestNormalizeContractAddress(t *testing.T) {
	assert.Equal(t, "0xabc123def", NormalizeContractAddress("0xABC123def"))
	assert.Equal(t, "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984", NormalizeContractAddress("0X1F9840a85d5aF5bf1D1762F925BDADdC4201F984"))
	assert.Equal(t, "KT1BvXTW1XqhE1GHTRKRvz8w3a7X5f5NqEZr", NormalizeContractAddress("KT1BvXTW1XqhE1GHTRKRvz8w3a7X5f5NqEZr"))
}

func TestIsZeroAddress(t *testing.T) {
	assert.True(t, IsZeroAddress(""))
	assert.True(t, IsZeroAddress(EthereumZeroAddress))
	assert.True(t, IsZeroAddress("0x0000000000000000000000000000000000000000"))
	assert.False(t, IsZeroAddress("0x396343362be2A4dA1cE0C1C210945346fb82Aa49"))
}

func TestIsTezosAddress(t *testing.T) {
	assert.True(t, IsTezosAddress("tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb"))
	assert.True(t, IsTezosAddress("KT1BvXTW1XqhE1GHTRKRvz8w3a7X5f5NqEZr"))
	assert.False(t, IsTezosAddress("0x396343362be2A4dA1cE0C1C210945346fb82Aa49"))
}
