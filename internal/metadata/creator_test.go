package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallerist/token-ingest/internal/domain"
	"github.com/gallerist/token-ingest/internal/metadata"
)

func TestResolveCreator_Priority(t *testing.T) {
	tests := []struct {
		name            string
		candidates      metadata.CreatorCandidates
		expectedAddress string
		expectedSource  domain.CreatorSource
	}{
		{
			name: "mint counterparty wins over everything",
			candidates: metadata.CreatorCandidates{
				MintCounterparty: "0x1111111111111111111111111111111111111111",
				ContractDeployer: "0x2222222222222222222222222222222222222222",
				MetadataCreator:  "0x3333333333333333333333333333333333333333",
			},
			expectedAddress: "0x1111111111111111111111111111111111111111",
			expectedSource:  domain.CreatorSourceMintTransaction,
		},
		{
			name: "deployer when mint is zero address",
			candidates: metadata.CreatorCandidates{
				MintCounterparty: domain.EthereumZeroAddress,
				ContractDeployer: "0x2222222222222222222222222222222222222222",
				MetadataCreator:  "0x3333333333333333333333333333333333333333",
			},
			expectedAddress: "0x2222222222222222222222222222222222222222",
			expectedSource:  domain.CreatorSourceContractDeployer,
		},
		{
			name: "metadata creator as last resort",
			candidates: metadata.CreatorCandidates{
				MetadataCreator: "0x3333333333333333333333333333333333333333",
			},
			expectedAddress: "0x3333333333333333333333333333333333333333",
			expectedSource:  domain.CreatorSourceMetadata,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := metadata.ResolveCreator(tt.candidates)
			require.NotNil(t, creator)
			assert.Equal(t, tt.expectedAddress, creator.Address)
			assert.Equal(t, tt.expectedSource, creator.ResolutionSource)
		})
	}
}

func TestResolveCreator_NoCandidates(t *testing.T) {
	assert.Nil(t, metadata.ResolveCreator(metadata.CreatorCandidates{}))
	assert.Nil(t, metadata.ResolveCreator(metadata.CreatorCandidates{
		MintCounterparty: domain.EthereumZeroAddress,
		ContractDeployer: domain.EthereumZeroAddress,
	}))
}

func TestResolveCreator_NameAttachesToMetadataSource(t *testing.T) {
	name := "Ada"
	creator := metadata.ResolveCreator(metadata.CreatorCandidates{
		MetadataCreator: "0x3333333333333333333333333333333333333333",
		CreatorName:     &name,
	})

	require.NotNil(t, creator)
	require.NotNil(t, creator.Name)
	assert.Equal(t, "Ada", *creator.Name)
}
