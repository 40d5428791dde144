package metadata

import (
	"github.com/gallerist/token-ingest/internal/domain"
)

// CreatorCandidates carries every creator signal a provider record may hold,
// in no particular order; the chain below decides which one wins
type CreatorCandidates struct {
	// MintCounterparty is the recipient of the on-chain mint transaction
	MintCounterparty string
	// ContractDeployer is the address that deployed the token contract
	ContractDeployer string
	// MetadataCreator is an explicit creator field from raw metadata
	MetadataCreator string
	// CreatorName is an optional display name attached to MetadataCreator
	CreatorName *string
}

// creatorResolver is one step in the attribution chain
type creatorResolver func(c CreatorCandidates) *domain.CreatorInfo

var creatorChain = []creatorResolver{
	fromMintTransaction,
	fromContractDeployer,
	fromMetadataCreator,
}

// ResolveCreator returns the highest-priority non-zero creator candidate,
// tagged with the source that produced it, or nil when no candidate exists.
// Priority: mint-transaction counterparty, then contract deployer, then the
// explicit metadata creator field.
func ResolveCreator(c CreatorCandidates) *domain.CreatorInfo {
	for _, resolve := range creatorChain {
		if creator := resolve(c); creator != nil {
			return creator
		}
	}
	return nil
}

func fromMintTransaction(c CreatorCandidates) *domain.CreatorInfo {
	if domain.IsZeroAddress(c.MintCounterparty) {
		return nil
	}
	return &domain.CreatorInfo{
		Address:          c.MintCounterparty,
		ResolutionSource: domain.CreatorSourceMintTransaction,
	}
}

func fromContractDeployer(c CreatorCandidates) *domain.CreatorInfo {
	if domain.IsZeroAddress(c.ContractDeployer) {
		return nil
	}
	return &domain.CreatorInfo{
		Address:          c.ContractDeployer,
		ResolutionSource: domain.CreatorSourceContractDeployer,
	}
}

func fromMetadataCreator(c CreatorCandidates) *domain.CreatorInfo {
	if domain.IsZeroAddress(c.MetadataCreator) {
		return nil
	}
	return &domain.CreatorInfo{
		Address:          c.MetadataCreator,
		Name:             c.CreatorName,
		ResolutionSource: domain.CreatorSourceMetadata,
	}
}
