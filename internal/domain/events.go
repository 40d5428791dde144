package domain

import "time"

// ArtworkImportedEvent is emitted after a queue entry is materialized into
// the catalog, for downstream consumers (search indexing, media pipeline).
type ArtworkImportedEvent struct {
	ArtworkID       int64      `json:"artwork_id"`
	Blockchain      Blockchain `json:"blockchain"`
	ContractAddress string     `json:"contract_address"`
	TokenID         string     `json:"token_id"`
	Source          string     `json:"source"`
	ImportedAt      time.Time  `json:"imported_at"`
}
