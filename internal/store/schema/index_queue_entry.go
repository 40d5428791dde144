package schema

import (
	"time"

	"gorm.io/datatypes"
)

// ImportStatus represents the catalog import state of a queue entry
type ImportStatus string

const (
	// ImportStatusPending marks an entry awaiting catalog materialization
	ImportStatusPending ImportStatus = "pending"
	// ImportStatusImported marks an entry materialized into the catalog
	ImportStatusImported ImportStatus = "imported"
	// ImportStatusFailed marks an entry that failed mapping unrecoverably
	ImportStatusFailed ImportStatus = "failed"
)

// IndexQueueEntry represents the index_queue_entries table - the durable,
// status-tracked wrapper around one normalized record awaiting catalog import.
// The identity triple (blockchain, contract_address, token_id) is unique;
// the ingestion pipeline upserts and never creates duplicates.
type IndexQueueEntry struct {
	// ID is the surrogate key (UUID)
	ID string `gorm:"column:id;primaryKey;type:text"`
	// NormalizedData is the canonical record payload
	NormalizedData datatypes.JSON `gorm:"column:normalized_data;not null"`
	// Source is the provider tag that first contributed this record
	Source string `gorm:"column:source;not null;type:text"`
	// Blockchain is part of the identity triple
	Blockchain string `gorm:"column:blockchain;not null;type:text;uniqueIndex:idx_queue_identity,priority:1"`
	// ContractAddress is part of the identity triple (lowercase-normalized for EVM)
	ContractAddress string `gorm:"column:contract_address;not null;type:text;uniqueIndex:idx_queue_identity,priority:2"`
	// TokenID is part of the identity triple
	TokenID string `gorm:"column:token_id;not null;type:text;uniqueIndex:idx_queue_identity,priority:3"`
	// ImportStatus is mutated only by the queue processor (and operator re-queues)
	ImportStatus ImportStatus `gorm:"column:import_status;not null;default:pending;index"`
	// FailureReason is retained for operator inspection on mapping failure
	FailureReason *string `gorm:"column:failure_reason;type:text"`
	// CatalogArtworkID is a weak back-reference to the materialized artwork
	CatalogArtworkID *int64 `gorm:"column:catalog_artwork_id"`
	// CreatedAt is the timestamp when the entry was first enqueued
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	// UpdatedAt is the timestamp of the last payload merge or status change
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName specifies the table name for the IndexQueueEntry model
func (IndexQueueEntry) TableName() string {
	return "index_queue_entries"
}
