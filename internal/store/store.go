package store

import (
	"context"

	"github.com/gallerist/token-ingest/internal/domain"
	"github.com/gallerist/token-ingest/internal/store/schema"
)

// UpsertArtworkInput carries the fields the queue processor materializes into
// one artwork row
type UpsertArtworkInput struct {
	Record       domain.NormalizedRecord
	ArtistID     *int64
	CollectionID *int64
}

// Store defines the interface for database operations
//
//go:generate mockgen -source=store.go -destination=../mocks/store.go -package=mocks -mock_names=Store=MockStore
type Store interface {
	// UpsertQueueEntry inserts a pending entry for a new identity triple, or
	// gap-fill-merges the payload into the existing entry leaving its import
	// status untouched. Returns the entry ID either way.
	UpsertQueueEntry(ctx context.Context, record domain.NormalizedRecord, source string) (string, error)

	// GetQueueEntry retrieves one entry by ID
	GetQueueEntry(ctx context.Context, id string) (*schema.IndexQueueEntry, error)

	// ListQueueEntries pulls up to limit entries in the given status, oldest first
	ListQueueEntries(ctx context.Context, status schema.ImportStatus, limit int) ([]schema.IndexQueueEntry, error)

	// MarkQueueEntryImported transitions an entry to imported with its artwork back-reference
	MarkQueueEntryImported(ctx context.Context, id string, artworkID int64) error

	// MarkQueueEntryFailed transitions an entry to failed, retaining the reason
	MarkQueueEntryFailed(ctx context.Context, id string, reason string) error

	// RequeueFailed moves failed entries back to pending (operator action)
	RequeueFailed(ctx context.Context, limit int) (int64, error)

	// UpsertArtist upserts an artist by wallet address, filling gaps only
	UpsertArtist(ctx context.Context, creator domain.CreatorInfo) (*schema.Artist, error)

	// UpsertCollection upserts a collection by contract address, filling gaps only
	UpsertCollection(ctx context.Context, collection domain.CollectionInfo) (*schema.Collection, error)

	// UpsertArtwork upserts an artwork by its identity triple, filling gaps only
	UpsertArtwork(ctx context.Context, input UpsertArtworkInput) (*schema.Artwork, error)
}
