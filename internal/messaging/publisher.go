package messaging

import (
	"context"

	"github.com/gallerist/token-ingest/internal/domain"
)

// Publisher defines the interface for publishing catalog events to the
// message broker
//
//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// PublishImported publishes an artwork-imported event
	PublishImported(ctx context.Context, event *domain.ArtworkImportedEvent) error
	// Close closes the connection
	Close()
}
