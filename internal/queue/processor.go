package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gallerist/token-ingest/internal/adapter"
	"github.com/gallerist/token-ingest/internal/domain"
	"github.com/gallerist/token-ingest/internal/logger"
	"github.com/gallerist/token-ingest/internal/messaging"
	"github.com/gallerist/token-ingest/internal/metadata"
	"github.com/gallerist/token-ingest/internal/store"
	"github.com/gallerist/token-ingest/internal/store/schema"
)

// EntryResult is the outcome of processing one queue entry
type EntryResult struct {
	EntryID   string
	Status    schema.ImportStatus
	ArtworkID int64
	Err       error
}

// BatchResult aggregates the outcomes of one processing pass
type BatchResult struct {
	Processed int
	Imported  int
	Failed    int
	Entries   []EntryResult
}

// Processor materializes pending queue entries into catalog entities.
// Publisher and detector are optional; when nil, imported events are not
// emitted and missing MIME types stay unknown.
type Processor struct {
	store     store.Store
	publisher messaging.Publisher
	mime      *metadata.MIMEDetector
	json      adapter.JSON
	clock     adapter.Clock
}

// NewProcessor creates a queue processor
func NewProcessor(s store.Store, publisher messaging.Publisher, mime *metadata.MIMEDetector, jsonAdapter adapter.JSON, clock adapter.Clock) *Processor {
	return &Processor{
		store:     s,
		publisher: publisher,
		mime:      mime,
		json:      jsonAdapter,
		clock:     clock,
	}
}

// ProcessOne materializes a single entry. Mapping failures (missing identity,
// corrupt payload) mark the entry failed with a reason; store errors leave
// the entry pending so a later pass retries it.
func (p *Processor) ProcessOne(ctx context.Context, entry *schema.IndexQueueEntry) EntryResult {
	result := EntryResult{EntryID: entry.ID}

	var record domain.NormalizedRecord
	if err := p.json.Unmarshal(entry.NormalizedData, &record); err != nil {
		return p.failEntry(ctx, result, fmt.Sprintf("corrupt payload: %v", err))
	}

	if !record.HasIdentity() {
		return p.failEntry(ctx, result, domain.ErrMissingIdentity.Error())
	}

	var artistID *int64
	if record.Creator != nil && record.Creator.Address != "" && !domain.IsZeroAddress(record.Creator.Address) {
		artist, err := p.store.UpsertArtist(ctx, *record.Creator)
		if err != nil {
			result.Status = schema.ImportStatusPending
			result.Err = fmt.Errorf("failed to upsert artist: %w", err)
			return result
		}
		artistID = &artist.ID
	}

	var collectionID *int64
	if record.Collection != nil && record.Collection.ContractAddress != "" {
		collection, err := p.store.UpsertCollection(ctx, *record.Collection)
		if err != nil {
			result.Status = schema.ImportStatusPending
			result.Err = fmt.Errorf("failed to upsert collection: %w", err)
			return result
		}
		collectionID = &collection.ID
	}

	p.resolveMIMEType(ctx, &record)

	artwork, err := p.store.UpsertArtwork(ctx, store.UpsertArtworkInput{
		Record:       record,
		ArtistID:     artistID,
		CollectionID: collectionID,
	})
	if err != nil {
		result.Status = schema.ImportStatusPending
		result.Err = fmt.Errorf("failed to upsert artwork: %w", err)
		return result
	}

	if err := p.store.MarkQueueEntryImported(ctx, entry.ID, artwork.ID); err != nil {
		// The artwork upsert is idempotent, so the retry on the next pass is safe
		result.Status = schema.ImportStatusPending
		result.Err = fmt.Errorf("failed to mark entry imported: %w", err)
		return result
	}

	p.publishImported(ctx, entry, &record, artwork.ID)

	result.Status = schema.ImportStatusImported
	result.ArtworkID = artwork.ID
	return result
}

// ProcessQueue drains up to batchSize entries in the given status
// sequentially. Pending is the normal feed; failed lets an operator re-drive
// entries after a bad deploy without touching the database directly.
func (p *Processor) ProcessQueue(ctx context.Context, status schema.ImportStatus, batchSize int) (*BatchResult, error) {
	entries, err := p.store.ListQueueEntries(ctx, status, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s entries: %w", status, err)
	}

	batch := &BatchResult{}
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		entryResult := p.ProcessOne(ctx, &entries[i])
		batch.Processed++
		batch.Entries = append(batch.Entries, entryResult)

		switch entryResult.Status {
		case schema.ImportStatusImported:
			batch.Imported++
		case schema.ImportStatusFailed:
			batch.Failed++
			logger.WarnCtx(ctx, "queue entry failed",
				zap.String("entry_id", entryResult.EntryID),
				zap.Error(entryResult.Err))
		default:
			logger.ErrorCtx(ctx, entryResult.Err,
				zap.String("entry_id", entryResult.EntryID),
				zap.String("message", "queue entry left pending for retry"))
		}
	}

	logger.InfoCtx(ctx, "queue processing pass complete",
		zap.Int("processed", batch.Processed),
		zap.Int("imported", batch.Imported),
		zap.Int("failed", batch.Failed))

	return batch, nil
}

// resolveMIMEType sniffs the MIME type of the primary media URL when the
// providers did not supply one. Generator pieces take precedence over video,
// video over stills, matching how the media is actually rendered.
func (p *Processor) resolveMIMEType(ctx context.Context, record *domain.NormalizedRecord) {
	if p.mime == nil || record.MIMEType != nil {
		return
	}

	var mediaURL string
	switch {
	case record.GeneratorURL != nil && *record.GeneratorURL != "":
		mediaURL = *record.GeneratorURL
	case record.AnimationURL != nil && *record.AnimationURL != "":
		mediaURL = *record.AnimationURL
	case record.ImageURL != nil && *record.ImageURL != "":
		mediaURL = *record.ImageURL
	default:
		return
	}

	record.MIMEType = domain.StringPtr(p.mime.Detect(ctx, mediaURL))
}

func (p *Processor) failEntry(ctx context.Context, result EntryResult, reason string) EntryResult {
	if err := p.store.MarkQueueEntryFailed(ctx, result.EntryID, reason); err != nil {
		result.Status = schema.ImportStatusPending
		result.Err = fmt.Errorf("failed to mark entry failed: %w", err)
		return result
	}
	result.Status = schema.ImportStatusFailed
	result.Err = fmt.Errorf("%s", reason)
	return result
}

// publishImported emits the imported event; a broker failure never fails the
// import itself
func (p *Processor) publishImported(ctx context.Context, entry *schema.IndexQueueEntry, record *domain.NormalizedRecord, artworkID int64) {
	if p.publisher == nil {
		return
	}

	event := &domain.ArtworkImportedEvent{
		ArtworkID:       artworkID,
		Blockchain:      record.Blockchain,
		ContractAddress: record.ContractAddress,
		TokenID:         record.TokenID,
		Source:          entry.Source,
		ImportedAt:      p.clock.Now().UTC(),
	}
	if err := p.publisher.PublishImported(ctx, event); err != nil {
		logger.WarnCtx(ctx, "failed to publish imported event",
			zap.String("entry_id", entry.ID),
			zap.Error(err))
	}
}

// interPassDelay between drain passes when running as a loop
const interPassDelay = 5 * time.Second

// Run drains pending entries repeatedly until the context is canceled
func (p *Processor) Run(ctx context.Context, batchSize int) error {
	for {
		if _, err := p.ProcessQueue(ctx, schema.ImportStatusPending, batchSize); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.ErrorCtx(ctx, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(interPassDelay):
		}
	}
}
