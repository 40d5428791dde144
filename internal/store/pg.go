package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gallerist/token-ingest/internal/domain"
	"github.com/gallerist/token-ingest/internal/store/schema"
)

// ErrEntryNotFound is returned when a queue entry ID does not exist
var ErrEntryNotFound = errors.New("queue entry not found")

type sqlStore struct {
	db *gorm.DB
}

// NewStore creates a store instance backed by any GORM-supported database.
// Production runs Postgres; tests run the pure-Go sqlite driver.
func NewStore(db *gorm.DB) Store {
	return &sqlStore{db: db}
}

// Migrate creates or updates the ingestion tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.IndexQueueEntry{},
		&schema.Artist{},
		&schema.Collection{},
		&schema.Artwork{},
	)
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 20
	}
	if maxIdleConns <= 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime <= 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime <= 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// UpsertQueueEntry inserts a pending entry for a new identity triple, or
// gap-fill-merges the payload into the existing entry. The import status is
// never touched here; only the queue processor transitions it.
func (s *sqlStore) UpsertQueueEntry(ctx context.Context, record domain.NormalizedRecord, source string) (string, error) {
	if !record.HasIdentity() {
		return "", domain.ErrMissingIdentity
	}

	var entryID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing schema.IndexQueueEntry
		err := tx.Where("blockchain = ? AND contract_address = ? AND token_id = ?",
			string(record.Blockchain), record.ContractAddress, record.TokenID).
			First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			payload, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to marshal normalized record: %w", err)
			}

			now := time.Now().UTC()
			entry := schema.IndexQueueEntry{
				ID:              uuid.NewString(),
				NormalizedData:  payload,
				Source:          source,
				Blockchain:      string(record.Blockchain),
				ContractAddress: record.ContractAddress,
				TokenID:         record.TokenID,
				ImportStatus:    schema.ImportStatusPending,
				CreatedAt:       now,
				UpdatedAt:       now,
			}

			// A concurrent session may win the race on the identity triple
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "blockchain"}, {Name: "contract_address"}, {Name: "token_id"}},
				DoNothing: true,
			}).Create(&entry)
			if result.Error != nil {
				return fmt.Errorf("failed to create queue entry: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				var winner schema.IndexQueueEntry
				if err := tx.Where("blockchain = ? AND contract_address = ? AND token_id = ?",
					string(record.Blockchain), record.ContractAddress, record.TokenID).
					First(&winner).Error; err != nil {
					return fmt.Errorf("failed to look up queue entry: %w", err)
				}
				entryID = winner.ID
				return nil
			}

			entryID = entry.ID
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up queue entry: %w", err)
		}

		// Existing entry: later fetches may only add fields, never drop
		// previously known ones
		var stored domain.NormalizedRecord
		if err := json.Unmarshal(existing.NormalizedData, &stored); err != nil {
			return fmt.Errorf("failed to unmarshal stored record: %w", err)
		}
		stored.Merge(&record)

		payload, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to marshal merged record: %w", err)
		}

		if err := tx.Model(&schema.IndexQueueEntry{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"normalized_data": payload,
				"updated_at":      time.Now().UTC(),
			}).Error; err != nil {
			return fmt.Errorf("failed to merge queue entry: %w", err)
		}

		entryID = existing.ID
		return nil
	})
	if err != nil {
		return "", err
	}

	return entryID, nil
}

// GetQueueEntry retrieves one entry by ID
func (s *sqlStore) GetQueueEntry(ctx context.Context, id string) (*schema.IndexQueueEntry, error) {
	var entry schema.IndexQueueEntry
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return &entry, nil
}

// ListQueueEntries pulls up to limit entries in the given status, oldest first
func (s *sqlStore) ListQueueEntries(ctx context.Context, status schema.ImportStatus, limit int) ([]schema.IndexQueueEntry, error) {
	var entries []schema.IndexQueueEntry
	err := s.db.WithContext(ctx).
		Where("import_status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}
	return entries, nil
}

// MarkQueueEntryImported transitions an entry to imported with its artwork
// back-reference
func (s *sqlStore) MarkQueueEntryImported(ctx context.Context, id string, artworkID int64) error {
	return s.updateEntryStatus(ctx, id, map[string]interface{}{
		"import_status":      schema.ImportStatusImported,
		"catalog_artwork_id": artworkID,
		"failure_reason":     nil,
		"updated_at":         time.Now().UTC(),
	})
}

// MarkQueueEntryFailed transitions an entry to failed, retaining the reason
func (s *sqlStore) MarkQueueEntryFailed(ctx context.Context, id string, reason string) error {
	return s.updateEntryStatus(ctx, id, map[string]interface{}{
		"import_status":  schema.ImportStatusFailed,
		"failure_reason": reason,
		"updated_at":     time.Now().UTC(),
	})
}

func (s *sqlStore) updateEntryStatus(ctx context.Context, id string, updates map[string]interface{}) error {
	result := s.db.WithContext(ctx).
		Model(&schema.IndexQueueEntry{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update queue entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// RequeueFailed moves failed entries back to pending (operator action)
func (s *sqlStore) RequeueFailed(ctx context.Context, limit int) (int64, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&schema.IndexQueueEntry{}).
		Where("import_status = ?", schema.ImportStatusFailed).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to select failed entries: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).
		Model(&schema.IndexQueueEntry{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"import_status":  schema.ImportStatusPending,
			"failure_reason": nil,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to requeue entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// UpsertArtist upserts an artist by wallet address, filling gaps only
func (s *sqlStore) UpsertArtist(ctx context.Context, creator domain.CreatorInfo) (*schema.Artist, error) {
	var artist schema.Artist
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		artist = schema.Artist{
			Address:          creator.Address,
			ResolutionSource: string(creator.ResolutionSource),
			Name:             creator.Name,
			Bio:              creator.Bio,
			ProfileImageURL:  creator.ProfileImageURL,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).Create(&artist).Error; err != nil {
			return fmt.Errorf("failed to create artist: %w", err)
		}

		if artist.ID != 0 {
			return nil
		}

		// Existing artist: fill gaps only
		if err := tx.Where("address = ?", creator.Address).First(&artist).Error; err != nil {
			return fmt.Errorf("failed to get existing artist: %w", err)
		}

		updates := map[string]interface{}{}
		if artist.Name == nil && creator.Name != nil {
			updates["name"] = *creator.Name
		}
		if artist.Bio == nil && creator.Bio != nil {
			updates["bio"] = *creator.Bio
		}
		if artist.ProfileImageURL == nil && creator.ProfileImageURL != nil {
			updates["profile_image_url"] = *creator.ProfileImageURL
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at"] = now

		if err := tx.Model(&schema.Artist{}).Where("id = ?", artist.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update artist: %w", err)
		}
		return tx.Where("id = ?", artist.ID).First(&artist).Error
	})
	if err != nil {
		return nil, err
	}
	return &artist, nil
}

// UpsertCollection upserts a collection by contract address, filling gaps only
func (s *sqlStore) UpsertCollection(ctx context.Context, collection domain.CollectionInfo) (*schema.Collection, error) {
	var row schema.Collection
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		row = schema.Collection{
			ContractAddress: collection.ContractAddress,
			Slug:            collection.Slug,
			Title:           collection.Title,
			Description:     collection.Description,
			ImageURL:        collection.ImageURL,
			ExternalURL:     collection.ExternalURL,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contract_address"}},
			DoNothing: true,
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		if row.ID != 0 {
			return nil
		}

		if err := tx.Where("contract_address = ?", collection.ContractAddress).First(&row).Error; err != nil {
			return fmt.Errorf("failed to get existing collection: %w", err)
		}

		updates := map[string]interface{}{}
		if row.Title == nil && collection.Title != nil {
			updates["title"] = *collection.Title
		}
		if row.Description == nil && collection.Description != nil {
			updates["description"] = *collection.Description
		}
		if row.ImageURL == nil && collection.ImageURL != nil {
			updates["image_url"] = *collection.ImageURL
		}
		if row.ExternalURL == nil && collection.ExternalURL != nil {
			updates["external_url"] = *collection.ExternalURL
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at"] = now

		if err := tx.Model(&schema.Collection{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update collection: %w", err)
		}
		return tx.Where("id = ?", row.ID).First(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpsertArtwork upserts an artwork by its identity triple, filling gaps only.
// Re-running the upsert for an already-imported record is a no-conflict
// update, never a duplicate catalog entity.
func (s *sqlStore) UpsertArtwork(ctx context.Context, input UpsertArtworkInput) (*schema.Artwork, error) {
	record := input.Record
	if !record.HasIdentity() {
		return nil, domain.ErrMissingIdentity
	}

	var artwork schema.Artwork
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		artwork = schema.Artwork{
			Blockchain:      string(record.Blockchain),
			ContractAddress: record.ContractAddress,
			TokenID:         record.TokenID,
			Title:           record.Title,
			Description:     record.Description,
			TokenStandard:   record.TokenStandard,
			ImageURL:        record.ImageURL,
			ThumbnailURL:    record.ThumbnailURL,
			AnimationURL:    record.AnimationURL,
			GeneratorURL:    record.GeneratorURL,
			MIMEType:        record.MIMEType,
			Supply:          record.Supply,
			MintDate:        record.MintDate,
			ArtistID:        input.ArtistID,
			CollectionID:    input.CollectionID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if record.Dimensions != nil {
			artwork.Width = &record.Dimensions.Width
			artwork.Height = &record.Dimensions.Height
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blockchain"}, {Name: "contract_address"}, {Name: "token_id"}},
			DoNothing: true,
		}).Create(&artwork).Error; err != nil {
			return fmt.Errorf("failed to create artwork: %w", err)
		}

		if artwork.ID != 0 {
			return nil
		}

		var existing schema.Artwork
		if err := tx.Where("blockchain = ? AND contract_address = ? AND token_id = ?",
			string(record.Blockchain), record.ContractAddress, record.TokenID).
			First(&existing).Error; err != nil {
			return fmt.Errorf("failed to get existing artwork: %w", err)
		}

		updates := fillArtworkGaps(&existing, &artwork)
		if len(updates) > 0 {
			updates["updated_at"] = now
			if err := tx.Model(&schema.Artwork{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update artwork: %w", err)
			}
		}

		return tx.Where("id = ?", existing.ID).First(&artwork).Error
	})
	if err != nil {
		return nil, err
	}
	return &artwork, nil
}

// fillArtworkGaps returns updates for fields absent on the existing row but
// present on the incoming one
func fillArtworkGaps(existing, incoming *schema.Artwork) map[string]interface{} {
	updates := map[string]interface{}{}

	fillStr := func(column string, old, new *string) {
		if old == nil && new != nil {
			updates[column] = *new
		}
	}
	fillStr("title", existing.Title, incoming.Title)
	fillStr("description", existing.Description, incoming.Description)
	fillStr("token_standard", existing.TokenStandard, incoming.TokenStandard)
	fillStr("image_url", existing.ImageURL, incoming.ImageURL)
	fillStr("thumbnail_url", existing.ThumbnailURL, incoming.ThumbnailURL)
	fillStr("animation_url", existing.AnimationURL, incoming.AnimationURL)
	fillStr("generator_url", existing.GeneratorURL, incoming.GeneratorURL)
	fillStr("mime_type", existing.MIMEType, incoming.MIMEType)

	if existing.Supply == nil && incoming.Supply != nil {
		updates["supply"] = *incoming.Supply
	}
	if existing.MintDate == nil && incoming.MintDate != nil {
		updates["mint_date"] = *incoming.MintDate
	}
	if existing.Width == nil && incoming.Width != nil {
		updates["width"] = *incoming.Width
	}
	if existing.Height == nil && incoming.Height != nil {
		updates["height"] = *incoming.Height
	}
	if existing.ArtistID == nil && incoming.ArtistID != nil {
		updates["artist_id"] = *incoming.ArtistID
	}
	if existing.CollectionID == nil && incoming.CollectionID != nil {
		updates["collection_id"] = *incoming.CollectionID
	}

	return updates
}
