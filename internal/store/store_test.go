package store_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gallerist/token-ingest/internal/domain"
	"github.com/gallerist/token-ingest/internal/logger"
	"github.com/gallerist/token-ingest/internal/store"
	"github.com/gallerist/token-ingest/internal/store/schema"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))

	return store.NewStore(db)
}

func testRecord() domain.NormalizedRecord {
	return domain.NormalizedRecord{
		ContractAddress: "0xabcdef0123456789abcdef0123456789abcdef01",
		TokenID:         "42",
		Blockchain:      domain.BlockchainEthereum,
		Title:           domain.StringPtr("Cool Cat #42"),
	}
}

func TestUpsertQueueEntry_InsertsPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertQueueEntry(ctx, testRecord(), "opensea")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entry, err := s.GetQueueEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, schema.ImportStatusPending, entry.ImportStatus)
	assert.Equal(t, "opensea", entry.Source)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", entry.ContractAddress)
	assert.Equal(t, "42", entry.TokenID)
}

func TestUpsertQueueEntry_SecondEnqueueMergesNotDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testRecord()
	id1, err := s.UpsertQueueEntry(ctx, first, "opensea")
	require.NoError(t, err)

	second := testRecord()
	second.Title = domain.StringPtr("Competing Title")
	second.Description = domain.StringPtr("Filled in by the second provider")
	id2, err := s.UpsertQueueEntry(ctx, second, "alchemy")
	require.NoError(t, err)

	// Same entry, not a duplicate
	assert.Equal(t, id1, id2)

	entry, err := s.GetQueueEntry(ctx, id1)
	require.NoError(t, err)

	var merged domain.NormalizedRecord
	require.NoError(t, json.Unmarshal(entry.NormalizedData, &merged))

	// Known fields stay, gaps are filled, source keeps the first contributor
	assert.Equal(t, "Cool Cat #42", *merged.Title)
	assert.Equal(t, "Filled in by the second provider", *merged.Description)
	assert.Equal(t, "opensea", entry.Source)

	entries, err := s.ListQueueEntries(ctx, schema.ImportStatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUpsertQueueEntry_MergeLeavesStatusUntouched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertQueueEntry(ctx, testRecord(), "opensea")
	require.NoError(t, err)
	require.NoError(t, s.MarkQueueEntryImported(ctx, id, 7))

	_, err = s.UpsertQueueEntry(ctx, testRecord(), "alchemy")
	require.NoError(t, err)

	entry, err := s.GetQueueEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, schema.ImportStatusImported, entry.ImportStatus)
	require.NotNil(t, entry.CatalogArtworkID)
	assert.Equal(t, int64(7), *entry.CatalogArtworkID)
}

func TestUpsertQueueEntry_MissingIdentity(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpsertQueueEntry(context.Background(), domain.NormalizedRecord{TokenID: "1"}, "opensea")
	assert.ErrorIs(t, err, domain.ErrMissingIdentity)
}

func TestMarkQueueEntryFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertQueueEntry(ctx, testRecord(), "opensea")
	require.NoError(t, err)
	require.NoError(t, s.MarkQueueEntryFailed(ctx, id, "mapping blew up"))

	entry, err := s.GetQueueEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, schema.ImportStatusFailed, entry.ImportStatus)
	require.NotNil(t, entry.FailureReason)
	assert.Equal(t, "mapping blew up", *entry.FailureReason)
}

func TestMarkQueueEntry_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.MarkQueueEntryImported(context.Background(), "no-such-id", 1)
	assert.ErrorIs(t, err, store.ErrEntryNotFound)

	_, err = s.GetQueueEntry(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, store.ErrEntryNotFound)
}

func TestRequeueFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record1 := testRecord()
	record2 := testRecord()
	record2.TokenID = "43"

	id1, err := s.UpsertQueueEntry(ctx, record1, "opensea")
	require.NoError(t, err)
	id2, err := s.UpsertQueueEntry(ctx, record2, "opensea")
	require.NoError(t, err)

	require.NoError(t, s.MarkQueueEntryFailed(ctx, id1, "boom"))
	require.NoError(t, s.MarkQueueEntryFailed(ctx, id2, "boom"))

	n, err := s.RequeueFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	entry, err := s.GetQueueEntry(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, schema.ImportStatusPending, entry.ImportStatus)
	assert.Nil(t, entry.FailureReason)

	// Nothing left to requeue
	n, err = s.RequeueFailed(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsertArtist_GapFill(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertArtist(ctx, domain.CreatorInfo{
		Address:          "0x396343362be2a4da1ce0c1c210945346fb82aa49",
		ResolutionSource: domain.CreatorSourceContractDeployer,
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	assert.Nil(t, first.Name)

	second, err := s.UpsertArtist(ctx, domain.CreatorInfo{
		Address:          "0x396343362be2a4da1ce0c1c210945346fb82aa49",
		Name:             domain.StringPtr("Ada"),
		ResolutionSource: domain.CreatorSourceMetadata,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.Name)
	assert.Equal(t, "Ada", *second.Name)
}

func TestUpsertCollection_GapFill(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertCollection(ctx, domain.CollectionInfo{
		Slug:            "cool-cats",
		ContractAddress: "0xabcdef0123456789abcdef0123456789abcdef01",
		Title:           domain.StringPtr("Cool Cats"),
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	second, err := s.UpsertCollection(ctx, domain.CollectionInfo{
		Slug:            "cool-cats",
		ContractAddress: "0xabcdef0123456789abcdef0123456789abcdef01",
		Title:           domain.StringPtr("Renamed"),
		Description:     domain.StringPtr("feline art"),
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Cool Cats", *second.Title)
	assert.Equal(t, "feline art", *second.Description)
}

func TestUpsertArtwork_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := testRecord()
	record.Dimensions = &domain.Dimensions{Width: 800, Height: 600}

	first, err := s.UpsertArtwork(ctx, store.UpsertArtworkInput{Record: record})
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	// Re-importing fills gaps without duplicating the catalog entity
	record.Description = domain.StringPtr("added later")
	second, err := s.UpsertArtwork(ctx, store.UpsertArtworkInput{Record: record})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.Description)
	assert.Equal(t, "added later", *second.Description)
	require.NotNil(t, second.Width)
	assert.Equal(t, 800, *second.Width)
}

func TestUpsertArtwork_LinksArtistAndCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	artist, err := s.UpsertArtist(ctx, domain.CreatorInfo{Address: "0x396343362be2a4da1ce0c1c210945346fb82aa49"})
	require.NoError(t, err)
	collection, err := s.UpsertCollection(ctx, domain.CollectionInfo{
		Slug:            "cool-cats",
		ContractAddress: "0xabcdef0123456789abcdef0123456789abcdef01",
	})
	require.NoError(t, err)

	artwork, err := s.UpsertArtwork(ctx, store.UpsertArtworkInput{
		Record:       testRecord(),
		ArtistID:     &artist.ID,
		CollectionID: &collection.ID,
	})
	require.NoError(t, err)

	require.NotNil(t, artwork.ArtistID)
	assert.Equal(t, artist.ID, *artwork.ArtistID)
	require.NotNil(t, artwork.CollectionID)
	assert.Equal(t, collection.ID, *artwork.CollectionID)
}

func TestListQueueEntries_FiltersByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record1 := testRecord()
	record2 := testRecord()
	record2.TokenID = "43"

	id1, err := s.UpsertQueueEntry(ctx, record1, "opensea")
	require.NoError(t, err)
	_, err = s.UpsertQueueEntry(ctx, record2, "opensea")
	require.NoError(t, err)

	require.NoError(t, s.MarkQueueEntryImported(ctx, id1, 1))

	pending, err := s.ListQueueEntries(ctx, schema.ImportStatusPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "43", pending[0].TokenID)

	imported, err := s.ListQueueEntries(ctx, schema.ImportStatusImported, 10)
	require.NoError(t, err)
	assert.Len(t, imported, 1)
}
