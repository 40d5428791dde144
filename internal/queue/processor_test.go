package queue_test

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gallerist/token-ingest/internal/adapter"
	"github.com/gallerist/token-ingest/internal/domain"
	"github.com/gallerist/token-ingest/internal/logger"
	"github.com/gallerist/token-ingest/internal/metadata"
	"github.com/gallerist/token-ingest/internal/queue"
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

// fakePublisher records published events
type fakePublisher struct {
	mu     sync.Mutex
	events []*domain.ArtworkImportedEvent
	err    error
}

func (p *fakePublisher) PublishImported(_ context.Context, event *domain.ArtworkImportedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Close() {}

func (p *fakePublisher) published() []*domain.ArtworkImportedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*domain.ArtworkImportedEvent(nil), p.events...)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))

	return store.NewStore(db)
}

func fullRecord() domain.NormalizedRecord {
	return domain.NormalizedRecord{
		ContractAddress: "0xabcdef0123456789abcdef0123456789abcdef01",
		TokenID:         "42",
		Blockchain:      domain.BlockchainEthereum,
		Title:           domain.StringPtr("Cool Cat #42"),
		ImageURL:        domain.StringPtr("https://img.example/42.png"),
		Creator: &domain.CreatorInfo{
			Address:          "0x396343362be2a4da1ce0c1c210945346fb82aa49",
			ResolutionSource: domain.CreatorSourceMintTransaction,
		},
		Collection: &domain.CollectionInfo{
			Slug:            "cool-cats",
			ContractAddress: "0xabcdef0123456789abcdef0123456789abcdef01",
		},
	}
}

func TestProcessQueue_ImportsPendingEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	publisher := &fakePublisher{}
	processor := queue.NewProcessor(s, publisher, nil, adapter.NewJSON(), adapter.NewClock())

	entryID, err := s.UpsertQueueEntry(ctx, fullRecord(), "opensea")
	require.NoError(t, err)

	batch, err := processor.ProcessQueue(ctx, schema.ImportStatusPending, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Processed)
	assert.Equal(t, 1, batch.Imported)
	assert.Zero(t, batch.Failed)

	entry, err := s.GetQueueEntry(ctx, entryID)
	require.NoError(t, err)
	assert.Equal(t, schema.ImportStatusImported, entry.ImportStatus)
	require.NotNil(t, entry.CatalogArtworkID)

	// Artist and collection were materialized and linked
	artwork, err := s.UpsertArtwork(ctx, store.UpsertArtworkInput{Record: fullRecord()})
	require.NoError(t, err)
	assert.Equal(t, *entry.CatalogArtworkID, artwork.ID)
	assert.NotNil(t, artwork.ArtistID)
	assert.NotNil(t, artwork.CollectionID)

	// The imported event went out
	events := publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, artwork.ID, events[0].ArtworkID)
	assert.Equal(t, "opensea", events[0].Source)
}

func TestProcessQueue_CorruptPayloadFailsPermanently(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	processor := queue.NewProcessor(s, nil, nil, adapter.NewJSON(), adapter.NewClock())

	entryID, err := s.UpsertQueueEntry(ctx, fullRecord(), "opensea")
	require.NoError(t, err)

	// Corrupt the stored payload directly
	entry, err := s.GetQueueEntry(ctx, entryID)
	require.NoError(t, err)
	entry.NormalizedData = []byte("not json")
	result := processor.ProcessOne(ctx, entry)

	assert.Equal(t, schema.ImportStatusFailed, result.Status)

	stored, err := s.GetQueueEntry(ctx, entryID)
	require.NoError(t, err)
	assert.Equal(t, schema.ImportStatusFailed, stored.ImportStatus)
	require.NotNil(t, stored.FailureReason)
	assert.Contains(t, *stored.FailureReason, "corrupt payload")
}

func TestProcessOne_MissingIdentityFailsPermanently(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	processor := queue.NewProcessor(s, nil, nil, adapter.NewJSON(), adapter.NewClock())

	entryID, err := s.UpsertQueueEntry(ctx, fullRecord(), "opensea")
	require.NoError(t, err)

	entry, err := s.GetQueueEntry(ctx, entryID)
	require.NoError(t, err)
	entry.NormalizedData = []byte(`{"contract_address": "", "token_id": ""}`)
	result := processor.ProcessOne(ctx, entry)

	assert.Equal(t, schema.ImportStatusFailed, result.Status)

	stored, err := s.GetQueueEntry(ctx, entryID)
	require.NoError(t, err)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, domain.ErrMissingIdentity.Error(), *stored.FailureReason)
}

func TestProcessQueue_ReprocessingImportedEntryIsSafe(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	processor := queue.NewProcessor(s, nil, nil, adapter.NewJSON(), adapter.NewClock())

	entryID, err := s.UpsertQueueEntry(ctx, fullRecord(), "opensea")
	require.NoError(t, err)

	entry, err := s.GetQueueEntry(ctx, entryID)
	require.NoError(t, err)

	first := processor.ProcessOne(ctx, entry)
	require.Equal(t, schema.ImportStatusImported, first.Status)

	// Running the same entry again lands on the same artwork, no duplicate
	second := processor.ProcessOne(ctx, entry)
	require.Equal(t, schema.ImportStatusImported, second.Status)
	assert.Equal(t, first.ArtworkID, second.ArtworkID)
}

func TestProcessQueue_RecordWithoutRelations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	processor := queue.NewProcessor(s, nil, nil, adapter.NewJSON(), adapter.NewClock())

	record := domain.NormalizedRecord{
		ContractAddress: "0x1111111111111111111111111111111111111111",
		TokenID:         "1",
		Blockchain:      domain.BlockchainEthereum,
	}
	_, err := s.UpsertQueueEntry(ctx, record, "alchemy")
	require.NoError(t, err)

	batch, err := processor.ProcessQueue(ctx, schema.ImportStatusPending, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Imported)
}

func TestProcessQueue_PublisherFailureDoesNotFailImport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	publisher := &fakePublisher{err: assert.AnError}
	processor := queue.NewProcessor(s, publisher, nil, adapter.NewJSON(), adapter.NewClock())

	entryID, err := s.UpsertQueueEntry(ctx, fullRecord(), "opensea")
	require.NoError(t, err)

	batch, err := processor.ProcessQueue(ctx, schema.ImportStatusPending, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Imported)

	entry, err := s.GetQueueEntry(ctx, entryID)
	require.NoError(t, err)
	assert.Equal(t, schema.ImportStatusImported, entry.ImportStatus)
}

func TestProcessQueue_EmptyQueue(t *testing.T) {
	s := newTestStore(t)
	processor := queue.NewProcessor(s, nil, nil, adapter.NewJSON(), adapter.NewClock())

	batch, err := processor.ProcessQueue(context.Background(), schema.ImportStatusPending, 10)
	require.NoError(t, err)
	assert.Zero(t, batch.Processed)
}

// headOnlyHTTPClient answers HEAD requests with a fixed content type
type headOnlyHTTPClient struct {
	contentType string
}

func (c *headOnlyHTTPClient) Get(context.Context, string, map[string]string, interface{}) error {
	return assert.AnError
}

func (c *headOnlyHTTPClient) GetBytes(context.Context, string, map[string]string) ([]byte, error) {
	return nil, assert.AnError
}

func (c *headOnlyHTTPClient) GetPartialContent(context.Context, string, int64) ([]byte, error) {
	return nil, assert.AnError
}

func (c *headOnlyHTTPClient) PostBytes(context.Context, string, map[string]string, io.Reader) ([]byte, error) {
	return nil, assert.AnError
}

func (c *headOnlyHTTPClient) Head(_ context.Context, _ string) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{c.contentType}},
		Body:       http.NoBody,
	}, nil
}

func TestProcessQueue_SniffsMissingMIMEType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	detector := metadata.NewMIMEDetector(&headOnlyHTTPClient{contentType: "image/png"})
	processor := queue.NewProcessor(s, nil, detector, adapter.NewJSON(), adapter.NewClock())

	record := fullRecord()
	record.MIMEType = nil
	_, err := s.UpsertQueueEntry(ctx, record, "opensea")
	require.NoError(t, err)

	batch, err := processor.ProcessQueue(ctx, schema.ImportStatusPending, 10)
	require.NoError(t, err)
	require.Equal(t, 1, batch.Imported)

	artwork, err := s.UpsertArtwork(ctx, store.UpsertArtworkInput{Record: record})
	require.NoError(t, err)
	require.NotNil(t, artwork.MIMEType)
	assert.Equal(t, "image/png", *artwork.MIMEType)
}

func TestProcessQueue_KeepsProviderMIMEType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	detector := metadata.NewMIMEDetector(&headOnlyHTTPClient{contentType: "image/png"})
	processor := queue.NewProcessor(s, nil, detector, adapter.NewJSON(), adapter.NewClock())

	record := fullRecord()
	record.MIMEType = domain.StringPtr("video/mp4")
	_, err := s.UpsertQueueEntry(ctx, record, "alchemy")
	require.NoError(t, err)

	batch, err := processor.ProcessQueue(ctx, schema.ImportStatusPending, 10)
	require.NoError(t, err)
	require.Equal(t, 1, batch.Imported)

	artwork, err := s.UpsertArtwork(ctx, store.UpsertArtworkInput{Record: record})
	require.NoError(t, err)
	require.NotNil(t, artwork.MIMEType)
	assert.Equal(t, "video/mp4", *artwork.MIMEType)
}

func TestProcessQueue_RedrivesFailedEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	processor := queue.NewProcessor(s, nil, nil, adapter.NewJSON(), adapter.NewClock())

	entryID, err := s.UpsertQueueEntry(ctx, fullRecord(), "opensea")
	require.NoError(t, err)
	require.NoError(t, s.MarkQueueEntryFailed(ctx, entryID, "transient mapping bug"))

	// Draining pending must not touch the failed entry
	batch, err := processor.ProcessQueue(ctx, schema.ImportStatusPending, 10)
	require.NoError(t, err)
	assert.Zero(t, batch.Processed)

	// An operator pass over failed entries re-runs them
	batch, err = processor.ProcessQueue(ctx, schema.ImportStatusFailed, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Processed)
	assert.Equal(t, 1, batch.Imported)

	stored, err := s.GetQueueEntry(ctx, entryID)
	require.NoError(t, err)
	assert.Equal(t, schema.ImportStatusImported, stored.ImportStatus)
	assert.Nil(t, stored.FailureReason)
}
