package ingest

import (
	"github.com/gallerist/token-ingest/internal/domain"
)

// Dedup merges records sharing a (contract, token) identity key. The first
// occurrence wins for ordering; later duplicates may only fill fields the
// earlier record lacks, never overwrite a known value. Deduplicating an
// already-deduplicated list is a no-op.
func Dedup(records []domain.NormalizedRecord) []domain.NormalizedRecord {
	result := make([]domain.NormalizedRecord, 0, len(records))
	index := make(map[string]int, len(records))

	for _, record := range records {
		key := record.IdentityKey()
		if pos, seen := index[key]; seen {
			result[pos].Merge(&record)
			continue
		}
		index[key] = len(result)
		result = append(result, record)
	}

	return result
}
