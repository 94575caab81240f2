// Package cache persists summaries keyed by content fingerprint so unchanged
// files and directories are not summarized again.
package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/temirov/recap/internal/types"
	"github.com/temirov/recap/internal/utils"
)

const (
	warningCorruptRecordMessage = "ignoring unreadable cache record"
	warningLoadFailedMessage    = "cache lookup failed"
	fingerprintLogField         = "fingerprint"
)

// ErrCorruptRecord reports a stored record that cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt cache record")

// Store persists summary records. Save must be atomic per fingerprint and safe
// for concurrent use on distinct fingerprints.
type Store interface {
	Load(ctx context.Context, fingerprint string) (types.SummaryRecord, bool, error)
	Save(ctx context.Context, record types.SummaryRecord) error
	Close() error
}

// Stats counts cache outcomes for a run.
type Stats struct {
	Hits    int64
	Misses  int64
	Corrupt int64
	Writes  int64
}

// Cache wraps a Store and treats every load failure as a miss.
type Cache struct {
	store   Store
	logger  *zap.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	corrupt atomic.Int64
	writes  atomic.Int64
}

// New constructs a Cache over store.
func New(store Store, logger *zap.Logger) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Cache{store: store, logger: utils.LoggerOrNop(logger)}
}

// Get returns the record stored under fingerprint. Unreadable records are
// reported as misses.
func (cache *Cache) Get(ctx context.Context, fingerprint string) (types.SummaryRecord, bool) {
	record, found, loadError := cache.store.Load(ctx, fingerprint)
	if loadError != nil {
		cache.misses.Add(1)
		if errors.Is(loadError, ErrCorruptRecord) {
			cache.corrupt.Add(1)
			cache.logger.Warn(warningCorruptRecordMessage, zap.String(fingerprintLogField, fingerprint), zap.Error(loadError))
		} else if ctx.Err() == nil {
			cache.logger.Warn(warningLoadFailedMessage, zap.String(fingerprintLogField, fingerprint), zap.Error(loadError))
		}
		return types.SummaryRecord{}, false
	}
	if !found {
		cache.misses.Add(1)
		return types.SummaryRecord{}, false
	}
	cache.hits.Add(1)
	return record, true
}

// Put stores record under fingerprint.
func (cache *Cache) Put(ctx context.Context, fingerprint string, record types.SummaryRecord) error {
	record.Fingerprint = fingerprint
	if saveError := cache.store.Save(ctx, record); saveError != nil {
		return saveError
	}
	cache.writes.Add(1)
	return nil
}

// Stats returns a snapshot of the counters.
func (cache *Cache) Stats() Stats {
	return Stats{
		Hits:    cache.hits.Load(),
		Misses:  cache.misses.Load(),
		Corrupt: cache.corrupt.Load(),
		Writes:  cache.writes.Load(),
	}
}

// Close releases the underlying store.
func (cache *Cache) Close() error {
	return cache.store.Close()
}

// MemoryStore keeps records for the lifetime of the process.
type MemoryStore struct {
	mutex   sync.RWMutex
	records map[string]types.SummaryRecord
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]types.SummaryRecord)}
}

// Load returns the record stored under fingerprint.
func (store *MemoryStore) Load(_ context.Context, fingerprint string) (types.SummaryRecord, bool, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	record, found := store.records[fingerprint]
	return record, found, nil
}

// Save stores record.
func (store *MemoryStore) Save(_ context.Context, record types.SummaryRecord) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.records[record.Fingerprint] = record
	return nil
}

// Len reports the number of stored records.
func (store *MemoryStore) Len() int {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	return len(store.records)
}

// Close is a no-op.
func (store *MemoryStore) Close() error {
	return nil
}
