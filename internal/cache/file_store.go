package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/temirov/recap/internal/types"
	"github.com/temirov/recap/internal/utils"
)

const (
	recordFileExtension = ".json"
	shardPrefixLength   = 2
	recordPermissions   = 0o644
)

// ErrInvalidFingerprint reports a key that is not a lowercase hex digest.
var ErrInvalidFingerprint = errors.New("invalid fingerprint")

// FileStore keeps one JSON document per fingerprint under a sharded directory.
// Each save replaces the document with a rename, so concurrent saves of
// distinct keys need no lock and repeated saves of one key are idempotent.
type FileStore struct {
	directory string
}

// NewFileStore creates directory when needed and returns a store rooted there.
func NewFileStore(directory string) (*FileStore, error) {
	if mkdirError := os.MkdirAll(directory, 0o755); mkdirError != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", directory, mkdirError)
	}
	return &FileStore{directory: directory}, nil
}

// Directory returns the root directory of the store.
func (store *FileStore) Directory() string {
	return store.directory
}

// Load reads the record stored under fingerprint.
//
// #nosec G304
func (store *FileStore) Load(ctx context.Context, fingerprint string) (types.SummaryRecord, bool, error) {
	if contextError := ctx.Err(); contextError != nil {
		return types.SummaryRecord{}, false, contextError
	}
	recordPath, pathError := store.recordPath(fingerprint)
	if pathError != nil {
		return types.SummaryRecord{}, false, pathError
	}
	data, readError := os.ReadFile(recordPath)
	if readError != nil {
		if os.IsNotExist(readError) {
			return types.SummaryRecord{}, false, nil
		}
		return types.SummaryRecord{}, false, fmt.Errorf("read cache record %s: %w", recordPath, readError)
	}
	var record types.SummaryRecord
	if decodeError := json.Unmarshal(data, &record); decodeError != nil {
		return types.SummaryRecord{}, false, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, recordPath, decodeError)
	}
	if record.Fingerprint != fingerprint {
		return types.SummaryRecord{}, false, fmt.Errorf("%w: %s holds fingerprint %q", ErrCorruptRecord, recordPath, record.Fingerprint)
	}
	return record, true, nil
}

// Save writes record atomically.
func (store *FileStore) Save(ctx context.Context, record types.SummaryRecord) error {
	if contextError := ctx.Err(); contextError != nil {
		return contextError
	}
	recordPath, pathError := store.recordPath(record.Fingerprint)
	if pathError != nil {
		return pathError
	}
	data, encodeError := json.Marshal(record)
	if encodeError != nil {
		return fmt.Errorf("encode cache record %s: %w", record.Fingerprint, encodeError)
	}
	return utils.WriteFileAtomic(recordPath, data, recordPermissions)
}

// Close is a no-op.
func (store *FileStore) Close() error {
	return nil
}

func (store *FileStore) recordPath(fingerprint string) (string, error) {
	if !isHexDigest(fingerprint) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFingerprint, fingerprint)
	}
	return filepath.Join(store.directory, fingerprint[:shardPrefixLength], fingerprint+recordFileExtension), nil
}

func isHexDigest(value string) bool {
	if len(value) <= shardPrefixLength {
		return false
	}
	for _, character := range value {
		isDigit := character >= '0' && character <= '9'
		isLowerHex := character >= 'a' && character <= 'f'
		if !isDigit && !isLowerHex {
			return false
		}
	}
	return true
}
