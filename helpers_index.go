// scriptnav/helpers_index.go
// Persistent identifier index (bbolt). Lets the module search skip files that
// cannot mention a name without reading them again.
package scriptnav

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"go.etcd.io/bbolt"
)

var indexBucketName = []byte("NameIndex")

// NameIndex maps absolute file paths to the identifiers they contain. Entries
// are revalidated against the file's size and modification time.
type NameIndex struct {
	mu     sync.RWMutex
	db     *bbolt.DB
	logger *slog.Logger
}

// DefaultIndexPath returns the index file location under the user cache dir.
func DefaultIndexPath() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	dbDir := filepath.Join(userCacheDir, configDirName, "bboltdb", fmt.Sprintf("v%d", indexSchemaVersion))
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return "", err
	}
	return filepath.Join(dbDir, "name_index.db"), nil
}

// OpenNameIndex opens (or creates) the index at dbPath.
func OpenNameIndex(dbPath string, logger *slog.Logger) (*NameIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	indexLogger := logger.With("component", "NameIndex", "path", dbPath)

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrCache, dbPath, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(indexBucketName); err != nil {
			return fmt.Errorf("failed to create index bucket %s: %w", string(indexBucketName), err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	indexLogger.Info("Using bbolt name index", "schema_version", indexSchemaVersion)
	return &NameIndex{db: db, logger: indexLogger}, nil
}

// Close closes the database.
func (ix *NameIndex) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.db == nil {
		return nil
	}
	ix.logger.Info("Closing bbolt name index.")
	err := ix.db.Close()
	ix.db = nil
	if err != nil {
		return fmt.Errorf("bbolt close failed: %w", err)
	}
	return nil
}

// Names returns the sorted identifier set of the file at path, reading and
// re-indexing the file when the stored entry is missing or stale.
func (ix *NameIndex) Names(path string) ([]string, error) {
	ix.mu.RLock()
	db := ix.db
	ix.mu.RUnlock()
	if db == nil {
		return nil, fmt.Errorf("%w: index closed", ErrCacheRead)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	entry, readErr := ix.read(db, path)
	if readErr != nil {
		ix.logger.Warn("Error reading or decoding index entry, rebuilding.", "file", path, "error", readErr)
		if errors.Is(readErr, ErrCacheDecode) {
			if delErr := ix.Delete(path); delErr != nil {
				ix.logger.Warn("Failed to delete undecodable index entry", "file", path, "error", delErr)
			}
		}
		entry = nil
	}
	if entry != nil && entry.Size == info.Size() && entry.ModTime == info.ModTime().UnixNano() {
		return entry.Names, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	hash := xxhash.Sum64(src)
	names := entry.namesIfHash(hash)
	if names == nil {
		names = Identifiers(src)
	}
	fresh := IndexEntry{
		SchemaVersion: indexSchemaVersion,
		Size:          info.Size(),
		ModTime:       info.ModTime().UnixNano(),
		Hash:          hash,
		Names:         names,
	}
	if err := ix.write(db, path, &fresh); err != nil {
		ix.logger.Warn("Failed to write index entry", "file", path, "error", err)
	}
	return names, nil
}

func (e *IndexEntry) namesIfHash(hash uint64) []string {
	if e == nil || e.Hash != hash {
		return nil
	}
	return e.Names
}

// Contains reports whether name occurs as an identifier in the file at path.
func (ix *NameIndex) Contains(path, name string) (bool, error) {
	names, err := ix.Names(path)
	if err != nil {
		return false, err
	}
	i := sort.SearchStrings(names, name)
	return i < len(names) && names[i] == name, nil
}

// Delete removes the entry for path.
func (ix *NameIndex) Delete(path string) error {
	ix.mu.RLock()
	db := ix.db
	ix.mu.RUnlock()
	if db == nil {
		return errors.New("cannot delete index entry: db is nil")
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexBucketName)
		if b == nil || b.Get([]byte(path)) == nil {
			return nil
		}
		return b.Delete([]byte(path))
	})
	if err != nil {
		return fmt.Errorf("%w: failed to delete entry %s: %w", ErrCacheWrite, path, err)
	}
	return nil
}

// Stats returns the entry count and the database file size.
func (ix *NameIndex) Stats() (entries int, size int64, err error) {
	ix.mu.RLock()
	db := ix.db
	ix.mu.RUnlock()
	if db == nil {
		return 0, 0, fmt.Errorf("%w: index closed", ErrCacheRead)
	}
	err = db.View(func(tx *bbolt.Tx) error {
		size = tx.Size()
		if b := tx.Bucket(indexBucketName); b != nil {
			entries = b.Stats().KeyN
		}
		return nil
	})
	if err == nil {
		ix.logger.Debug("Name index stats", "entries", entries, "size", humanize.Bytes(uint64(size)))
	}
	return entries, size, err
}

func (ix *NameIndex) read(db *bbolt.DB, path string) (*IndexEntry, error) {
	var entry *IndexEntry
	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexBucketName)
		if b == nil {
			return nil
		}
		valBytes := b.Get([]byte(path))
		if valBytes == nil {
			return nil
		}
		var decoded IndexEntry
		if err := gob.NewDecoder(bytes.NewReader(valBytes)).Decode(&decoded); err != nil {
			return fmt.Errorf("%w: failed to decode index entry: %w", ErrCacheDecode, err)
		}
		if decoded.SchemaVersion != indexSchemaVersion {
			ix.logger.Debug("Index entry has old schema version. Ignoring.", "file", path, "cached_version", decoded.SchemaVersion)
			return nil
		}
		entry = &decoded
		return nil
	})
	return entry, err
}

func (ix *NameIndex) write(db *bbolt.DB, path string, entry *IndexEntry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheEncode, err)
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexBucketName)
		if b == nil {
			return fmt.Errorf("%w: index bucket %s disappeared", ErrCacheWrite, string(indexBucketName))
		}
		return b.Put([]byte(path), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	return nil
}
