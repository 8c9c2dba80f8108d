package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/programista/programista/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketSchedules = []byte("schedules")
	bucketFavorites = []byte("favorites")
	bucketIdentity  = []byte("identity")
)

const (
	favoritesKey    = "list"
	identityKey     = "installation"
	favoritesFormat = 1
)

// favoritesDoc is the persisted favorites list, versioned for future migrations.
type favoritesDoc struct {
	Version   int                  `json:"version"`
	Favorites []domain.FavoriteRef `json:"favorites"`
}

// Store implements domain.Store using BoltDB.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
	mu     sync.RWMutex // Protects memory cache

	// In-memory cache for hot-path reads (promoted on access)
	cache map[string][]byte
}

var _ domain.Store = (*Store)(nil)

// Open opens (or creates) the database at path. An empty path selects
// memory-only mode, which keeps nothing across restarts.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return &Store{cache: make(map[string][]byte), logger: logger}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSchedules, bucketFavorites, bucketIdentity} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, cache: make(map[string][]byte), logger: logger}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Schedules ===

func (s *Store) GetEntry(key domain.CacheKey) (domain.CacheEntry, bool) {
	var entry domain.CacheEntry
	if !s.get(bucketSchedules, key.String(), &entry) {
		return domain.CacheEntry{}, false
	}
	return entry, true
}

func (s *Store) PutEntry(entry domain.CacheEntry) error {
	if err := entry.Key.Validate(); err != nil {
		return err
	}
	return s.set(bucketSchedules, entry.Key.String(), entry)
}

// Entries returns every decodable schedule entry ordered by key.
func (s *Store) Entries() ([]domain.CacheEntry, error) {
	var entries []domain.CacheEntry
	err := s.each(bucketSchedules, func(key string, data []byte) {
		var entry domain.CacheEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			s.logCorrupt(bucketSchedules, key, err)
			return
		}
		entries = append(entries, entry)
	})
	return entries, err
}

// PruneBefore deletes schedules of days earlier than day and reports how many
// entries were removed.
func (s *Store) PruneBefore(day domain.Date) (int, error) {
	var stale []string
	err := s.each(bucketSchedules, func(key string, _ []byte) {
		// schedule:v1:{provider}:{source}:{day}
		i := strings.LastIndexByte(key, ':')
		if i >= 0 && domain.Date(key[i+1:]).Before(day) {
			stale = append(stale, key)
		}
	})
	if err != nil {
		return 0, err
	}
	for _, key := range stale {
		s.delete(bucketSchedules, key)
	}
	return len(stale), nil
}

// InvalidateAll wipes every cached schedule.
func (s *Store) InvalidateAll() error {
	s.dropMemory(bucketSchedules)
	if s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketSchedules); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(bucketSchedules)
		return err
	})
}

// === Favorites ===

func (s *Store) GetFavorites() ([]domain.FavoriteRef, error) {
	var doc favoritesDoc
	if !s.get(bucketFavorites, favoritesKey, &doc) {
		return nil, nil
	}
	if doc.Version != favoritesFormat {
		return nil, fmt.Errorf("%w: favorites format %d", domain.ErrCacheCorruption, doc.Version)
	}
	return doc.Favorites, nil
}

func (s *Store) SaveFavorites(favs []domain.FavoriteRef) error {
	return s.set(bucketFavorites, favoritesKey, favoritesDoc{Version: favoritesFormat, Favorites: favs})
}

// === Identity ===

func (s *Store) GetIdentity() (domain.InstallationIdentity, bool) {
	var id domain.InstallationIdentity
	if !s.get(bucketIdentity, identityKey, &id) || id.InstallID == "" {
		return domain.InstallationIdentity{}, false
	}
	return id, true
}

func (s *Store) SaveIdentity(id domain.InstallationIdentity) error {
	return s.set(bucketIdentity, identityKey, id)
}

// === Generic helpers ===

// get decodes the record into dest. Records that fail to decode are logged,
// removed and reported as absent.
func (s *Store) get(bucket []byte, key string, dest any) bool {
	cacheKey := string(bucket) + ":" + key

	// Check memory cache first
	s.mu.RLock()
	data, ok := s.cache[cacheKey]
	s.mu.RUnlock()

	if !ok {
		if s.db == nil {
			return false
		}

		// Read from BoltDB
		s.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucket)
			if b == nil {
				return nil
			}
			if v := b.Get([]byte(key)); v != nil {
				data = bytes.Clone(v)
			}
			return nil
		})
		if data == nil {
			return false
		}

		// Promote to memory cache
		s.mu.Lock()
		s.cache[cacheKey] = data
		s.mu.Unlock()
	}

	if err := json.Unmarshal(data, dest); err != nil {
		s.logCorrupt(bucket, key, err)
		s.delete(bucket, key)
		return false
	}
	return true
}

// set replaces the record in a single write transaction.
func (s *Store) set(bucket []byte, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	if s.db != nil {
		err := s.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucket)
			return b.Put([]byte(key), data)
		})
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
	}

	s.mu.Lock()
	s.cache[string(bucket)+":"+key] = data
	s.mu.Unlock()
	return nil
}

func (s *Store) delete(bucket []byte, key string) {
	s.mu.Lock()
	delete(s.cache, string(bucket)+":"+key)
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	s.db.Update(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucket); b != nil {
			b.Delete([]byte(key))
		}
		return nil
	})
}

// each visits every record of bucket in key order.
func (s *Store) each(bucket []byte, fn func(key string, data []byte)) error {
	if s.db != nil {
		return s.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucket)
			if b == nil {
				return nil
			}
			return b.ForEach(func(k, v []byte) error {
				fn(string(k), v)
				return nil
			})
		})
	}

	// Memory-only mode
	prefix := string(bucket) + ":"
	s.mu.RLock()
	keys := make([]string, 0, len(s.cache))
	for k := range s.cache {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	records := make(map[string][]byte, len(keys))
	for _, k := range keys {
		records[k] = s.cache[k]
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		fn(strings.TrimPrefix(k, prefix), records[k])
	}
	return nil
}

func (s *Store) dropMemory(bucket []byte) {
	prefix := string(bucket) + ":"
	s.mu.Lock()
	for k := range s.cache {
		if strings.HasPrefix(k, prefix) {
			delete(s.cache, k)
		}
	}
	s.mu.Unlock()
}

func (s *Store) logCorrupt(bucket []byte, key string, err error) {
	s.logger.Warn("discarding unreadable record",
		"error", fmt.Errorf("%w: %v", domain.ErrCacheCorruption, err),
		"bucket", string(bucket), "key", key)
}
