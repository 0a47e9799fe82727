// Package datacache stores the raw dataset of each region on disk with a TTL.
//
// Each region has one entry file. Lookups classify the entry relative to the
// caller-supplied time as Fresh, Stale or Absent and never modify it.
package datacache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/golang/snappy"

	"github.com/rewired-gh/oceanoracle/internal/logger"
	"github.com/rewired-gh/oceanoracle/internal/models"
	"github.com/rewired-gh/oceanoracle/internal/storage"
)

const (
	entryVersion = 1

	encodingSnappy = "snappy"
	encodingJSON   = "json"
)

// Freshness classifies a cache entry relative to now
type Freshness int

const (
	Absent Freshness = iota
	Fresh
	Stale
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

// MarshalText renders the freshness as its name
func (f Freshness) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Lookup is the result of Get. Dataset is nil when Absent.
type Lookup struct {
	Freshness Freshness
	Dataset   *models.RawDataset
	ExpiresAt time.Time
}

// Info is entry metadata for status reporting
type Info struct {
	Cached      bool      `json:"cached"`
	Freshness   Freshness `json:"freshness"`
	FetchedAt   time.Time `json:"fetched_at,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	RecordCount int       `json:"record_count"`
	Synthetic   bool      `json:"synthetic"`
}

// entryHeader is the metadata part of an entry file
type entryHeader struct {
	Version     int                   `json:"version"`
	RegionKey   string                `json:"region_key"`
	FetchedAt   time.Time             `json:"fetched_at"`
	ExpiresAt   time.Time             `json:"expires_at"`
	RecordCount int                   `json:"record_count"`
	Source      models.SourceMetadata `json:"source"`
	Encoding    string                `json:"encoding"`
}

// entryFile is the on-disk layout of one region entry
type entryFile struct {
	entryHeader
	Payload []byte                 `json:"payload,omitempty"` // snappy-compressed records JSON
	Records []models.RawDataRecord `json:"records,omitempty"`
}

// Cache is a file-backed raw data cache
type Cache struct {
	dir      *storage.Dir
	ttl      time.Duration
	compress bool
}

// New opens a cache in dir, removing temp files left by earlier crashes
func New(dir string, ttl time.Duration, compress bool, filePermissions, dirPermissions os.FileMode) (*Cache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive")
	}
	d := storage.New(dir, filePermissions, dirPermissions)
	if removed, err := d.CleanupTemp(); err != nil {
		return nil, err
	} else if removed > 0 {
		logger.Warn("Removed %d stale temp files from cache %s", removed, d.Root())
	}

	return &Cache{dir: d, ttl: ttl, compress: compress}, nil
}

// TTL returns the configured time to live
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func fileName(key string) string {
	return key + ".json"
}

func classify(expiresAt, now time.Time) Freshness {
	if now.After(expiresAt) {
		return Stale
	}
	return Fresh
}

// Get classifies the entry for key at now. Unreadable or undecodable entries
// are logged and reported as Absent.
func (c *Cache) Get(key string, now time.Time) Lookup {
	l := c.dir.Lock(key)
	l.RLock()
	defer l.RUnlock()

	data, err := c.dir.Read(fileName(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Cache entry for %s unreadable: %v", key, err)
		}
		return Lookup{Freshness: Absent}
	}

	dataset, header, err := decode(data)
	if err != nil {
		logger.Warn("Cache entry for %s is corrupt, treating as absent: %v", key, err)
		return Lookup{Freshness: Absent}
	}
	if header.RegionKey != key {
		logger.Warn("Cache entry for %s belongs to %s, treating as absent", key, header.RegionKey)
		return Lookup{Freshness: Absent}
	}

	return Lookup{
		Freshness: classify(header.ExpiresAt, now),
		Dataset:   dataset,
		ExpiresAt: header.ExpiresAt,
	}
}

// Put overwrites the entry for key and returns its expiry, now + TTL
func (c *Cache) Put(key string, dataset *models.RawDataset, now time.Time) (time.Time, error) {
	if dataset == nil || dataset.RegionKey != key {
		return time.Time{}, fmt.Errorf("dataset does not belong to region %s", key)
	}

	expiresAt := now.Add(c.ttl)
	entry := entryFile{
		entryHeader: entryHeader{
			Version:     entryVersion,
			RegionKey:   key,
			FetchedAt:   dataset.FetchedAt,
			ExpiresAt:   expiresAt,
			RecordCount: len(dataset.Records),
			Source:      dataset.Source,
		},
	}

	if c.compress {
		raw, err := json.Marshal(dataset.Records)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to marshal records: %w", err)
		}
		entry.Encoding = encodingSnappy
		entry.Payload = snappy.Encode(nil, raw)
	} else {
		entry.Encoding = encodingJSON
		entry.Records = dataset.Records
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	l := c.dir.Lock(key)
	l.Lock()
	defer l.Unlock()

	if err := c.dir.WriteAtomic(fileName(key), data); err != nil {
		return time.Time{}, fmt.Errorf("failed to write cache entry for %s: %w", key, err)
	}
	logger.Debug("Cached %d records for %s until %s", len(dataset.Records), key, expiresAt.Format(time.RFC3339))
	return expiresAt, nil
}

// Clear removes the entry for key. Clearing a missing entry is not an error.
func (c *Cache) Clear(key string) error {
	l := c.dir.Lock(key)
	l.Lock()
	defer l.Unlock()

	return c.dir.Remove(fileName(key))
}

// Info reports entry metadata without decoding the records
func (c *Cache) Info(key string, now time.Time) Info {
	l := c.dir.Lock(key)
	l.RLock()
	defer l.RUnlock()

	data, err := c.dir.Read(fileName(key))
	if err != nil {
		return Info{Freshness: Absent}
	}

	var header entryHeader
	if err := json.Unmarshal(data, &header); err != nil || header.Version != entryVersion || header.RegionKey != key {
		return Info{Freshness: Absent}
	}

	return Info{
		Cached:      true,
		Freshness:   classify(header.ExpiresAt, now),
		FetchedAt:   header.FetchedAt,
		ExpiresAt:   header.ExpiresAt,
		RecordCount: header.RecordCount,
		Synthetic:   header.Source.Synthetic,
	}
}

func decode(data []byte) (*models.RawDataset, *entryHeader, error) {
	var entry entryFile
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	if entry.Version != entryVersion {
		return nil, nil, fmt.Errorf("unsupported entry version %d", entry.Version)
	}

	records := entry.Records
	switch entry.Encoding {
	case encodingSnappy:
		raw, err := snappy.Decode(nil, entry.Payload)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decompress payload: %w", err)
		}
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal records: %w", err)
		}
	case encodingJSON:
	default:
		return nil, nil, fmt.Errorf("unknown encoding %q", entry.Encoding)
	}

	if len(records) != entry.RecordCount {
		return nil, nil, fmt.Errorf("record count mismatch: header %d, payload %d", entry.RecordCount, len(records))
	}

	return &models.RawDataset{
		RegionKey: entry.RegionKey,
		FetchedAt: entry.FetchedAt,
		Records:   records,
		Source:    entry.Source,
	}, &entry.entryHeader, nil
}
