package activitystore

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/warren/pkg/types"
)

var bucketPlugins = []byte("plugins")

// Record is the durable activity history kept for one plugin.
type Record struct {
	PluginName     string            `json:"pluginName"`
	LastLoadedAt   time.Time         `json:"lastLoadedAt,omitempty"`
	LastCrashAt    time.Time         `json:"lastCrashAt,omitempty"`
	LastCrashCause string            `json:"lastCrashCause,omitempty"`
	RestartCount   int               `json:"restartCount"`
	LastHooks      types.HookSummary `json:"lastHooks"`
}

// Store persists Records across host process restarts.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the activity store database under dataDir.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "activity.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open activity store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPlugins)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create plugins bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) get(tx *bolt.Tx, pluginName string) Record {
	b := tx.Bucket(bucketPlugins)
	data := b.Get([]byte(pluginName))
	if data == nil {
		return Record{PluginName: pluginName}
	}
	var rec Record
	_ = json.Unmarshal(data, &rec)
	return rec
}

func (s *Store) put(tx *bolt.Tx, rec Record) error {
	b := tx.Bucket(bucketPlugins)
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put([]byte(rec.PluginName), data)
}

// RecordLoad updates a plugin's last-loaded timestamp and hook summary.
func (s *Store) RecordLoad(pluginName string, hooks types.HookSummary, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rec := s.get(tx, pluginName)
		rec.LastLoadedAt = at
		rec.LastHooks = hooks
		return s.put(tx, rec)
	})
}

// RecordCrash increments the restart count and records the crash cause.
func (s *Store) RecordCrash(pluginName, cause string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rec := s.get(tx, pluginName)
		rec.LastCrashAt = at
		rec.LastCrashCause = cause
		rec.RestartCount++
		return s.put(tx, rec)
	})
}

// Get returns the stored record for pluginName. If none exists it returns a
// record that is zero-valued except for PluginName.
func (s *Store) Get(pluginName string) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bolt.Tx) error {
		rec = s.get(tx, pluginName)
		return nil
	})
	return rec, err
}

// List returns every stored plugin record.
func (s *Store) List() ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlugins)
		return b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}
