// Package storage persists the engine's two cacheable artifacts in a
// BoltDB file: fitted vocabularies (keyed by name, exactly reproducible
// from a fit on the same corpus) and generated reports (keyed by
// label_timestamp for efficient recent-first range scans).
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"glassbox/internal/features"
)

const (
	vocabBucket   = "vocabularies" // Bucket for fitted vocabulary artifacts
	reportsBucket = "reports"      // Bucket for generated report payloads
)

// Store provides persistent storage backed by BoltDB. All operations are
// safe for concurrent use; bbolt serializes writers internally.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the database at path and ensures both
// buckets exist. The parent directory is created when missing.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(vocabBucket)); err != nil {
			return fmt.Errorf("create vocabularies bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(reportsBucket)); err != nil {
			return fmt.Errorf("create reports bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("storage opened")
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveVocabulary stores a fitted vocabulary under name, replacing any
// previous artifact with that name.
func (s *Store) SaveVocabulary(name string, v *features.Vocabulary) error {
	if name == "" {
		return fmt.Errorf("storage: vocabulary name cannot be empty")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(vocabBucket))

		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal vocabulary: %w", err)
		}
		return b.Put([]byte(name), data)
	})
}

// LoadVocabulary retrieves a fitted vocabulary by name. A missing name
// returns (nil, nil) so callers can fall back to fitting.
func (s *Store) LoadVocabulary(name string) (*features.Vocabulary, error) {
	var vocab *features.Vocabulary
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(vocabBucket)).Get([]byte(name))
		if data == nil {
			return nil
		}
		var v features.Vocabulary
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("unmarshal vocabulary %q: %w", name, err)
		}
		vocab = &v
		return nil
	})
	return vocab, err
}

// ListVocabularies returns the stored vocabulary names in key order.
func (s *Store) ListVocabularies() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(vocabBucket)).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// SaveReport stores one generated report payload under label_timestamp.
// Returns the key so callers can reference the stored report.
func (s *Store) SaveReport(label string, ts time.Time, payload []byte) (string, error) {
	key := fmt.Sprintf("%s_%s", label, ts.UTC().Format(time.RFC3339Nano))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(reportsBucket)).Put([]byte(key), payload)
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// LoadReport retrieves one report payload by its full key.
func (s *Store) LoadReport(key string) ([]byte, error) {
	var payload []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(reportsBucket)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("storage: no report under key %q", key)
		}
		payload = append([]byte(nil), data...)
		return nil
	})
	return payload, err
}

// ReportRef names one stored report.
type ReportRef struct {
	Key   string    `json:"key"`
	Label string    `json:"label"`
	Saved time.Time `json:"saved"`
}

// RecentReports scans the label's key prefix with a cursor and returns up
// to limit references, newest first.
func (s *Store) RecentReports(label string, limit int) ([]ReportRef, error) {
	var refs []ReportRef
	prefix := []byte(label + "_")

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(reportsBucket)).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			ts, err := time.Parse(time.RFC3339Nano, string(k[len(prefix):]))
			if err != nil {
				continue // Skip malformed keys
			}
			refs = append(refs, ReportRef{Key: string(k), Label: label, Saved: ts})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Keys sort oldest first; return the newest entries in reverse order.
	for i, j := 0, len(refs)-1; i < j; i, j = i+1, j-1 {
		refs[i], refs[j] = refs[j], refs[i]
	}
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}
