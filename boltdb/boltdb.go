// Package boltdb is an embedded bbolt store for single-node deployments.
package boltdb

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

var (
	credentialsBucket = []byte("credentials")
	usersBucket       = []byte("users")
	usernameIndex     = []byte("users_by_username")
)

// tokenIndexes maps each unique token column to its index bucket.
var tokenIndexes = map[string][]byte{
	"temporary_token": []byte("credentials_by_temporary_token"),
	"access_token":    []byte("credentials_by_access_token"),
	"refresh_token":   []byte("credentials_by_refresh_token"),
}

// Open opens (or creates) the database file and its buckets.
func Open(dbPath string) (*bbolt.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	log.Info().Str("path", dbPath).Msg("Initializing BBoltDB")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db at %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{credentialsBucket, usersBucket, usernameIndex}
		for _, name := range tokenIndexes {
			buckets = append(buckets, name)
		}
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func itob(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
