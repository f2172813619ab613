// Package metaStore persists envelope records in a badger key-value store.
package metaStore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/sealbox/sealbox/pkg/envelope"
)

// ErrNotFound is returned when no envelope exists for the given id.
var ErrNotFound = errors.New("metaStore: envelope not found")

// envPrefix namespaces envelope records inside the store.
var envPrefix = []byte("env:")

type StoreConfig struct {
	Path   string // badger data directory
	Logger *logrus.Logger
}

type MetaStore struct {
	config   StoreConfig
	badgerDB *badger.DB
	log      *logrus.Logger
}

func New(config StoreConfig) (*MetaStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Path == "" {
		return nil, fmt.Errorf("metaStore: path must not be empty")
	}

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		config.Logger.WithField("path", config.Path).Errorf("Error opening badger store: %v", err)
		return nil, fmt.Errorf("metaStore: open badger at %s: %w", config.Path, err)
	}

	return &MetaStore{
		config:   config,
		badgerDB: db,
		log:      config.Logger,
	}, nil
}

func (m *MetaStore) Close() error {
	return m.badgerDB.Close()
}

func envKey(id string) []byte {
	return append(append([]byte{}, envPrefix...), id...)
}

// Put stores an envelope record. Envelopes are immutable; Put is only called
// once per artifact, as the terminal step of an encrypt operation.
func (m *MetaStore) Put(env envelope.Envelope) error {
	if env.ID == "" {
		return fmt.Errorf("metaStore: envelope id must not be empty")
	}

	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("metaStore: marshal envelope %s: %w", env.ID, err)
	}

	err = m.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(envKey(env.ID), value)
	})
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"id": env.ID,
		}).Errorf("Error writing envelope: %v", err)
		return fmt.Errorf("metaStore: write envelope %s: %w", env.ID, err)
	}
	return nil
}

// Get loads the envelope for id, or ErrNotFound.
func (m *MetaStore) Get(id string) (envelope.Envelope, error) {
	var env envelope.Envelope

	err := m.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(envKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		})
	})
	if err != nil {
		return envelope.Envelope{}, err
	}
	return env, nil
}

// Exists reports whether an envelope is stored under id.
func (m *MetaStore) Exists(id string) (bool, error) {
	err := m.badgerDB.View(func(txn *badger.Txn) error {
		_, err := txn.Get(envKey(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the envelope for id. Deleting an unknown id is ErrNotFound.
func (m *MetaStore) Delete(id string) error {
	exists, err := m.Exists(id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	err = m.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Delete(envKey(id))
	})
	if err != nil {
		m.log.WithField("id", id).Errorf("Error deleting envelope: %v", err)
		return fmt.Errorf("metaStore: delete envelope %s: %w", id, err)
	}
	return nil
}

// List returns all stored envelopes, newest first.
func (m *MetaStore) List() ([]envelope.Envelope, error) {
	var envs []envelope.Envelope

	err := m.badgerDB.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(envPrefix); it.ValidForPrefix(envPrefix); it.Next() {
			var env envelope.Envelope
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			})
			if err != nil {
				// A record that no longer decodes is logged and skipped so one
				// bad entry cannot take down listing.
				m.log.Errorf("Skipping malformed envelope record: %v", err)
				continue
			}
			envs = append(envs, env)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("metaStore: list envelopes: %w", err)
	}

	sort.Slice(envs, func(i, j int) bool {
		return envs[i].CreatedAt.After(envs[j].CreatedAt)
	})
	return envs, nil
}

// GarbageCollect runs one badger value-log GC cycle. Safe to call
// periodically; returns nil when there was nothing to rewrite.
func (m *MetaStore) GarbageCollect() error {
	err := m.badgerDB.RunValueLogGC(0.7)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}
