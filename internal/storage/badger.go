package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerStore is a Store backed by an embedded BadgerDB instance.
// Keys are "namespace/id"; values are the raw JSON documents.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// NewBadgerStore opens (or creates) a Badger database at path.
func NewBadgerStore(path string, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Badger's own logging is too chatty; we log ourselves

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %s: %w", path, err)
	}

	logger.Info("badger store opened", zap.String("path", path))
	return &BadgerStore{db: db, logger: logger}, nil
}

// Get retrieves a record.
func (s *BadgerStore) Get(ctx context.Context, namespace, id string) (*Record, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key(namespace, id)))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Record{Namespace: namespace, ID: id, Value: value}, nil
}

// Upsert stores a record, replacing any existing value.
func (s *BadgerStore) Upsert(ctx context.Context, rec *Record) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key(rec.Namespace, rec.ID)), rec.Value)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Query returns all records in the namespace with the given ID prefix.
// Badger iterates keys in sorted order, so results are deterministic.
func (s *BadgerStore) Query(ctx context.Context, namespace, prefix string) ([]*Record, error) {
	scanPrefix := []byte(namespace + "/" + prefix)
	nsLen := len(namespace) + 1

	var out []*Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = scanPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k := string(item.Key())
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, &Record{
				Namespace: namespace,
				ID:        k[nsLen:],
				Value:     value,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *BadgerStore) Delete(ctx context.Context, namespace, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key(namespace, id)))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
