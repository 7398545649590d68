package storage

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerBackend stores documents in an embedded Badger database. Keys are
// "<namespace>/<id>".
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger database at path. An empty path
// opens an in-memory database.
func OpenBadger(path string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func badgerKey(namespace, id string) []byte {
	return []byte(namespace + "/" + id)
}

func (b *BadgerBackend) Get(ctx context.Context, namespace, id string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(namespace, id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, errNotFound
	}
	return data, err
}

func (b *BadgerBackend) Put(ctx context.Context, namespace, id string, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(namespace, id), data)
	})
}

func (b *BadgerBackend) Delete(ctx context.Context, namespace, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(namespace, id))
	})
}

func (b *BadgerBackend) List(ctx context.Context, namespace string) ([][]byte, error) {
	prefix := []byte(namespace + "/")
	var docs [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			docs = append(docs, data)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
