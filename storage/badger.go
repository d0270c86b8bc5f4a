package storage

import (
	"context"
	"net/url"

	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
)

// NewBadgerVisitedSet creates a VisitedSet stored in badger.
func NewBadgerVisitedSet(db *badger.DB) *BadgerVisitedSet {
	return &BadgerVisitedSet{db: db}
}

// OpenBadger opens a badger database in dir, or an in-memory database if
// dir is empty.
func OpenBadger(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts.InMemory = true
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "could not open badger db")
	}
	return db, nil
}

type BadgerVisitedSet struct {
	db *badger.DB
}

func (vs *BadgerVisitedSet) Claim(ctx context.Context, u *url.URL) (bool, error) {
	key := urlKey(u)
	for {
		fresh := false
		err := vs.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			switch err {
			case nil:
				if !item.IsDeletedOrExpired() {
					return nil
				}
			case badger.ErrKeyNotFound:
			default:
				return err
			}
			fresh = true
			return txn.Set(key, []byte{1})
		})
		// Another transaction touched the key between our read and
		// commit, so try again and let the read see its write.
		if err == badger.ErrConflict {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			default:
				continue
			}
		}
		if err != nil {
			return false, errors.Wrap(err, "could not claim url in badger")
		}
		return fresh, nil
	}
}

func (vs *BadgerVisitedSet) Has(_ context.Context, u *url.URL) (bool, error) {
	ok := false
	err := vs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(urlKey(u))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		ok = !item.IsDeletedOrExpired()
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "could not read badger")
	}
	return ok, nil
}
