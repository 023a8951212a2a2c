// Copyright © 2018 One Concern

// Package bolt stores durable tables in a bbolt database, one bucket per table.
package bolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oneconcern/repobuf/pkg/table"
	"go.etcd.io/bbolt"
)

type boltStore struct {
	path string
	db   *bbolt.DB
}

// Open a bbolt backed table store at the given file path.
// Parent directories are created if needed.
func Open(path string) (table.Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("ensuring directories for %q: %w", path, err)
		}
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}
	return &boltStore{path: path, db: db}, nil
}

func (b *boltStore) String() string {
	return "bolt@" + b.path
}

func (b *boltStore) Close() error {
	return b.db.Close()
}

func (b *boltStore) TableExists(_ context.Context, name string) (bool, error) {
	var exists bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket([]byte(name)) != nil
		return nil
	})
	return exists, err
}

func (b *boltStore) ReadTable(_ context.Context, name string) ([]table.Row, error) {
	var rows []table.Row
	err := b.db.View(func(tx *bbolt.Tx) error {
		buck := tx.Bucket([]byte(name))
		if buck == nil {
			return table.ErrNoTable.Wrapf("table %q", name)
		}
		rows = make([]table.Row, 0, buck.Stats().KeyN)
		// values are decoded right away: bbolt's memory-mapped data is only valid during the transaction
		return buck.ForEach(func(_, v []byte) error {
			row, err := table.Decode(v)
			if err != nil {
				return err
			}
			rows = append(rows, row)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (b *boltStore) WriteTable(_ context.Context, name string, rows []table.Row, mode table.WriteMode) error {
	if err := table.ValidateName(name); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		if mode == table.Replace && tx.Bucket([]byte(name)) != nil {
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return err
			}
		}
		buck, err := tx.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", name, err)
		}
		for _, row := range rows {
			seq, err := buck.NextSequence()
			if err != nil {
				return err
			}
			v, err := table.Encode(row)
			if err != nil {
				return err
			}
			if err = buck.Put(seqKey(seq), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *boltStore) DropTable(_ context.Context, name string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket([]byte(name))
		if err == bbolt.ErrBucketNotFound {
			return table.ErrNoTable.Wrap(err)
		}
		return err
	})
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
