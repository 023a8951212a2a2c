// Copyright © 2018 One Concern

// Package bdgr keeps transient staging tables in an in-memory badger database.
//
// Staged rows are keyed by table name and a monotonic sequence, so that they
// are read back in insertion order. Nothing survives the store's Close.
package bdgr

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/oneconcern/repobuf/pkg/table"
	"go.uber.org/zap"
)

const (
	sequenceBandwidth = 100
	sep               = 0
)

var seqKey = []byte("\x00seq")

type staging struct {
	db  *badger.DB
	seq *badger.Sequence
	l   *zap.Logger
}

// Option for the staging store
type Option func(*staging)

// Logger specifies a logger for this store and the underlying badger database
func Logger(l *zap.Logger) Option {
	return func(s *staging) {
		if l != nil {
			s.l = l
		}
	}
}

// New in-memory staging table store
func New(opts ...Option) (table.Store, error) {
	s := &staging{l: zap.NewNop()}
	for _, apply := range opts {
		apply(s)
	}

	badgerOpts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(&badgerLogger{l: s.l.Sugar()})
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening staging area: %w", err)
	}
	seq, err := db.GetSequence(seqKey, sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening staging sequence: %w", err)
	}
	s.db = db
	s.seq = seq
	return s, nil
}

func (s *staging) String() string {
	return "badger-staging"
}

func (s *staging) Close() error {
	if err := s.seq.Release(); err != nil {
		s.l.Warn("releasing staging sequence", zap.Error(err))
	}
	return s.db.Close()
}

// tablePrefix is the name followed by a separator. The bare prefix key marks the table as existing.
func tablePrefix(name string) []byte {
	return append([]byte(name), sep)
}

func rowKey(name string, seq uint64) []byte {
	k := tablePrefix(name)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return append(k, b[:]...)
}

func (s *staging) TableExists(_ context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(tablePrefix(name))
		switch err {
		case nil:
			exists = true
			return nil
		case badger.ErrKeyNotFound:
			return nil
		default:
			return err
		}
	})
	return exists, err
}

func (s *staging) ReadTable(ctx context.Context, name string) ([]table.Row, error) {
	exists, err := s.TableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, table.ErrNoTable.Wrapf("staging table %q", name)
	}

	prefix := tablePrefix(name)
	rows := make([]table.Row, 0)
	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if bytes.Equal(item.Key(), prefix) {
				continue
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			row, err := table.Decode(v)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *staging) WriteTable(ctx context.Context, name string, rows []table.Row, mode table.WriteMode) error {
	if err := table.ValidateName(name); err != nil {
		return err
	}
	if mode == table.Replace {
		if err := s.db.DropPrefix(tablePrefix(name)); err != nil {
			return err
		}
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	if err := wb.Set(tablePrefix(name), nil); err != nil {
		return err
	}
	for _, row := range rows {
		v, err := table.Encode(row)
		if err != nil {
			return err
		}
		seq, err := s.seq.Next()
		if err != nil {
			return err
		}
		if err = wb.Set(rowKey(name, seq), v); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *staging) DropTable(ctx context.Context, name string) error {
	exists, err := s.TableExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return table.ErrNoTable.Wrapf("staging table %q", name)
	}
	return s.db.DropPrefix(tablePrefix(name))
}

// badgerLogger adapts zap to the badger.Logger interface
type badgerLogger struct {
	l *zap.SugaredLogger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (b *badgerLogger) Errorf(msg string, items ...interface{})   { b.l.Errorf(msg, items...) }
func (b *badgerLogger) Warningf(msg string, items ...interface{}) { b.l.Warnf(msg, items...) }
func (b *badgerLogger) Infof(msg string, items ...interface{})    { b.l.Debugf(msg, items...) }
func (b *badgerLogger) Debugf(msg string, items ...interface{})   { b.l.Debugf(msg, items...) }
