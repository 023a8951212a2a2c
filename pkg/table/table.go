// Copyright © 2018 One Concern

// Package table declares the tabular storage collaborator.
//
// A table is an ordered sequence of rows. Rows carry a creation time in the
// CreatedAt column, which is used to tell staged rows from committed ones.
package table

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/repobuf/pkg/errors"
)

// CreatedAt is the column holding the creation time of a row
const CreatedAt = "created_at"

var (
	// ErrNoTable is returned when a table does not exist
	ErrNoTable = errors.New("table does not exist")

	// ErrInvalidName is returned for empty or malformed table names
	ErrInvalidName = errors.New("invalid table name")

	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// WriteMode tells how rows are written to an existing table
type WriteMode uint8

const (
	// Append rows after the existing ones
	Append WriteMode = iota
	// Replace the whole table content
	Replace
)

func (m WriteMode) String() string {
	switch m {
	case Append:
		return "append"
	case Replace:
		return "replace"
	default:
		return fmt.Sprintf("WriteMode(%d)", m)
	}
}

// Store knows how to handle tables
type Store interface {
	String() string
	TableExists(ctx context.Context, name string) (bool, error)
	// ReadTable returns all rows of a table, in insertion order. It fails with ErrNoTable for unknown tables.
	ReadTable(ctx context.Context, name string) ([]Row, error)
	// WriteTable creates the table if needed
	WriteTable(ctx context.Context, name string, rows []Row, mode WriteMode) error
	// DropTable fails with ErrNoTable for unknown tables
	DropTable(ctx context.Context, name string) error
	Close() error
}

// Row is a record in a table
type Row map[string]interface{}

// CreatedAt returns the creation time of a row, if any.
//
// Times are accepted as time.Time or as RFC3339 strings, which is how they come back from storage.
func (r Row) CreatedAt() (time.Time, bool) {
	switch v := r[CreatedAt].(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	default:
		return time.Time{}, false
	}
}

// Encode a row for storage
func Encode(r Row) ([]byte, error) {
	return json.Marshal(r)
}

// Decode a stored row
func Decode(data []byte) (Row, error) {
	var r Row
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding row: %w", err)
	}
	return r, nil
}

// Size estimates the in-memory footprint of rows, as their encoded size in bytes
func Size(rows []Row) (int64, error) {
	var size int64
	for _, r := range rows {
		b, err := Encode(r)
		if err != nil {
			return 0, err
		}
		size += int64(len(b))
	}
	return size, nil
}

// ValidateName checks a table name
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName.Wrapf("empty name")
	}
	for _, c := range name {
		if c == 0 {
			return ErrInvalidName.Wrapf("%q contains a NUL character", name)
		}
	}
	return nil
}
