// Copyright © 2018 One Concern

package repo

import (
	"context"
	"fmt"

	"github.com/oneconcern/repobuf/pkg/serialize"
	"github.com/oneconcern/repobuf/pkg/table"
)

// Mode of a flush
type Mode uint8

const (
	// Threshold flushes only when the buffered size reaches the threshold
	Threshold Mode = iota
	// Force flushes whatever is pending
	Force
	// Preview returns the merged view without modifying buffers or backend
	Preview
)

// ModeOf resolves the flush mode from force and updating intents. Force takes precedence.
func ModeOf(force, updating bool) Mode {
	switch {
	case force:
		return Force
	case updating:
		return Preview
	default:
		return Threshold
	}
}

func (m Mode) String() string {
	switch m {
	case Threshold:
		return "threshold"
	case Force:
		return "force"
	case Preview:
		return "preview"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// View is some content of a target: raw bytes for byte-oriented variants, rows for the tabular variant.
type View struct {
	Target string
	Data   []byte
	Rows   []table.Row
}

// Empty tells if the view has no content
func (v *View) Empty() bool {
	return v == nil || (len(v.Data) == 0 && len(v.Rows) == 0)
}

// ReadOptions tune Read
type ReadOptions struct {
	// Stored requests a view consistent with the backend, accounting for buffered writes
	Stored bool
}

// DeleteOptions tune Delete
type DeleteOptions struct {
	// Recursive removes containers and their content (byte-oriented variants)
	Recursive bool
	// OnlyBuffer drops the staged content but leaves the durable table alone (tabular variant)
	OnlyBuffer bool
}

// Repo is a write-buffered repository.
//
// Operations taking a target fall back on the cursor, i.e. the last addressed target,
// when the target is empty.
type Repo interface {
	String() string

	// Open the backend session. Open is idempotent.
	Open(context.Context) error
	// Close force-flushes all buffers and closes the session. The repo may be opened again.
	Close(context.Context) error
	// Release frees the backend handle for good
	Release() error
	// Reconfigure merges parameters into the connection parameters and rebuilds the backend handle
	Reconfigure(context.Context, map[string]string) error

	Cursor() string
	Create(ctx context.Context, target string) error
	Write(ctx context.Context, records []serialize.Record, target string) error
	Read(ctx context.Context, target string, opts ReadOptions) (*View, error)
	// Flush returns a view in Preview mode only
	Flush(ctx context.Context, target string, mode Mode) (*View, error)
	Delete(ctx context.Context, target string, opts DeleteOptions) error
}

// Browser is implemented by byte-oriented repos which expose their containers.
//
// An empty directory stands for the directory of the cursor.
type Browser interface {
	List(ctx context.Context, dir string) ([]string, error)
	MakeContainer(ctx context.Context, dir string) error
}

// Inspector exposes the pending state of a repo
type Inspector interface {
	// Pending returns the buffered size in bytes for a target, and whether a buffer is registered
	Pending(target string) (int64, bool)
	Targets() []string
}
