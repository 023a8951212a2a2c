// Copyright © 2018 One Concern

// Package repo defines write-buffered repositories.
//
// A Repo accumulates records destined for a target (a file path or a table name)
// in memory, and decides when to reconcile these buffers with a durable backend.
//
// Three families of backends are supported behind the Repo interface:
//   - network: remote object stores reached through a wire protocol (s3, gcs, ...)
//   - local: the local file system
//   - tabular: durable tables, fed from a transient staging area
//
// Variants are instantiated by type tag from a Registry.
//
// Flush policy
//
// A flush runs in one of three modes:
//   - Threshold: reconcile only when the buffered size reaches the configured threshold
//   - Force: reconcile whenever something is pending
//   - Preview: compute the merged view of stored and buffered content, without mutating anything
//
// A Repo is used within a session: Open acquires the backend, Close force-flushes
// every pending buffer then releases the session. WithSession guarantees Close runs
// on every exit path.
//
// Repos are not safe for concurrent writes to the same target.
package repo
