// Copyright © 2018 One Concern

// Package blobrepo implements the buffering engine shared by byte-oriented repos.
//
// Records are serialized into lines and accumulated per target. Flushes reconcile
// the buffered lines with the durable object by a full object read-modify-write:
// durable lines are kept in place and buffered lines not already present are appended.
package blobrepo
