// Copyright © 2018 One Concern

// Package serialize turns records into backend-writable lines.
//
// A Lookup maps an output format tag (e.g. "json", "csv") to its Serializer.
// Each produced line is terminated by a new line character, so that buffers and
// stored objects can be compared line by line.
package serialize
