// Copyright © 2018 One Concern

// Package tabular implements a buffered repo over tables.
//
// Rows are staged in a transient table per target, then committed to the
// durable table. Each target keeps a commit watermark: only staged rows
// created after the watermark are committed, so that a row is never
// committed twice.
//
// Table stores are blocking: every operation is dispatched to a worker pool.
package tabular
