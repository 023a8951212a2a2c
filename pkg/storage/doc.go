// Copyright © 2018 One Concern

// Package storage provides interface to handle byte-oriented backend storage objects.
//
// This package supports the following backends:
//   - GCS (Google)
//   - S3 (AWS)
//   - local file system
//   - in-memory (remote protocol emulation)
package storage
