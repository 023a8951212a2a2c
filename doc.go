// Copyright © 2018 One Concern

/*
Package repobuf provides write-buffered repositories for data ingestion pipelines.

Records written to a repo are buffered per target, then reconciled with a durable
backend: remote object storage (S3, GCS), a local file system, or tables.
Buffers are flushed when they reach a size threshold, when explicitly forced,
and when a repo session ends.

The engine lives in pkg/repo and its variants, the command line in cmd/repobuf.
*/
package repobuf
