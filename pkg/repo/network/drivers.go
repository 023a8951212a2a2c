// Copyright © 2018 One Concern

package network

import (
	"sort"

	"github.com/oneconcern/repobuf/pkg/storage"
	"github.com/oneconcern/repobuf/pkg/storage/gcs"
	"github.com/oneconcern/repobuf/pkg/storage/memory"
	"github.com/oneconcern/repobuf/pkg/storage/sthree"
	"go.uber.org/zap"
)

type driver func(params map[string]string, l *zap.Logger) storage.RemoteStore

func s3Driver(params map[string]string, l *zap.Logger) storage.RemoteStore {
	return sthree.New(params, sthree.Logger(l))
}

func gcsDriver(params map[string]string, l *zap.Logger) storage.RemoteStore {
	return gcs.New(params, gcs.Logger(l))
}

func memoryDriver(params map[string]string, _ *zap.Logger) storage.RemoteStore {
	return memory.New(params)
}

// drivers is the allow-list of supported protocols
var drivers = map[string]driver{
	"s3":     s3Driver,
	"s3a":    s3Driver,
	"gcs":    gcsDriver,
	"gs":     gcsDriver,
	"memory": memoryDriver,
}

// Protocols supported by the network repo, sorted
func Protocols() []string {
	protocols := make([]string, 0, len(drivers))
	for k := range drivers {
		protocols = append(protocols, k)
	}
	sort.Strings(protocols)
	return protocols
}
