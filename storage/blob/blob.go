// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blob

import (
	"io"
	"strings"

	"github.com/gorse-io/newsrec/base/log"
	"github.com/gorse-io/newsrec/config"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Store keeps named binary objects such as cached latent factors.
type Store interface {
	// Open a file for reading.
	Open(name string) (io.ReadCloser, error)
	// Create a new file for writing. The returned done channel is closed when the content has been persisted.
	Create(name string) (io.WriteCloser, chan struct{}, error)
	// List names of all files.
	List() ([]string, error)
	// Remove a file.
	Remove(name string) error
}

var (
	_ Store = (*POSIX)(nil)
	_ Store = (*S3)(nil)
	_ Store = (*GCS)(nil)
	_ Store = (*AzureBlob)(nil)
)

// Open creates the store selected by the storage configuration.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendPOSIX:
		log.Logger().Info("open posix blob store", zap.String("dir", cfg.Dir))
		return NewPOSIX(cfg.Dir), nil
	case config.BackendS3:
		log.Logger().Info("open s3 blob store",
			zap.String("endpoint", log.RedactConnectionString(cfg.S3.Endpoint)),
			zap.String("bucket", cfg.S3.Bucket))
		return NewS3(cfg.S3)
	case config.BackendGCS:
		log.Logger().Info("open gcs blob store", zap.String("bucket", cfg.GCS.Bucket))
		return NewGCS(cfg.GCS)
	case config.BackendAzure:
		log.Logger().Info("open azure blob store",
			zap.String("connection_string", log.RedactConnectionString(cfg.Azure.ConnectionString)),
			zap.String("container", cfg.Azure.Container))
		return NewAzureBlob(cfg.Azure)
	default:
		return nil, errors.NotSupportedf("blob backend %q", cfg.Backend)
	}
}

// Exists checks whether a file is present in the store.
func Exists(store Store, name string) (bool, error) {
	names, err := store.List()
	if err != nil {
		return false, errors.Trace(err)
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// trimPrefix converts an object key into a file name relative to prefix.
func trimPrefix(key, prefix string) string {
	name := strings.TrimPrefix(key, prefix)
	return strings.TrimPrefix(name, "/")
}
