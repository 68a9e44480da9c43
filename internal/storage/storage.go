// Package storage keeps the original uploaded bytes. Jobs reference blobs
// by key; workers read them back when recognition runs, possibly on another
// machine when S3 backs the store.
package storage

import (
	"context"

	"github.com/ocreceipt/ocreceipt/internal/common"
)

type BlobStore interface {
	Save(ctx context.Context, key string, body []byte, contentType string) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NewFromConfig picks S3 when a bucket is configured, local disk otherwise.
func NewFromConfig(ctx context.Context, cfg common.StorageConfig) (BlobStore, error) {
	if cfg.S3Bucket != "" {
		return NewS3Store(ctx, cfg)
	}
	return NewLocalStore(cfg.UploadsDir), nil
}
