package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/itsdivyanshjha/meta-data-tag-generator/config"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/storage/minio"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/storage/s3"
)

type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
	StorageTypeNone  StorageType = "none"
)

// Storage is an object store holding source PDFs and exported results.
type Storage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// Get returns models.ErrObjectNotFound for missing keys.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// NewStorage builds the configured backend. StorageTypeNone yields nil.
func NewStorage(ctx context.Context, storageType StorageType, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, config.GetS3Config(), log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, config.GetMinioConfig(), log)
	case StorageTypeNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
