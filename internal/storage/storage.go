// Package storage publishes dexcount reports and serialized trees to an
// object store.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/dexcount/pkg/config"
	apperrors "github.com/dexcount/pkg/errors"
)

// Storage is the subset of object storage a count run needs.
type Storage interface {
	// Upload stores the contents of reader under key.
	Upload(ctx context.Context, key string, reader io.Reader) error

	// UploadFile stores a local file under key.
	UploadFile(ctx context.Context, key string, localPath string) error

	// Download opens the object at key. The caller closes it.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns where key can be fetched from.
	GetURL(key string) string
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeNone  StorageType = "none"
	StorageTypeLocal StorageType = "local"
	StorageTypeCOS   StorageType = "cos"
	StorageTypeMinio StorageType = "minio"
)

// NewStorage creates the backend selected by cfg. It returns nil, nil when
// publishing is disabled.
func NewStorage(cfg *config.StorageConfig) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch StorageType(cfg.Type) {
	case StorageTypeLocal:
		return NewLocalStorage(cfg.LocalPath)
	case StorageTypeCOS:
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	case StorageTypeMinio:
		return NewMinioStorage(&MinioConfig{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			AccessKey: cfg.SecretID,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
		})
	default:
		return nil, nil
	}
}

// ValidateConfig validates the storage configuration.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil {
		return apperrors.New(apperrors.CodeConfigError, "storage config is nil")
	}

	switch StorageType(cfg.Type) {
	case "", StorageTypeNone:
		return nil
	case StorageTypeLocal:
		if cfg.LocalPath == "" {
			return apperrors.New(apperrors.CodeConfigError, "local storage path is required")
		}
	case StorageTypeCOS:
		if cfg.Bucket == "" {
			return apperrors.New(apperrors.CodeConfigError, "COS bucket is required")
		}
		if cfg.Region == "" {
			return apperrors.New(apperrors.CodeConfigError, "COS region is required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return apperrors.New(apperrors.CodeConfigError, "COS credentials are required")
		}
	case StorageTypeMinio:
		if cfg.Endpoint == "" {
			return apperrors.New(apperrors.CodeConfigError, "minio endpoint is required")
		}
		if cfg.Bucket == "" {
			return apperrors.New(apperrors.CodeConfigError, "minio bucket is required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return apperrors.New(apperrors.CodeConfigError, "minio credentials are required")
		}
	default:
		return apperrors.Newf(apperrors.CodeConfigError, "unsupported storage type: %s", cfg.Type)
	}
	return nil
}

// RunKey builds the object key for a file produced by a count run:
// <prefix>/<artifact>/<runID>/<file>.
func RunKey(prefix, artifact, runID, file string) string {
	artifact = strings.TrimSuffix(filepath.Base(artifact), filepath.Ext(artifact))
	parts := make([]string, 0, 4)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, artifact, runID, filepath.Base(file))
	return path.Join(parts...)
}

// Publish uploads every local file of a run and returns their URLs keyed by
// the local path. It stops at the first failure.
func Publish(ctx context.Context, st Storage, prefix, artifact, runID string, files []string) (map[string]string, error) {
	urls := make(map[string]string, len(files))
	for _, f := range files {
		key := RunKey(prefix, artifact, runID, f)
		if err := st.UploadFile(ctx, key, f); err != nil {
			return urls, apperrors.Wrap(apperrors.CodeStorageError, fmt.Sprintf("failed to publish %s", filepath.Base(f)), err)
		}
		urls[f] = st.GetURL(key)
	}
	return urls, nil
}
