// Package objstore provides object storage abstractions for snapshot
// archives. Exports are staged as local files and then handed to a Store,
// so the datastore itself never depends on where snapshots end up.
package objstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/GFPc/GFPS-AW-Server/internal/config"
)

// Common errors for store operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// Store abstracts object storage for snapshot archives.
// Implementations include S3 and the local filesystem.
type Store interface {
	// Upload uploads a file to object storage.
	// localPath is the path to the local file to upload.
	// objectPath is the destination path in object storage.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download downloads a file from object storage.
	// objectPath is the source path in object storage.
	// localPath is the destination path on the local filesystem.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object from storage. Deleting an absent object
	// is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// FromConfig builds the snapshot store selected by the export configuration.
func FromConfig(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Export.Sink {
	case "", "local":
		return NewLocalStore(cfg.Export.Dir)
	case "s3":
		return NewS3Store(ctx, cfg.Export.S3.Bucket, S3Config{
			Region:       cfg.Export.S3.Region,
			Endpoint:     cfg.Export.S3.Endpoint,
			UsePathStyle: cfg.Export.S3.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("objstore: unknown export sink %q", cfg.Export.Sink)
	}
}
