package storage

import (
	"context"
	"errors"
	"io"
)

// ErrTooLarge is returned when an upload exceeds the configured size limit.
var ErrTooLarge = errors.New("file exceeds maximum size")

// FileStorage abstracts file persistence for uploaded import files.
type FileStorage interface {
	// Save persists file content under folder/fileID and returns the storage path.
	Save(ctx context.Context, folder, fileID, filename string, reader io.Reader) (storagePath string, err error)
	// Open returns a reader for the stored file.
	Open(ctx context.Context, storagePath string) (io.ReadCloser, error)
	// Delete removes the file from storage.
	Delete(ctx context.Context, storagePath string) error
}
