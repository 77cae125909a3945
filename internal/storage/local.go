package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage stores files on the local filesystem.
type LocalStorage struct {
	basePath string
	maxSize  int64
}

// NewLocalStorage returns a LocalStorage rooted at basePath. A maxSize of 0 disables the limit.
func NewLocalStorage(basePath string, maxSize int64) *LocalStorage {
	return &LocalStorage{basePath: basePath, maxSize: maxSize}
}

func (s *LocalStorage) Save(_ context.Context, folder, fileID, filename string, reader io.Reader) (string, error) {
	dir := filepath.Join(s.basePath, filepath.Base(folder), filepath.Base(fileID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	storagePath := filepath.Join(dir, filepath.Base(filename))
	f, err := os.Create(storagePath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	src := reader
	if s.maxSize > 0 {
		src = io.LimitReader(reader, s.maxSize+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	if s.maxSize > 0 && n > s.maxSize {
		f.Close()
		_ = s.Delete(context.Background(), storagePath)
		return "", ErrTooLarge
	}

	return storagePath, nil
}

func (s *LocalStorage) Open(_ context.Context, storagePath string) (io.ReadCloser, error) {
	f, err := os.Open(storagePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *LocalStorage) Delete(_ context.Context, storagePath string) error {
	if err := os.Remove(storagePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	// Try to remove parent dir (fileID dir) if empty
	dir := filepath.Dir(storagePath)
	_ = os.Remove(dir)
	return nil
}
