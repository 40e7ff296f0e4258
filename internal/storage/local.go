package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage implements Storage interface using local filesystem
type LocalStorage struct {
	baseDir string
	baseURL string
}

// NewLocalStorage creates a new LocalStorage instance. Public URLs are
// built as {baseURL}/{bucket}/{key}.
func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	return &LocalStorage{baseDir: abs, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir returns the directory files are written to.
func (s *LocalStorage) Dir() string {
	return s.baseDir
}

func (s *LocalStorage) path(bucket, key string) (string, error) {
	p := filepath.Join(s.baseDir, bucket, filepath.FromSlash(key))
	// Verify the path is within our base directory
	if !strings.HasPrefix(p, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid file path: must be within storage directory")
	}
	return p, nil
}

func (s *LocalStorage) Put(ctx context.Context, bucket, key, contentType string, data []byte) (string, error) {
	p, err := s.path(bucket, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("failed to create bucket directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		os.Remove(p) // Clean up on error
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return s.baseURL + "/" + url.PathEscape(bucket) + "/" + key, nil
}

func (s *LocalStorage) Delete(ctx context.Context, bucket, key string) error {
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
