// Package objectstore persists uploaded document blobs on the local
// filesystem. Paths are handed out by Save and stored on the document
// record, so callers never construct them.
package objectstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/docchat/backend/pkg/logger"
)

type DiskStore struct {
	baseDir string
}

func NewDiskStore(baseDir string) (*DiskStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create object dir: %w", err)
	}

	logger.Info("Disk object store initialized", zap.String("dir", baseDir))

	return &DiskStore{baseDir: baseDir}, nil
}

func (s *DiskStore) Save(path string, data []byte) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create object subdir: %w", err)
	}

	if err := os.WriteFile(full, data, 0644); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}

	return nil
}

func (s *DiskStore) Download(path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	return data, nil
}

// Delete removes the object. A missing object is not an error, so the
// document cascade delete can be retried safely.
func (s *DiskStore) Delete(path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	err = os.Remove(full)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

func (s *DiskStore) resolve(path string) (string, error) {
	clean := filepath.Clean(path)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object path: %s", path)
	}
	return filepath.Join(s.baseDir, clean), nil
}
