package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend stores each document as a JSON file under
// basePath/<namespace>/<id>.json.
type FileBackend struct {
	basePath string
	mu       sync.RWMutex
}

// NewFileBackend creates a new file-based backend.
func NewFileBackend(basePath string) *FileBackend {
	return &FileBackend{basePath: basePath}
}

func (f *FileBackend) docPath(namespace, id string) string {
	return filepath.Join(f.basePath, namespace, id+".json")
}

func (f *FileBackend) Get(ctx context.Context, namespace, id string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.docPath(namespace, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("failed to read document file: %w", err)
	}
	return data, nil
}

// Put writes through a temporary file and renames it into place so readers
// never observe a partial document.
func (f *FileBackend) Put(ctx context.Context, namespace, id string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Join(f.basePath, namespace)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	path := f.docPath(namespace, id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write document file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace document file: %w", err)
	}
	return nil
}

func (f *FileBackend) Delete(ctx context.Context, namespace, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.docPath(namespace, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete document file: %w", err)
	}
	return nil
}

func (f *FileBackend) List(ctx context.Context, namespace string) ([][]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	dir := filepath.Join(f.basePath, namespace)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return [][]byte{}, nil
		}
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var docs [][]byte
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue // Skip files we can't read
		}
		docs = append(docs, data)
	}
	return docs, nil
}

func (f *FileBackend) Close() error { return nil }
