// Package artifacts provides content-addressed storage for candidate script
// blobs. Keys are "sha256:<hex>"; a blob's key is always derivable from its
// bytes, so stores are idempotent and verification is a re-hash.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// HashPrefix is the scheme prefix of every content hash.
const HashPrefix = "sha256:"

var (
	// ErrNotFound is returned when no blob exists under the hash.
	ErrNotFound = errors.New("artifacts: not found")
	// ErrHashMismatch is returned when fetched bytes do not hash to the
	// expected content hash.
	ErrHashMismatch = errors.New("artifacts: content hash mismatch")
)

// Store is content-addressed blob storage.
type Store interface {
	// Put persists data and returns its content hash.
	Put(ctx context.Context, data []byte) (string, error)
	// Get retrieves data by content hash.
	Get(ctx context.Context, hash string) ([]byte, error)
	// Exists reports whether a blob exists under the hash.
	Exists(ctx context.Context, hash string) (bool, error)
}

// HashBytes returns the content hash of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// parseHash validates "sha256:<hex>" and returns the hex part.
func parseHash(hash string) (string, error) {
	raw, ok := strings.CutPrefix(hash, HashPrefix)
	if !ok {
		return "", fmt.Errorf("artifacts: invalid hash format: %s", hash)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("artifacts: invalid hash hex: %w", err)
	}
	return raw, nil
}

// FileStore is a filesystem-backed Store. Blobs land as
// <dir>/<hex>.blob via write-to-temp-then-rename.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates the store directory if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: ensure dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Put writes data under its content hash. Re-putting existing content is a
// no-op.
func (s *FileStore) Put(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := HashBytes(data)
	raw := hash[len(HashPrefix):]
	path := filepath.Join(s.baseDir, raw+".blob")

	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("artifacts: write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("artifacts: commit blob: %w", err)
	}
	return hash, nil
}

// Get reads the blob under hash.
func (s *FileStore) Get(_ context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := parseHash(hash)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.baseDir, raw+".blob"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
		}
		return nil, fmt.Errorf("artifacts: open blob: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Exists reports whether a blob exists under hash.
func (s *FileStore) Exists(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := parseHash(hash)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(s.baseDir, raw+".blob"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("artifacts: stat blob: %w", err)
}
