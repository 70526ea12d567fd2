package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Object describes a stored blob by its opaque locator.
type Object struct {
	Locator    string `json:"locator"`
	StoredName string `json:"storedName"`
}

// ObjectStore is the gateway contract for blob storage. Delete is idempotent:
// removing an absent locator is not an error.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, suggestedName, mimeType string) (Object, error)
	Delete(ctx context.Context, locator string) error
	Open(locator string) (*os.File, error)
}

// LocalObjectStore persists blobs on disk under a base directory.
type LocalObjectStore struct {
	baseDir string
}

// NewLocalObjectStore ensures the base directory exists and returns a handle.
func NewLocalObjectStore(baseDir string) (*LocalObjectStore, error) {
	if baseDir == "" {
		baseDir = "./blobs"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &LocalObjectStore{baseDir: baseDir}, nil
}

// Upload writes the bytes under a generated locator derived from the
// suggested name. The locator is stable and opaque to callers.
func (s *LocalObjectStore) Upload(ctx context.Context, data []byte, suggestedName, mimeType string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, fmt.Errorf("upload cancelled: %w", err)
	}
	if len(data) == 0 {
		return Object{}, fmt.Errorf("no bytes to upload")
	}
	locator := generateLocator(suggestedName, mimeType)
	path := s.resolve(locator)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Object{}, fmt.Errorf("prepare blob directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Object{}, fmt.Errorf("write blob: %w", err)
	}
	return Object{Locator: locator, StoredName: filepath.Base(locator)}, nil
}

// Delete removes a stored blob if present.
func (s *LocalObjectStore) Delete(ctx context.Context, locator string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete cancelled: %w", err)
	}
	path := s.resolve(locator)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Open returns a read-only handle for the stored blob.
func (s *LocalObjectStore) Open(locator string) (*os.File, error) {
	file, err := os.Open(s.resolve(locator))
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return file, nil
}

// Path exposes the underlying absolute path (useful for debugging).
func (s *LocalObjectStore) Path(locator string) string {
	return s.resolve(locator)
}

func (s *LocalObjectStore) resolve(locator string) string {
	// Locators never escape the base dir.
	cleaned := filepath.Clean("/" + locator)
	return filepath.Join(s.baseDir, cleaned)
}

func generateLocator(suggestedName, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(suggestedName))
	if ext == "" {
		ext = mimeExtension(mimeType)
	}
	if ext == "" {
		ext = ".bin"
	}
	now := time.Now().UTC()
	return fmt.Sprintf("%s/%d_%s%s", now.Format("2006/01"), now.Unix(), randomSuffix(), ext)
}

func mimeExtension(mime string) string {
	switch strings.ToLower(mime) {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "video/mp4":
		return ".mp4"
	case "application/zip":
		return ".zip"
	case "text/plain":
		return ".txt"
	default:
		return ""
	}
}

func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
