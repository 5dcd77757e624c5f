// Package archive stores gzip-compressed snapshots of fetched review pages
// so a scoring run can be audited after the live page has changed.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Config contains filesystem archive configuration
type Config struct {
	BasePath string // Base directory for all stored snapshots
}

// DefaultConfig returns default archive configuration
func DefaultConfig() Config {
	return Config{
		BasePath: "./archive",
	}
}

// FilesystemArchive writes snapshots beneath a local base directory
type FilesystemArchive struct {
	config Config
}

// New creates a new FilesystemArchive instance
func New(config Config) (*FilesystemArchive, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base archive directory: %w", err)
	}

	return &FilesystemArchive{
		config: config,
	}, nil
}

// SaveSnapshot compresses the page body and writes it to the filesystem
// under snapshots/YYYY/MM/. Returns the relative file path from the base
// archive directory.
func (a *FilesystemArchive) SaveSnapshot(ctx context.Context, asin string, body []byte, fetchedAt time.Time) (string, error) {
	ts := fetchedAt.UTC()
	year := fmt.Sprintf("%04d", ts.Year())
	month := fmt.Sprintf("%02d", int(ts.Month()))

	dirPath := filepath.Join(a.config.BasePath, "snapshots", year, month)

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	stamp := ts.Format("20060102-150405")
	filename := fmt.Sprintf("%s-%s.html.gz", asin, stamp)
	filePath := filepath.Join(dirPath, filename)

	// Check if file already exists and make unique if necessary
	counter := 1
	for fileExists(filePath) {
		filename = fmt.Sprintf("%s-%s-%d.html.gz", asin, stamp, counter)
		filePath = filepath.Join(dirPath, filename)
		counter++
	}

	compressed, err := compressSnapshot(body)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(filePath, compressed, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot file: %w", err)
	}

	// Return relative path from base archive directory
	relPath, err := filepath.Rel(a.config.BasePath, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get relative path: %w", err)
	}

	return relPath, nil
}

// ReadSnapshot reads and decompresses a snapshot from the filesystem
func (a *FilesystemArchive) ReadSnapshot(ctx context.Context, relPath string) ([]byte, error) {
	fullPath := filepath.Join(a.config.BasePath, relPath)

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
	}

	return data, nil
}

// GetFullPath returns the full filesystem path for a relative path
func (a *FilesystemArchive) GetFullPath(relPath string) string {
	return filepath.Join(a.config.BasePath, relPath)
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// compressSnapshot gzips a page body for storage
func compressSnapshot(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	return buf.Bytes(), nil
}
