package storage

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/templui/fintrack/internal/config"
)

var (
	ErrNotFound    = errors.New("attachment file not found")
	ErrInvalidName = errors.New("invalid attachment file name")
)

// Storage keeps attachment files in a flat namespace keyed by file name.
// It knows nothing about records; writing an existing name overwrites it.
type Storage interface {
	// Save stores data under name, replacing any previous content
	Save(name string, data []byte) error

	// Read returns the content stored under name or ErrNotFound
	Read(name string) ([]byte, error)

	// Delete removes name; deleting a missing file is not an error
	Delete(name string) error
}

// New creates the storage backend selected by STORAGE_DRIVER
func New(c *config.Config) (Storage, error) {
	if c.StorageDriver == config.StorageDriverS3 {
		slog.Info("initializing S3 storage",
			"bucket", c.S3Bucket,
			"region", c.S3Region,
			"endpoint", c.S3Endpoint,
		)
		return NewS3Storage(S3Config{
			Region:    c.S3Region,
			Bucket:    c.S3Bucket,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Endpoint:  c.S3Endpoint,
		})
	}

	slog.Info("initializing local storage", "path", c.UploadsPath)
	return NewLocalStorage(c.UploadsPath)
}

// checkName rejects anything that is not a single plain path element
func checkName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return ErrInvalidName
	}
	return nil
}
