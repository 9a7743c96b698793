// Package storage provides object storage for call audio.
//
// This package defines a Storage interface with implementations for:
// - LocalStorage: File system storage for development
// - R2Storage: Cloudflare R2 (S3-compatible) storage for production
//
// The processing pipeline archives caller-supplied recordings here and the
// resulting URL is what gets persisted on the recording row.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"
)

// Storage defines the interface for audio object storage.
//
// All methods are context-aware for timeout and cancellation support.
type Storage interface {
	// Put stores data at the specified key with the given options.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get retrieves the data at the specified key.
	// Returns the data as an io.ReadCloser (caller must close), object
	// metadata, and an error. Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at the specified key.
	// This operation is idempotent.
	Delete(ctx context.Context, key string) error

	// URL returns a URL for accessing the object at the specified key.
	// For public objects, this is a permanent URL; otherwise, a presigned
	// URL valid for the specified duration.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists checks if an object exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType specifies the MIME type of the object.
	// If empty, it will be detected from the key's extension.
	ContentType string

	// MaxSize specifies the maximum allowed size in bytes.
	// If the data exceeds this size, ErrTooLarge is returned.
	// A value of 0 means no limit.
	MaxSize int64

	// Overwrite allows replacing an existing object at the same key.
	// Audio archival sets this: re-processing a redelivered message
	// rewrites the same bytes at the same key.
	Overwrite bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string    // Object key/path
	Size         int64     // Size in bytes
	ContentType  string    // MIME type
	LastModified time.Time // Last modification time
	ETag         string    // Entity tag (if available)
}

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory where files are stored.
	BasePath string

	// BaseURL is the public URL prefix for accessing files.
	// Example: "http://localhost:8080/files"
	BaseURL string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	// AccountID is your Cloudflare account ID.
	AccountID string

	// AccessKeyID is the R2 API access key ID.
	AccessKeyID string

	// SecretAccessKey is the R2 API secret key.
	SecretAccessKey string

	// BucketName is the name of the R2 bucket to use.
	BucketName string

	// PublicURL is the public URL for the bucket (if using a custom
	// domain). If empty, presigned URLs are used for all access.
	PublicURL string

	// Region is the AWS region to use (required by AWS SDK).
	// Default: "auto"
	Region string
}

// Provider constants
const (
	// ProviderLocal identifies the local filesystem storage provider.
	ProviderLocal = "local"

	// ProviderR2 identifies the Cloudflare R2 storage provider.
	ProviderR2 = "r2"
)

// CallAudioKey generates the storage key for an archived call recording.
// The extension is taken from the source URL path (query string stripped)
// so playback tooling can infer the codec; unknown sources default to .wav.
//
// Format: calls/{ownerID}/{callID}/audio{ext}
func CallAudioKey(ownerID, callID, sourceURL string) string {
	ext := ".wav"
	if u, err := url.Parse(sourceURL); err == nil {
		if e := path.Ext(u.Path); e != "" && len(e) <= 5 {
			ext = e
		}
	}
	return fmt.Sprintf("calls/%s/%s/audio%s", ownerID, callID, ext)
}
