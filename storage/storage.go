package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"lingotutor/logger"
)

// BlobStore keeps generated media (banners, synthesized speech) under stable
// public URLs.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	// DeletePrefix removes every object whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// BannerKey names the stored banner of a quiz. Every banner of the quiz
// shares BannerPrefix whatever its extension.
func BannerKey(quizID uuid.UUID, contentType string) string {
	return BannerPrefix(quizID) + Extension(contentType)
}

func BannerPrefix(quizID uuid.UUID) string {
	return "banners/" + quizID.String()
}

func AudioKey(threadID uuid.UUID) string {
	return AudioPrefix(threadID) + uuid.NewString() + ".mp3"
}

// AudioPrefix holds every synthesized reply of a thread.
func AudioPrefix(threadID uuid.UUID) string {
	return "audio/" + threadID.String() + "/"
}

type GCSStore struct {
	log           *logger.Logger
	client        *storage.Client
	bucket        string
	publicBaseURL string
}

// NewGCSStore returns nil, nil when no bucket is configured so callers can
// treat object storage as optional.
func NewGCSStore(ctx context.Context, log *logger.Logger, bucket, publicBaseURL string) (*GCSStore, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		log.Info("GCS_BUCKET not set, generated media will not be re-hosted")
		return nil, nil
	}

	opts := ClientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog := log.With("service", "GCSStore")
	serviceLog.Info("Object storage initialized", "bucket", bucket, "public_base_url", publicBaseURL)
	return &GCSStore{
		log:           serviceLog,
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
	}, nil
}

// ClientOptionsFromEnv accepts either inline credentials JSON or a path to a
// credentials file.
func ClientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func (s *GCSStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	s.log.Debug("Stored object", "key", key, "bytes", len(data))
	return PublicURL(s.publicBaseURL, s.bucket, key), nil
}

func (s *GCSStore) DeletePrefix(ctx context.Context, prefix string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	prefix = strings.TrimLeft(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return fmt.Errorf("refusing to delete with an empty prefix")
	}
	bucket := s.client.Bucket(s.bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	deleted := 0
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to list GCS objects under %q: %w", prefix, err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", attrs.Name, s.bucket, err)
		}
		deleted++
	}
	s.log.Debug("Deleted objects", "prefix", prefix, "count", deleted)
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func PublicURL(baseURL, bucket, key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if baseURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(baseURL, "/"), key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, key)
}

// Extension maps the content types this service stores to file suffixes.
func Extension(contentType string) string {
	switch contentType {
	case "audio/mpeg":
		return ".mp3"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
