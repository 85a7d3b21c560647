package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds S3/MinIO media store configuration
type S3Config struct {
	Endpoint        string // e.g., "http://localhost:9000" for MinIO
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	CacheDir        string // Local directory for resolved media files
}

// MediaStore resolves opaque media references to local file paths by
// downloading objects from S3-compatible storage into a local cache.
// The orchestrator passes mediaRef through untouched.
type MediaStore struct {
	client   *s3.Client
	bucket   string
	cacheDir string
}

// NewMediaStore creates a new S3-backed media store
func NewMediaStore(cfg S3Config) (*MediaStore, error) {
	client := s3.New(s3.Options{
		Region:       cfg.Region,
		BaseEndpoint: aws.String(cfg.Endpoint),
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		UsePathStyle: true, // Required for MinIO
	})

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "postpilot-media")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media cache dir: %w", err)
	}

	return &MediaStore{
		client:   client,
		bucket:   cfg.Bucket,
		cacheDir: cacheDir,
	}, nil
}

// Resolve downloads the object behind mediaRef into the local cache and
// returns its path. A previously resolved ref is served from the cache.
func (m *MediaStore) Resolve(ctx context.Context, mediaRef string) (string, error) {
	if mediaRef == "" {
		return "", fmt.Errorf("empty media reference")
	}

	localPath := m.cachePath(mediaRef)
	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	}

	obj, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(mediaRef),
	})
	if err != nil {
		return "", fmt.Errorf("fetching media object: %w", err)
	}
	defer obj.Body.Close()

	// Write through a temp file so partial downloads never enter the cache.
	tmp, err := os.CreateTemp(m.cacheDir, "download-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := io.Copy(tmp, obj.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("downloading media: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), localPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("moving media into cache: %w", err)
	}

	return localPath, nil
}

// StoreInput represents a media object to upload
type StoreInput struct {
	Reader      io.Reader
	ContentType string
	Size        int64
	Filename    string
}

// Store uploads a media object and returns the mediaRef posts carry. Object
// keys are date-partitioned with a random prefix so filenames never collide.
func (m *MediaStore) Store(ctx context.Context, in StoreInput) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating object key: %w", err)
	}
	key := fmt.Sprintf("%s/%s-%s",
		time.Now().UTC().Format("2006/01/02"),
		hex.EncodeToString(buf),
		path.Base(in.Filename),
	)

	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          in.Reader,
		ContentType:   aws.String(in.ContentType),
		ContentLength: aws.Int64(in.Size),
	})
	if err != nil {
		return "", fmt.Errorf("uploading media object: %w", err)
	}

	return key, nil
}

// Evict removes a resolved media file from the local cache.
func (m *MediaStore) Evict(mediaRef string) error {
	err := os.Remove(m.cachePath(mediaRef))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("evicting cached media: %w", err)
	}
	return nil
}

// cachePath maps a media ref to a stable local filename, keeping the
// original extension so the automation worker can sniff the media type.
func (m *MediaStore) cachePath(mediaRef string) string {
	sum := sha256.Sum256([]byte(mediaRef))
	name := hex.EncodeToString(sum[:16]) + path.Ext(mediaRef)
	return filepath.Join(m.cacheDir, name)
}
