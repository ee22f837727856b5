package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// SpacesConfig contains configuration for Digital Ocean Spaces or any other
// S3-compatible endpoint
type SpacesConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PathPrefix is prepended to every key. Default: "uploads/"
	PathPrefix string
	// PublicURL is the base for object URLs. Default: https://<bucket>.<endpoint>
	PublicURL string
}

// NewSpacesConfigFromEnv reads SPACES_* environment variables. Enabled is
// false when no bucket is configured.
func NewSpacesConfigFromEnv() (cfg SpacesConfig, enabled bool) {
	cfg = SpacesConfig{
		Endpoint:   getEnv("SPACES_ENDPOINT", "nyc3.digitaloceanspaces.com"),
		Region:     getEnv("SPACES_REGION", "us-east-1"),
		Bucket:     os.Getenv("SPACES_BUCKET"),
		AccessKey:  os.Getenv("SPACES_ACCESS_KEY"),
		SecretKey:  os.Getenv("SPACES_SECRET_KEY"),
		PathPrefix: getEnv("SPACES_PATH_PREFIX", "uploads/"),
		PublicURL:  os.Getenv("SPACES_PUBLIC_URL"),
	}
	return cfg, cfg.Bucket != ""
}

// SpacesStore stores uploads in a Spaces bucket
type SpacesStore struct {
	client     *s3.S3
	bucket     string
	pathPrefix string
	publicURL  string
}

// NewSpacesStore creates a Spaces-backed file store
func NewSpacesStore(config SpacesConfig) (*SpacesStore, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("spaces bucket is required")
	}

	sess, err := session.NewSession(&aws.Config{
		Endpoint:    aws.String(config.Endpoint), // e.g., "nyc3.digitaloceanspaces.com"
		Region:      aws.String(config.Region),
		Credentials: credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	prefix := config.PathPrefix
	if prefix == "" {
		prefix = "uploads/"
	}
	publicURL := config.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.%s", config.Bucket, strings.TrimPrefix(config.Endpoint, "https://"))
	}

	return &SpacesStore{
		client:     s3.New(sess),
		bucket:     config.Bucket,
		pathPrefix: prefix,
		publicURL:  strings.TrimRight(publicURL, "/"),
	}, nil
}

// ObjectKey returns the bucket key for key, using a date-based directory
// structure under the path prefix
func (s *SpacesStore) ObjectKey(key string, at time.Time) string {
	return fmt.Sprintf("%s%s/%s", s.pathPrefix, at.UTC().Format("2006-01-02"), key)
}

// Put implements FileStore
func (s *SpacesStore) Put(ctx context.Context, key, contentType string, data []byte) (Object, error) {
	now := time.Now()
	objectKey := s.ObjectKey(key, now)

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
		Metadata: map[string]*string{
			"upload-time": aws.String(now.UTC().Format(time.RFC3339)),
		},
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return Object{}, fmt.Errorf("failed to upload object: %w", err)
	}

	return Object{
		Key:         objectKey,
		ContentType: contentType,
		Size:        int64(len(data)),
		URL:         s.publicURL + "/" + objectKey,
	}, nil
}

// Get implements FileStore. key is the full object key returned by Put.
func (s *SpacesStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	return result.Body, nil
}

// Delete implements FileStore
func (s *SpacesStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
