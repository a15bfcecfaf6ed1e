package store

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ayush/medical-report-worker/internal/models"
)

const (
	contentTypeJSON     = "application/json"
	contentTypeMarkdown = "text/markdown; charset=utf-8"
)

// MinioStore keeps rendered report documents in object storage.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

// ArtifactKeys returns the object keys for a report's JSON and markdown copies.
func ArtifactKeys(userID, reportID string) models.Artifacts {
	prefix := fmt.Sprintf("reports/%s/%s", userID, reportID)
	return models.Artifacts{
		JSONKey:     prefix + ".json",
		MarkdownKey: prefix + ".md",
	}
}

// UploadReport stores both rendered documents. On a partial failure the
// uploaded object is removed and empty keys are returned.
func (s *MinioStore) UploadReport(ctx context.Context, userID, reportID string, files models.GeneratedFiles) (models.Artifacts, error) {
	keys := ArtifactKeys(userID, reportID)
	if err := s.Upload(ctx, keys.JSONKey, []byte(files.JSON), contentTypeJSON); err != nil {
		return models.Artifacts{}, fmt.Errorf("minio upload %s: %w", keys.JSONKey, err)
	}
	if err := s.Upload(ctx, keys.MarkdownKey, []byte(files.Markdown), contentTypeMarkdown); err != nil {
		_ = s.Remove(ctx, keys.JSONKey)
		return models.Artifacts{}, fmt.Errorf("minio upload %s: %w", keys.MarkdownKey, err)
	}
	return keys, nil
}

// RemoveReport deletes both documents. Missing objects are not an error.
func (s *MinioStore) RemoveReport(ctx context.Context, a models.Artifacts) error {
	for _, key := range []string{a.JSONKey, a.MarkdownKey} {
		if key == "" {
			continue
		}
		if err := s.Remove(ctx, key); err != nil {
			return fmt.Errorf("minio remove %s: %w", key, err)
		}
	}
	return nil
}

// Upload stores bytes under the given object key.
func (s *MinioStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// Download retrieves the object bytes and content type.
func (s *MinioStore) Download(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", err
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, "", err
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", err
	}
	return data, info.ContentType, nil
}

func (s *MinioStore) Remove(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}
