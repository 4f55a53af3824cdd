// Package media stores uploaded assets (featured images) in S3-compatible
// object storage.
package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"commons/api/internal/util"
)

const maxUploadSize = 10 << 20 // 10 MiB

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the externally reachable base for stored objects,
	// e.g. https://cdn.example.org/commons-media.
	PublicURL string
}

type Service struct {
	client *minio.Client
	config Config
}

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func NewService(ctx context.Context, config Config) (*Service, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", config.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", config.Bucket, err)
		}
	}

	return &Service{client: client, config: config}, nil
}

// UploadImage stores an image under the content item's prefix and returns its
// public URL. The content type must be one of the allowed image types.
func (s *Service) UploadImage(ctx context.Context, contentID, contentType string, r io.Reader, size int64) (string, error) {
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported image type %q", contentType)
	}
	if size <= 0 || size > maxUploadSize {
		return "", fmt.Errorf("image size must be between 1 byte and %d bytes", maxUploadSize)
	}

	objectName := path.Join("content", contentID, util.NewID("img")+ext)
	_, err := s.client.PutObject(ctx, s.config.Bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return s.publicURL(objectName), nil
}

// Remove deletes a stored object given the public URL UploadImage returned.
func (s *Service) Remove(ctx context.Context, publicURL string) error {
	base := strings.TrimSuffix(s.config.PublicURL, "/") + "/"
	objectName := strings.TrimPrefix(publicURL, base)
	if objectName == publicURL {
		return fmt.Errorf("url %q does not belong to this bucket", publicURL)
	}
	if err := s.client.RemoveObject(ctx, s.config.Bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", objectName, err)
	}
	return nil
}

func (s *Service) publicURL(objectName string) string {
	return strings.TrimSuffix(s.config.PublicURL, "/") + "/" + objectName
}
