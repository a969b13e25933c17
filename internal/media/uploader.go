// File: internal/media/uploader.go
package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	cloudstorage "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lingualearn_backend/internal/config"
	"lingualearn_backend/internal/firebase"
)

// Uploader pushes binary content to the external object store and returns a
// public fetch URL. It performs no retries; retry policy belongs to the
// caller.
type Uploader interface {
	UploadImage(ctx context.Context, localPath string) (string, error)
}

// GCSUploader implements Uploader on a Cloud Storage bucket.
type GCSUploader struct {
	bucket     *cloudstorage.BucketHandle
	bucketName string
	folder     string
	logger     *zap.Logger
}

var _ Uploader = (*GCSUploader)(nil)

// NewGCSUploader creates an Uploader for the configured bucket.
func NewGCSUploader(cfg *config.Config, fb *firebase.Service, logger *zap.Logger) *GCSUploader {
	return &GCSUploader{
		bucket:     fb.Bucket(),
		bucketName: cfg.StorageBucket,
		folder:     cfg.AvatarFolder,
		logger:     logger.Named("MediaUploader"),
	}
}

// UploadImage uploads the file at localPath under a unique object name and
// returns its public URL.
func (u *GCSUploader) UploadImage(ctx context.Context, localPath string) (string, error) {
	if u.bucket == nil {
		return "", fmt.Errorf("no storage bucket configured")
	}

	cleanPath := filepath.Clean(localPath)
	src, err := os.Open(cleanPath)
	if err != nil {
		u.logger.Error("Failed to open local image", zap.String("path", cleanPath), zap.Error(err))
		return "", fmt.Errorf("failed to open image %s: %w", cleanPath, err)
	}
	defer src.Close()

	objectName, contentType, err := objectNameFor(u.folder, cleanPath)
	if err != nil {
		u.logger.Error("Rejected image upload", zap.String("path", cleanPath), zap.Error(err))
		return "", err
	}

	w := u.bucket.Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=86400"

	if _, err := io.Copy(w, src); err != nil {
		w.Close()
		u.logger.Error("Failed to stream image to object store", zap.String("object", objectName), zap.Error(err))
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	if err := w.Close(); err != nil {
		u.logger.Error("Failed to finalize image upload", zap.String("object", objectName), zap.Error(err))
		return "", fmt.Errorf("failed to finalize image upload: %w", err)
	}

	url := fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucketName, objectName)
	u.logger.Info("Image uploaded", zap.String("object", objectName), zap.String("url", url))
	return url, nil
}

// objectNameFor builds a unique object name and its content type from the
// local file's extension.
func objectNameFor(folder, localPath string) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(localPath))
	var contentType string
	switch ext {
	case ".jpg", ".jpeg":
		contentType = "image/jpeg"
	case ".png":
		contentType = "image/png"
	case ".gif":
		contentType = "image/gif"
	case ".webp":
		contentType = "image/webp"
	default:
		return "", "", fmt.Errorf("unsupported image type %q", ext)
	}

	name := uuid.New().String() + ext
	if folder != "" {
		name = strings.Trim(folder, "/") + "/" + name
	}
	return name, contentType, nil
}
