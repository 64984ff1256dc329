package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const maxDrawingBytes int64 = 10 * 1024 * 1024

// drawings are normalized to a square canvas before upload so the
// stylization and segmentation collaborators receive a predictable size.
const (
	drawingWidth  = 400
	drawingHeight = 400
)

// FileStorage provides helpers for storing character files (drawings, part
// images, rig descriptors, rendered animations, voice audio) in MinIO/S3.
type FileStorage struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewFileStorageFromEnv initialises FileStorage using MINIO_* environment variables.
func NewFileStorageFromEnv() (*FileStorage, error) {
	endpoint := strings.TrimSpace(os.Getenv("MINIO_ENDPOINT"))
	accessKey := strings.TrimSpace(os.Getenv("MINIO_ACCESS_KEY"))
	secretKey := strings.TrimSpace(os.Getenv("MINIO_SECRET_KEY"))
	bucket := strings.TrimSpace(os.Getenv("MINIO_BUCKET"))
	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, nil
	}

	useSSL := strings.EqualFold(strings.TrimSpace(os.Getenv("MINIO_USE_SSL")), "true")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket: %w", err)
		}
	}

	publicURL := strings.TrimSpace(os.Getenv("MINIO_PUBLIC_URL"))
	if publicURL == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s", scheme, endpoint)
	}

	return &FileStorage{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

// UploadDrawing normalizes an uploaded drawing to a 400x400 PNG and stores it
// beneath upload/. The returned URL is the stable public reference recorded on
// the character row.
func (s *FileStorage) UploadDrawing(ctx context.Context, fileHeader *multipart.FileHeader) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("storage: file storage not configured")
	}
	if fileHeader == nil {
		return "", errors.New("storage: drawing file not provided")
	}
	if fileHeader.Size > 0 && fileHeader.Size > maxDrawingBytes {
		return "", fmt.Errorf("storage: drawing size exceeds %d bytes", maxDrawingBytes)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("storage: open drawing: %w", err)
	}
	defer src.Close()

	img, err := imaging.Decode(io.LimitReader(src, maxDrawingBytes+1), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("storage: decode drawing: %w", err)
	}

	resized := imaging.Resize(img, drawingWidth, drawingHeight, imaging.Lanczos)

	var buffer bytes.Buffer
	if err := imaging.Encode(&buffer, resized, imaging.PNG); err != nil {
		return "", fmt.Errorf("storage: encode drawing: %w", err)
	}

	return s.UploadBytes(ctx, buffer.Bytes(), "image/png", ".png", "upload")
}

// UploadBytes stores raw content under <segments...>/<uuid><ext> and returns its public URL.
func (s *FileStorage) UploadBytes(ctx context.Context, data []byte, contentType, ext string, pathSegments ...string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("storage: file storage not configured")
	}
	if len(data) == 0 {
		return "", errors.New("storage: no content to upload")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectName := buildObjectName(pathSegments, ext)

	uploadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(uploadCtx, s.bucket, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=604800",
	})
	if err != nil {
		return "", fmt.Errorf("storage: upload object: %w", err)
	}

	return s.buildPublicURL(objectName), nil
}

// UploadLocalFile streams a file from the local filesystem into the bucket.
// The original file name is kept as a suffix so operators can recognise the object.
func (s *FileStorage) UploadLocalFile(ctx context.Context, localPath, contentType string, pathSegments ...string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("storage: file storage not configured")
	}

	base := filepath.Base(localPath)
	if base == "." || base == string(os.PathSeparator) {
		return "", fmt.Errorf("storage: invalid local path %q", localPath)
	}

	segments := append([]string{}, pathSegments...)
	objectName := buildObjectName(segments, "")
	objectName = fmt.Sprintf("%s_%s", objectName, base)

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err := s.client.FPutObject(uploadCtx, s.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("storage: upload local file: %w", err)
	}

	return s.buildPublicURL(objectName), nil
}

// Remove deletes the object pointed to by the provided URL/object path.
func (s *FileStorage) Remove(ctx context.Context, fileURL string) error {
	if s == nil || s.client == nil {
		return nil
	}
	objectName, ok := s.objectNameFromURL(fileURL)
	if !ok {
		return nil
	}

	removeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.client.RemoveObject(removeCtx, s.bucket, objectName, minio.RemoveObjectOptions{})
}

// PresignedURL returns a temporary URL for accessing the provided object.
func (s *FileStorage) PresignedURL(ctx context.Context, raw string, expiry time.Duration) (string, error) {
	if s == nil || s.client == nil {
		return strings.TrimSpace(raw), nil
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}

	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	objectName, ok := s.objectNameFromURL(trimmed)
	if !ok {
		if !strings.Contains(trimmed, "://") {
			objectName = strings.TrimPrefix(trimmed, "/")
			objectName = strings.TrimPrefix(objectName, s.bucket+"/")
		}
	}
	if objectName == "" {
		return trimmed, nil
	}

	presignCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	presigned, err := s.client.PresignedGetObject(presignCtx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", err
	}

	return presigned.String(), nil
}

func buildObjectName(pathSegments []string, ext string) string {
	cleaned := make([]string, 0, len(pathSegments)+1)
	for _, segment := range pathSegments {
		trimmed := strings.Trim(segment, "/")
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	cleaned = append(cleaned, uuid.NewString()+ext)
	return path.Join(cleaned...)
}

func (s *FileStorage) buildPublicURL(objectName string) string {
	base := strings.TrimSuffix(s.publicURL, "/")
	object := strings.TrimPrefix(objectName, "/")
	return fmt.Sprintf("%s/%s/%s", base, s.bucket, object)
}

func (s *FileStorage) objectNameFromURL(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	base := strings.TrimSuffix(s.publicURL, "/")
	if base != "" && strings.HasPrefix(trimmed, base) {
		candidate := strings.TrimPrefix(trimmed, base)
		candidate = strings.TrimPrefix(candidate, "/")
		candidate = strings.TrimPrefix(candidate, s.bucket+"/")
		candidate = strings.TrimPrefix(candidate, "/")
		if candidate != "" {
			return candidate, true
		}
	}

	target, err := url.Parse(trimmed)
	if err != nil {
		return "", false
	}
	baseURL, err := url.Parse(base)
	if err == nil && baseURL.Host != "" && baseURL.Host == target.Host {
		candidate := strings.TrimPrefix(target.Path, "/")
		candidate = strings.TrimPrefix(candidate, s.bucket+"/")
		candidate = strings.TrimPrefix(candidate, "/")
		if candidate != "" {
			return candidate, true
		}
	}

	if !strings.Contains(trimmed, "://") {
		candidate := strings.TrimPrefix(trimmed, "/")
		candidate = strings.TrimPrefix(candidate, s.bucket+"/")
		candidate = strings.TrimPrefix(candidate, "/")
		if candidate != "" {
			return candidate, true
		}
	}

	return "", false
}
