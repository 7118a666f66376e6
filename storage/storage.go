// Package storage keeps house images in an S3 bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var ErrNotConfigured = errors.New("Image storage is not configured.")

// ImageStore saves an uploaded image and returns its public URL.
type ImageStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// ImageKey names an uploaded image: houses/<house id>/<random id>.<ext>
func ImageKey(houseID, filename string) string {
	name := uuid.NewString()
	if ext := extension(filename); ext != "" {
		name += "." + ext
	}
	return path.Join("houses", houseID, name)
}

// extension returns what follows the last dot of fileName, lowercased.
func extension(fileName string) string {
	for i := len(fileName) - 1; i >= 0; i-- {
		if fileName[i] == '.' {
			return strings.ToLower(fileName[i+1:])
		}
		if fileName[i] == '/' {
			break
		}
	}
	return ""
}

type S3 struct {
	bucket   string
	uploader *manager.Uploader
}

// NewS3 picks up credentials the usual AWS way (env, shared config, instance role).
func NewS3(ctx context.Context, region, bucket string) (*S3, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3{bucket: bucket, uploader: manager.NewUploader(client)}, nil
}

func (s *S3) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	result, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return result.Location, nil
}

// Disabled is used when no bucket is configured.
type Disabled struct{}

func (Disabled) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	return "", ErrNotConfigured
}

// Memory keeps objects in a map. Meant for tests.
type Memory struct {
	BaseURL string

	mu      sync.Mutex
	objects map[string][]byte
}

func (m *Memory) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data

	return strings.TrimRight(m.BaseURL, "/") + "/" + key, nil
}

func (m *Memory) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}
