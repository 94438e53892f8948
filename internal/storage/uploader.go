package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/visionfy/visionfy/internal/config"
)

// BlobStore persists bytes and returns a stable public URL for them.
type BlobStore interface {
	Put(ctx context.Context, data []byte, nameHint string) (string, error)
}

// Uploader stores generated assets in an S3-compatible bucket with public-read ACL.
type Uploader struct {
	cfg    config.StorageConfig
	client *s3.Client
	now    func() time.Time
}

func NewUploader(cfg config.StorageConfig) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("s3 public base url is required")
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return &Uploader{
		cfg:    cfg,
		client: s3.New(options),
		now:    time.Now,
	}, nil
}

// Put uploads data under a key derived from nameHint and returns its public URL.
func (u *Uploader) Put(ctx context.Context, data []byte, nameHint string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no data to upload")
	}

	contentType := http.DetectContentType(data)
	key := u.generateKey(nameHint, contentType)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	slog.Debug("asset uploaded", "key", key, "bytes", len(data), "content_type", contentType)
	return strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + key, nil
}

func (u *Uploader) generateKey(nameHint, contentType string) string {
	ext := extensionFromContentType(contentType)
	now := u.now().UTC()
	prefix := strings.Trim(u.cfg.Prefix, "/")
	hint := strings.Trim(nameHint, "/")
	if hint == "" {
		hint = "generated"
	}
	return path.Join(prefix, hint, fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day()), uuid.NewString()+ext)
}

func extensionFromContentType(contentType string) string {
	ct := strings.ToLower(contentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]`)

// SlugHint builds a name hint from a folder and the first 20 characters of a prompt.
func SlugHint(folder, prompt string) string {
	runes := []rune(strings.ToLower(prompt))
	if len(runes) > 20 {
		runes = runes[:20]
	}
	slug := nonSlug.ReplaceAllString(string(runes), "-")
	if slug == "" {
		return folder
	}
	return folder + "/" + slug
}
