package persist

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// thumbnailTimeout bounds the download plus upload of one thumbnail.
const thumbnailTimeout = 30 * time.Second

// maxThumbnailBytes caps what we are willing to copy from the source.
const maxThumbnailBytes = 10 << 20

// S3Config configures the thumbnail bucket.
//
// Credentials follow the AWS SDK v2 default chain unless explicit keys
// are set. For S3-compatible stores set Endpoint and ForcePathStyle.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool

	// PublicBaseURL, when set, is prepended to the object key to form
	// the stored thumbnail URL. Empty means the bare key is stored.
	PublicBaseURL string
}

// s3Putter is the slice of the S3 client the store needs.
type s3Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ThumbnailStore copies recipe thumbnails into object storage.
type ThumbnailStore struct {
	client s3Putter
	http   *http.Client
	cfg    S3Config
}

// NewThumbnailStore builds the S3 client and returns the store.
func NewThumbnailStore(ctx context.Context, cfg S3Config) (*ThumbnailStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("thumbnail bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
		},
	}

	return &ThumbnailStore{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		http:   &http.Client{},
		cfg:    cfg,
	}, nil
}

// Upload fetches the image at sourceURL and writes it under a key
// namespaced by owner. It returns the stored thumbnail URL.
func (t *ThumbnailStore) Upload(ctx context.Context, ownerID, sourceURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, thumbnailTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("build thumbnail request: %w", err)
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download thumbnail: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download thumbnail: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxThumbnailBytes))
	if err != nil {
		return "", fmt.Errorf("read thumbnail: %w", err)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("thumbnail body is empty")
	}

	contentType := http.DetectContentType(body)
	key := ThumbnailKey(ownerID, uuid.New().String(), contentType)

	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(t.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload thumbnail: %w", err)
	}

	if t.cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(t.cfg.PublicBaseURL, "/") + "/" + key, nil
	}
	return key, nil
}

// ThumbnailKey builds the object key for one thumbnail. The extension
// follows the detected content type, defaulting to jpg.
func ThumbnailKey(ownerID, id, contentType string) string {
	owner := ownerID
	if owner == "" {
		owner = "anonymous"
	}
	return fmt.Sprintf("%s/%s.%s", owner, id, extensionFor(contentType))
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "jpg"
	}
}
