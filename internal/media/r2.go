package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/pauljones0/dealboard/internal/config"
)

const MaxImageBytes = 5 << 20

var (
	ErrNotImage      = errors.New("file is not an image")
	ErrImageTooLarge = errors.New("image exceeds 5 MiB")
)

type Uploader interface {
	// Upload stores an image and returns its public URL.
	Upload(ctx context.Context, body io.Reader, filename string) (string, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type R2Uploader struct {
	client  objectPutter
	bucket  string
	baseURL string
}

func NewR2Uploader(ctx context.Context, cfg *config.Config) (*R2Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	baseURL := cfg.R2PublicBaseURL
	if baseURL == "" {
		baseURL = endpoint + "/" + cfg.R2Bucket
	}
	return &R2Uploader{client: client, bucket: cfg.R2Bucket, baseURL: baseURL}, nil
}

// Upload sniffs the content type, rejects non-images and anything over
// MaxImageBytes, and stores the object under deals/<uuid><ext>.
func (r *R2Uploader) Upload(ctx context.Context, body io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) > MaxImageBytes {
		return "", ErrImageTooLarge
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrNotImage
	}

	key := ObjectKey(filename, contentType)
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return fmt.Sprintf("%s/%s", r.baseURL, key), nil
}

// ObjectKey names a new upload, keeping the original extension when it has one.
func ObjectKey(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return "deals/" + uuid.NewString() + ext
}
