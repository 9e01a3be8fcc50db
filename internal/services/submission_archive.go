package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/reportdesk/backend/internal/config"
)

// ObjectPutter is the slice of the S3 API the archive needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SubmissionArchive keeps a copy of every uploaded file in an S3-compatible bucket
type SubmissionArchive struct {
	client ObjectPutter
	bucket string
	now    func() time.Time
}

// NewSubmissionArchive returns nil when ARCHIVE_BUCKET is unset
func NewSubmissionArchive(cfg *config.Config) *SubmissionArchive {
	if cfg.ArchiveBucket == "" {
		return nil
	}

	opts := s3.Options{
		Region: cfg.ArchiveRegion,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.ArchiveAccessKeyID,
			cfg.ArchiveSecretAccessKey,
			"",
		),
	}
	if cfg.ArchiveEndpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.ArchiveEndpoint)
		opts.UsePathStyle = true
	}

	log.Printf("SubmissionArchive: archiving uploads to bucket %s", cfg.ArchiveBucket)
	return NewSubmissionArchiveWithClient(s3.New(opts), cfg.ArchiveBucket)
}

func NewSubmissionArchiveWithClient(client ObjectPutter, bucket string) *SubmissionArchive {
	return &SubmissionArchive{client: client, bucket: bucket, now: time.Now}
}

func (a *SubmissionArchive) Enabled() bool {
	return a != nil && a.client != nil
}

// Store uploads one file and returns its object key
func (a *SubmissionArchive) Store(ctx context.Context, userID uint, filename, contentType string, body io.Reader) (string, error) {
	if !a.Enabled() {
		return "", nil
	}

	key := a.objectKey(userID, filename)
	input := &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("archive %s: %w", filename, err)
	}
	return key, nil
}

// objectKey is submissions/<user>/<yyyy>/<mm>/<dd>/<uuid>-<base name>
func (a *SubmissionArchive) objectKey(userID uint, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		base = "upload"
	}
	day := a.now().UTC().Format("2006/01/02")
	return fmt.Sprintf("submissions/%d/%s/%s-%s", userID, day, uuid.NewString(), base)
}
