package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Najnomics/fheap/internal/domain"
)

// minPartSize is the minimum allowed part size for S3 multipart uploads (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// Writer implements domain.BlobWriter on top of an S3-compatible backend.
// Uploads go through the SDK's upload manager, which switches to multipart
// automatically when the body outgrows a single part.
type Writer struct {
	uploader *manager.Uploader
	bucket   string
}

// NewWriter creates a Writer that archives objects into the client's bucket.
func NewWriter(c *Client) *Writer {
	uploader := manager.NewUploader(c.s3, func(u *manager.Uploader) {
		u.PartSize = minPartSize
	})
	return &Writer{
		uploader: uploader,
		bucket:   c.Bucket(),
	}
}

var _ domain.BlobWriter = (*Writer)(nil)

// Write uploads body under key and returns the object's s3:// location.
func (w *Writer) Write(ctx context.Context, key string, contentType string, body []byte) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}

	if _, err := w.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("s3blob: write %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", w.bucket, key), nil
}
