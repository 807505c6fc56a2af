package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	// Bodies above multipartThreshold go through the transfer manager in
	// partSize chunks; S3 rejects parts under 5 MiB.
	multipartThreshold       = 16 * 1024 * 1024
	partSize           int64 = 8 * 1024 * 1024
)

// Bucket implements domain.ArchiveBucket on one S3 bucket.
type Bucket struct {
	client   *s3.Client
	bucket   string
	uploader *manager.Uploader
}

// NewBucket creates a Bucket over the client's bucket.
func NewBucket(c *Client) *Bucket {
	return &Bucket{
		client: c.S3(),
		bucket: c.Bucket(),
		uploader: manager.NewUploader(c.S3(), func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
	}
}

// Load downloads the whole object at key.
func (b *Bucket) Load(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: load %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: load %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", key, err)
	}
	return body, nil
}

// Store uploads body as a JSONL object, in parts when it is large.
func (b *Bucket) Store(ctx context.Context, key string, body []byte) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(jsonlContentType),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if len(body) > multipartThreshold {
		in.ContentLength = nil
		if _, err := b.uploader.Upload(ctx, in); err != nil {
			return fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
		}
		return nil
	}
	if _, err := b.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3blob: store %s: %w", key, err)
	}
	return nil
}

// isNotFound matches NoSuchKey, NotFound and a bare 404 from S3-compatible
// providers that return neither.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var httpErr interface{ HTTPStatusCode() int }
	return errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == 404
}

var _ domain.ArchiveBucket = (*Bucket)(nil)
