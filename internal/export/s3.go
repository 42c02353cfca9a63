package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-image-editor/internal/dataurl"
)

// DefaultURLExpiry is how long a presigned download URL stays valid.
const DefaultURLExpiry = 15 * time.Minute

// ObjectStore is the subset of the S3 client used for uploads and reads.
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Exporter stores results in a bucket and hands out presigned links.
type S3Exporter struct {
	client    ObjectStore
	presigner *s3.PresignClient
	bucket    string
	expiry    time.Duration
}

// NewS3Exporter returns an exporter writing to bucket.
func NewS3Exporter(client *s3.Client, bucket string) *S3Exporter {
	return &S3Exporter{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		expiry:    DefaultURLExpiry,
	}
}

// Bucket returns the destination bucket.
func (e *S3Exporter) Bucket() string { return e.bucket }

// Key returns the object key for a session's downloadable result.
func Key(sessionID string) string {
	return sessionID + "/" + DefaultFilename
}

// StepKey returns the object key for the result of history step n.
func StepKey(sessionID string, step int) string {
	return fmt.Sprintf("%s/history/step-%02d.png", sessionID, step+1)
}

// SourceKey returns the object key for a session's uploaded image.
func SourceKey(sessionID, filename string) string {
	return sessionID + "/original" + strings.ToLower(path.Ext(filename))
}

// Upload stores the image data URL under key.
func (e *S3Exporter) Upload(ctx context.Context, key, result string) error {
	r, err := DecodeDataURL(result)
	if err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(e.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(r.Data),
		ContentType:        aws.String(r.MIMEType),
		ContentDisposition: aws.String(`attachment; filename="` + path.Base(key) + `"`),
	})
	if err != nil {
		return fmt.Errorf("failed to upload result to S3: %w", err)
	}
	log.Info().Str("bucket", e.bucket).Str("key", key).Int("bytes", len(r.Data)).Msg("Result uploaded to S3")
	return nil
}

// Fetch reads the object at key back as a data URL.
func (e *S3Exporter) Fetch(ctx context.Context, key string) (string, error) {
	out, err := e.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s from S3: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	mimeType := aws.ToString(out.ContentType)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	return dataurl.Encode(mimeType, data), nil
}

// PresignedURL creates a pre-signed GET URL for key.
func (e *S3Exporter) PresignedURL(ctx context.Context, key string) (string, error) {
	if e.presigner == nil {
		return "", fmt.Errorf("presign client not configured")
	}
	out, err := e.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = e.expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return out.URL, nil
}

// Export uploads the result to <session>/edited-image.png and returns a
// presigned link to it.
func (e *S3Exporter) Export(ctx context.Context, sessionID, result string) (string, error) {
	key := Key(sessionID)
	if err := e.Upload(ctx, key, result); err != nil {
		return "", err
	}
	return e.PresignedURL(ctx, key)
}
