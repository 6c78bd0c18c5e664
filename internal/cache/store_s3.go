package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/eko/gocache/lib/v4/store"
)

// S3StoreType is reported by GetType so a cold-tier hit can be attributed in
// metrics and the X-Cache-Status header.
const S3StoreType = "s3"

// expiresAtMeta is the object metadata key holding the entry's expiry, since
// S3 doesn't offer per-object TTLs outside of bucket lifecycle rules, which
// are too coarse for our per-endpoint TTL policy.
const expiresAtMeta = "bookwyrm-expires-at"

// S3Store is the cold tier of the cache hierarchy: cheap, slow, and durable.
// A miss here is a genuine miss; a hit is lazily rehydrated into the warm
// and edge tiers by Hierarchy.Get.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ store.StoreInterface = (*S3Store)(nil)

// NewS3Store creates a cold-tier store against bucket, namespacing all keys
// under prefix.
func NewS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) objectKey(key any) string {
	return fmt.Sprintf("%s/%s", s.prefix, fmt.Sprint(key))
}

// Get returns the object's bytes; an expired object is reported as a miss.
func (s *S3Store) Get(ctx context.Context, key any) (any, error) {
	v, _, err := s.getWithTTL(ctx, key)
	return v, err
}

// GetWithTTL returns the object's bytes and its remaining TTL, treating an
// expired or unparsable expiry as a miss.
func (s *S3Store) GetWithTTL(ctx context.Context, key any) (any, time.Duration, error) {
	return s.getWithTTL(ctx, key)
}

func (s *S3Store) getWithTTL(ctx context.Context, key any) ([]byte, time.Duration, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return nil, 0, ErrCacheMiss
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, 0, err
	}

	var ttl time.Duration
	if raw, ok := out.Metadata[expiresAtMeta]; ok {
		expiresAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, 0, ErrCacheMiss
		}
		ttl = time.Until(expiresAt)
		if ttl <= 0 {
			return nil, 0, ErrCacheMiss
		}
	}
	return body, ttl, nil
}

// Set uploads value, recording its expiry in object metadata.
func (s *S3Store) Set(ctx context.Context, key any, value any, options ...store.Option) error {
	v, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("s3 store only accepts []byte values, got %T", value)
	}

	opts := store.ApplyOptions(options...)
	ttl := opts.Expiration()
	if ttl <= 0 {
		ttl = 90 * 24 * time.Hour
	}

	uploader := manager.NewUploader(s.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(v),
		Metadata: map[string]string{
			expiresAtMeta: time.Now().Add(ttl).Format(time.RFC3339),
		},
	})
	return err
}

// PutResultSet uploads a pipeline completion payload under the results/
// prefix and returns a presigned GET URL valid for ttl, used as a
// job's resultsUrl when the payload is too large to embed (spec §4.7).
func (s *S3Store) PutResultSet(ctx context.Context, key string, payload []byte, ttl time.Duration) (string, error) {
	objKey := fmt.Sprintf("%s/results/%s", s.prefix, key)

	uploader := manager.NewUploader(s.client)
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
		Body:   bytes.NewReader(payload),
	}); err != nil {
		return "", err
	}

	presigner := s3.NewPresignClient(s.client)
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// Delete removes the cold-tier object for key.
func (s *S3Store) Delete(ctx context.Context, key any) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	return err
}

// Invalidate is a no-op; the cold tier has no tag index.
func (s *S3Store) Invalidate(ctx context.Context, options ...store.InvalidateOption) error {
	return nil
}

// Clear is unsupported for the cold tier -- bulk-deleting a bucket from the
// hot path would be both slow and dangerous. Operators reach for the bucket
// lifecycle policy instead.
func (s *S3Store) Clear(ctx context.Context) error {
	return fmt.Errorf("s3 store: Clear unsupported, use a bucket lifecycle rule")
}

// GetType reports this store's kind.
func (s *S3Store) GetType() string {
	return S3StoreType
}
