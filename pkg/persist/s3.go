package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// expiresAtMetaKey is the S3 object metadata key S3Store uses to carry a
// session's expiry, since S3 objects have no first-class TTL outside
// bucket-wide lifecycle rules.
const expiresAtMetaKey = "weave-expires-at"

// S3Store persists sessions as objects in an S3 bucket. Adapted from
// vango-go-vango's pkg/upload S3Store (originally a build-tag-gated
// example for upload staging, grounded here for real as a Store backend):
// the same buffer-then-PutObject upload shape, generalized from "claim
// once and delete" to "save/load/touch repeatedly until explicitly
// deleted or expired".
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store creates an S3-backed Store.
func NewS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(sessionID string) string {
	return s.prefix + sessionID
}

// Save implements Store.
func (s *S3Store) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sessionID)),
		Body:   bytes.NewReader(data),
		Metadata: map[string]string{
			expiresAtMetaKey: expiresAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("persist: s3 save %q: %w", sessionID, err)
	}
	return nil
}

// Load implements Store.
func (s *S3Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sessionID)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, fmt.Errorf("persist: s3 head %q: %w", sessionID, err)
	}
	if exp, ok := head.Metadata[expiresAtMetaKey]; ok {
		if t, err := time.Parse(time.RFC3339, exp); err == nil && time.Now().After(t) {
			return nil, nil
		}
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sessionID)),
	})
	if err != nil {
		return nil, fmt.Errorf("persist: s3 get %q: %w", sessionID, err)
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("persist: s3 read %q: %w", sessionID, err)
	}
	return buf.Bytes(), nil
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sessionID)),
	})
	if err != nil {
		return fmt.Errorf("persist: s3 delete %q: %w", sessionID, err)
	}
	return nil
}

// Touch implements Store by copying the object onto itself with replaced
// metadata - S3 objects have no mutable fields short of a rewrite.
func (s *S3Store) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	key := s.key(sessionID)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(key),
		CopySource:        aws.String(s.bucket + "/" + key),
		MetadataDirective: types.MetadataDirectiveReplace,
		Metadata: map[string]string{
			expiresAtMetaKey: expiresAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("persist: s3 touch %q: %w", sessionID, err)
	}
	return nil
}

// SaveAll implements Store. S3 has no cross-object transaction, so each
// session is saved independently; the first error stops the batch.
func (s *S3Store) SaveAll(ctx context.Context, sessions map[string]SessionData) error {
	for id, data := range sessions {
		if err := s.Save(ctx, id, data.Data, data.ExpiresAt); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Store. The SDK client has no persistent connection to
// release.
func (s *S3Store) Close() error { return nil }

var _ SessionStore = (*S3Store)(nil)
