package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"stash/internal/server/config"
)

// S3Store keeps artifacts in an S3 bucket under the same u/ key layout as
// the filesystem backend.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates a new S3 storage backend.
func NewS3Store(cfg *config.Config) (*S3Store, error) {
	ctx := context.Background()

	var awsCfg aws.Config
	var err error

	if cfg.AWSAccessKey != "" && cfg.AWSSecretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AWSAccessKey,
				cfg.AWSSecretKey,
				"",
			)),
		)
	} else {
		// Default chain: environment, shared config, IAM role.
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.S3Bucket == "" {
		return nil, errors.New("S3 backend requires a bucket name")
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3Bucket,
	}, nil
}

// Ensure is a no-op for the object store; the bucket must already exist.
func (s *S3Store) Ensure() error {
	return nil
}

// countingReader counts bytes as the SDK streams them to the bucket.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Place uploads the payload to u/<storedName><extension>.
func (s *S3Store) Place(src io.Reader, storedName, extension string) (int64, error) {
	counter := &countingReader{r: src}

	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(artifactKey(storedName, extension)),
		Body:   counter,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload to S3: %w", err)
	}
	return counter.n, nil
}

// Open returns a reader over a stored artifact.
func (s *S3Store) Open(storedName, extension string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(artifactKey(storedName, extension)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("artifact not found for %s%s", storedName, extension)
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	return result.Body, nil
}

// Remove deletes the artifact. S3 deletes are idempotent, matching the
// Store contract.
func (s *S3Store) Remove(storedName, extension string) error {
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(artifactKey(storedName, extension)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// Exists reports whether the artifact is present in the bucket.
func (s *S3Store) Exists(storedName, extension string) (bool, error) {
	_, err := s.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(artifactKey(storedName, extension)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat S3 object: %w", err)
	}
	return true, nil
}
