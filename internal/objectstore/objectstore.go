// Package objectstore persists original document bytes in S3-compatible
// storage. Objects are immutable once written; the metadata store records
// the key.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/errkind"
	"github.com/lodestone-kg/lodestone/internal/model"
)

// ErrObjectNotFound is returned when the requested key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Store is the document bytes persistence interface.
type Store interface {
	Put(ctx context.Context, ownerID int64, filename, contentType string, body io.Reader) (*model.StorageLocation, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Download(ctx context.Context, key, destPath string) error
	Delete(ctx context.Context, key string) error
}

var _ Store = (*S3Store)(nil)

// S3Store implements Store against S3 or an S3-compatible endpoint.
type S3Store struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// Option configures an S3Store.
type Option func(*S3Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *S3Store) { s.logger = logger }
}

// New creates the store. A non-empty endpoint switches to path-style
// addressing for MinIO and similar services.
func New(cfg config.ObjectStoreConfig, opts ...Option) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("object store bucket is not configured"))
	}

	accessKey := os.Getenv(cfg.AccessKeyEnv)
	secretKey := os.Getenv(cfg.SecretKeyEnv)

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		loadOpts = append(loadOpts,
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config; %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	s := &S3Store{client: client, bucket: cfg.Bucket, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ObjectKey builds the storage key for an upload. The uuid segment keeps
// same-named uploads from colliding.
func ObjectKey(ownerID int64, filename string) string {
	return path.Join(fmt.Sprintf("%d", ownerID), uuid.NewString(), path.Base(filename))
}

// Put uploads the body and returns where it landed.
func (s *S3Store) Put(ctx context.Context, ownerID int64, filename, contentType string, body io.Reader) (*model.StorageLocation, error) {
	key := ObjectKey(ownerID, filename)

	buf := new(bytes.Buffer)
	size, err := io.Copy(buf, body)
	if err != nil {
		return nil, fmt.Errorf("reading upload body; %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, errkind.New(errkind.KindExternalTransient,
			fmt.Errorf("uploading %s; %w", key, err))
	}

	location := &model.StorageLocation{
		Bucket:      s.bucket,
		ObjectKey:   key,
		ETag:        aws.ToString(out.ETag),
		Size:        size,
		ContentType: contentType,
	}
	s.logger.Debug("object stored", "key", key, "size", size)
	return location, nil
}

// Get streams the object body. The caller closes the reader.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound
		}
		return nil, errkind.New(errkind.KindExternalTransient,
			fmt.Errorf("fetching %s; %w", key, err))
	}
	return out.Body, nil
}

// Download copies the object to a local file for parsing.
func (s *S3Store) Download(ctx context.Context, key, destPath string) error {
	body, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s; %w", destPath, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, body); err != nil {
		return fmt.Errorf("writing %s; %w", destPath, err)
	}
	return nil
}

// Delete removes the object. A missing object is not an error.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNoSuchKey(err) {
		return errkind.New(errkind.KindExternalTransient,
			fmt.Errorf("deleting %s; %w", key, err))
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
