package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3Prefix = "properties/"

type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint is set for S3-compatible services such as MinIO.
	Endpoint string
}

// objectAPI is the subset of *s3.Client used here.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Storage struct {
	client  objectAPI
	bucket  string
	baseURL string
	log     *slog.Logger
}

func NewS3Storage(ctx context.Context, cfg S3Config, log *slog.Logger) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	if cfg.Endpoint != "" {
		baseURL = fmt.Sprintf("%s/%s", strings.TrimRight(cfg.Endpoint, "/"), cfg.Bucket)
	}
	return newS3Storage(client, cfg.Bucket, baseURL, log), nil
}

func newS3Storage(client objectAPI, bucket, baseURL string, log *slog.Logger) *S3Storage {
	return &S3Storage{
		client:  client,
		bucket:  bucket,
		baseURL: baseURL,
		log:     log.With("component", "S3Storage"),
	}
}

func (s *S3Storage) Save(ctx context.Context, name, contentType string, data []byte) (Object, error) {
	key := newKey(name, contentType)
	if err := s.put(ctx, s3Prefix+key, contentType, data); err != nil {
		return Object{}, err
	}
	obj := Object{Key: key, URL: s.url(s3Prefix + key)}

	thumb, err := Thumbnail(data)
	if err != nil {
		s.log.Warn("Skipping thumbnail", "key", key, "error", err)
		return obj, nil
	}
	if err := s.put(ctx, s3Prefix+thumbName(key), "image/jpeg", thumb); err != nil {
		s.log.Warn("Failed to upload thumbnail", "key", key, "error", err)
		return obj, nil
	}
	obj.ThumbnailURL = s.url(s3Prefix + thumbName(key))
	return obj, nil
}

// Delete removes the object and its thumbnail. S3 treats deleting a
// missing key as success.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	for _, name := range []string{key, thumbName(key)} {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s3Prefix + name),
		})
		if err != nil {
			return fmt.Errorf("failed to delete from S3: %w", err)
		}
	}
	return nil
}

func (s *S3Storage) put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

func (s *S3Storage) url(key string) string {
	return fmt.Sprintf("%s/%s", s.baseURL, key)
}
