package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/hugh/projectcamp/pkg/config"
)

// S3Store keeps blobs in an S3 bucket or an S3 compatible service such as
// MinIO when an endpoint is configured.
type S3Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

func NewS3Store(ctx context.Context, cfg *config.StorageConfig) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	awsCfg.Credentials = s3Credentials(awsCfg, cfg)

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3PathStyle
	})

	return &S3Store{client: client, bucket: cfg.S3Bucket, baseURL: s3BaseURL(cfg)}, nil
}

// s3Credentials returns the loaded credentials, or a cached STS assume-role
// provider built on them when a role is configured.
func s3Credentials(awsCfg aws.Config, cfg *config.StorageConfig) aws.CredentialsProvider {
	if cfg.S3AssumeRoleARN == "" {
		return awsCfg.Credentials
	}
	return aws.NewCredentialsCache(assumeRoleProvider(awsCfg, cfg))
}

// assumeRoleProvider exchanges the loaded credentials for the configured
// role, passing the external id when one is set.
func assumeRoleProvider(awsCfg aws.Config, cfg *config.StorageConfig) *stscreds.AssumeRoleProvider {
	return stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), cfg.S3AssumeRoleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = "projectcamp-attachments"
		if cfg.S3ExternalID != "" {
			o.ExternalID = aws.String(cfg.S3ExternalID)
		}
	})
}

func s3BaseURL(cfg *config.StorageConfig) string {
	switch {
	case cfg.PublicURL != "":
		return cfg.PublicURL
	case cfg.S3Endpoint != "":
		return fmt.Sprintf("%s/%s", cfg.S3Endpoint, cfg.S3Bucket)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.S3Region)
	}
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return publicURL(s.baseURL, key), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
