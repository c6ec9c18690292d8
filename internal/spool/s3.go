package spool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/wiffzack/printspool/internal/config"
	"github.com/wiffzack/printspool/internal/core"
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink stores artifacts as objects under {prefix}/{staff}/{template}_{invoice}
// on any S3 compatible store.
type S3Sink struct {
	client objectPutter
	bucket string
	prefix string
	logger *zap.Logger
}

func NewS3Sink(ctx context.Context, cfg config.S3Config, logger *zap.Logger) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3Sink(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3Sink(client objectPutter, bucket, prefix string, logger *zap.Logger) *S3Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Sink{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

func (s *S3Sink) Key(a *core.Artifact) string {
	return path.Join(s.prefix, staffDir(a.StaffID), artifactName(a))
}

func (s *S3Sink) Write(ctx context.Context, a *core.Artifact) error {
	key := s.Key(a)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(a.Data),
		ContentType: aws.String(contentType(a.Output)),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w: %w", key, core.ErrIO, err)
	}

	s.logger.Debug("artifact uploaded", zap.String("bucket", s.bucket), zap.String("key", key))
	return nil
}

func contentType(kind core.OutputKind) string {
	if kind == core.OutputHTML {
		return "text/html; charset=iso-8859-1"
	}
	return "application/octet-stream"
}
