package filestore

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/corpusd/corpusd/internal/pkg/errors"
)

type s3Config struct {
	Endpoint     string `json:"endpoint"`
	Region       string `json:"region"`
	Bucket       string `json:"bucket"`
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	Prefix       string `json:"prefix"`
	UsePathStyle bool   `json:"use_path_style"`
}

type s3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

func init() {
	Register("s3", newS3Store)
}

func newS3Store(args interface{}) (Store, error) {
	c := &s3Config{}
	if err := decodeConfig(args, c); err != nil {
		return nil, err
	}
	if c.Bucket == "" {
		return nil, fmt.Errorf("s3 store: bucket is required")
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.Region),
	}
	if c.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}
	awscfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 store: load config: %w", err)
	}
	client := s3.NewFromConfig(awscfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = c.UsePathStyle
	})
	return &s3Store{client: client, bucket: c.Bucket, prefix: strings.Trim(c.Prefix, "/")}, nil
}

func (s *s3Store) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *s3Store) Save(ctx context.Context, key string, r io.Reader) error {
	full := s.objectKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("s3 store: put %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	full := s.objectKey(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		var apiErr smithy.APIError
		if stderrors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
			return nil, fmt.Errorf("open %s: %w", key, errors.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 store: get %s: %w", key, err)
	}
	return out.Body, nil
}
