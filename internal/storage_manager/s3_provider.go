package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Client is the subset of S3 operations S3FileProvider needs.
type S3Client interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	HeadObject(ctx context.Context, bucket, key string) error
	DeleteObject(ctx context.Context, bucket, key string) error
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

// AWSS3Client implements S3Client with the AWS SDK v2.
type AWSS3Client struct {
	s3Client *s3.Client
}

func NewAWSS3Client(s3Client *s3.Client) *AWSS3Client {
	return &AWSS3Client{s3Client: s3Client}
}

// isNotFound reports whether err is S3's way of saying the key or bucket is absent.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}

func (c *AWSS3Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get object %s from bucket %s: %w", key, bucket, err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

func (c *AWSS3Client) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s to bucket %s: %w", key, bucket, err)
	}
	return nil
}

// HeadObject returns ErrNotFound when the key is absent.
func (c *AWSS3Client) HeadObject(ctx context.Context, bucket, key string) error {
	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to head object %s in bucket %s: %w", key, bucket, err)
	}
	return nil
}

func (c *AWSS3Client) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s from bucket %s: %w", key, bucket, err)
	}
	return nil
}

// ListObjects pages through every key under prefix. A missing bucket lists as empty.
func (c *AWSS3Client) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	keys := []string{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isNotFound(err) {
				return []string{}, nil
			}
			return nil, fmt.Errorf("failed to list objects with prefix %s in bucket %s: %w", prefix, bucket, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

// S3FileProvider stores documents as objects in one bucket under an optional key prefix.
type S3FileProvider struct {
	bucket   string
	prefix   string
	s3Client S3Client
}

func NewS3FileProvider(bucket, prefix string, s3Client S3Client) *S3FileProvider {
	return &S3FileProvider{bucket: bucket, prefix: strings.Trim(prefix, "/"), s3Client: s3Client}
}

func (p *S3FileProvider) Read(ctx context.Context, path string) ([]byte, error) {
	return p.s3Client.GetObject(ctx, p.bucket, p.key(path))
}

func (p *S3FileProvider) Write(ctx context.Context, path string, data []byte) error {
	return p.s3Client.PutObject(ctx, p.bucket, p.key(path), data)
}

func (p *S3FileProvider) Exists(ctx context.Context, path string) (bool, error) {
	err := p.s3Client.HeadObject(ctx, p.bucket, p.key(path))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (p *S3FileProvider) Delete(ctx context.Context, path string) error {
	return p.s3Client.DeleteObject(ctx, p.bucket, p.key(path))
}

func (p *S3FileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.s3Client.ListObjects(ctx, p.bucket, p.key(prefix))
	if err != nil {
		return nil, err
	}
	strip := p.key("")
	result := make([]string, 0, len(keys))
	for _, k := range keys {
		if rest, ok := strings.CutPrefix(k, strip); ok && rest != "" {
			result = append(result, rest)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (p *S3FileProvider) key(path string) string {
	if p.prefix == "" {
		return path
	}
	return p.prefix + "/" + path
}
