package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// s3API is the slice of the S3 client used here.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3 stores images in an S3 bucket. Image URLs are PublicBaseURL + "/" + key;
// with no base URL the virtual-hosted bucket URL is used.
type S3 struct {
	client  s3API
	bucket  string
	baseURL string
}

// NewS3 loads AWS credentials from the environment and binds to bucket.
func NewS3(ctx context.Context, bucket, region, publicBaseURL string) (*S3, error) {
	if bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	return newS3(s3.NewFromConfig(awsCfg), bucket, publicBaseURL), nil
}

func newS3(client s3API, bucket, publicBaseURL string) *S3 {
	base := strings.TrimRight(publicBaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.amazonaws.com", bucket)
	}
	return &S3{client: client, bucket: bucket, baseURL: base}
}

func (s *S3) Name() string { return "s3" }

// Upload decodes data and stores it under folder/<uuid>.<ext>.
func (s *S3) Upload(ctx context.Context, data, folder string) (*Asset, error) {
	raw, mime, ext, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	key := path.Join(strings.Trim(folder, "/"), uuid.NewString()+"."+ext)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String(mime),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put %s: %w", key, err)
	}
	return &Asset{URL: s.baseURL + "/" + key, PublicID: key}, nil
}

// DeleteAsset removes the object behind url. URLs outside the bucket's base
// URL are left alone.
func (s *S3) DeleteAsset(ctx context.Context, rawURL string) (bool, error) {
	key, ok := s.keyFor(rawURL)
	if !ok {
		return true, nil
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return false, fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return true, nil
}

// Ping issues a HeadBucket call.
func (s *S3) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func (s *S3) keyFor(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.HasPrefix(rawURL, s.baseURL+"/") {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	base, _ := url.Parse(s.baseURL)
	key := strings.TrimPrefix(u.Path, strings.TrimRight(base.Path, "/"))
	key = strings.TrimPrefix(key, "/")
	return key, key != ""
}
