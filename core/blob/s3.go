package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/relabs-tech/ghcrawler/core/logger"
	"github.com/relabs-tech/ghcrawler/core/urn"
)

// S3Configuration is the environment configuration of the S3 archive
type S3Configuration struct {
	AWSRegion     string `env:"AWS_REGION"`
	AccessID      string `env:"AWS_ACCESS_ID"`
	AccessKey     string `env:"AWS_ACCESS_KEY"`
	AWSBucketName string `env:"BLOB_BUCKET"`
	KeyPrefix     string `env:"BLOB_KEY_PREFIX"`
}

// S3 archives payloads in an S3 bucket
type S3 struct {
	client    *s3.Client
	uploader  *manager.Uploader
	bucket    string
	keyPrefix string
}

// NewS3 creates an S3 archive over the given bucket
func NewS3(blobConfig S3Configuration) (*S3, error) {
	if blobConfig.AWSBucketName == "" {
		return nil, fmt.Errorf("blob s3: bucket name must not be empty")
	}

	awsConfig, err := config.LoadDefaultConfig(
		context.TODO(),
		config.WithRegion(blobConfig.AWSRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(blobConfig.AccessID, blobConfig.AccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("blob s3: %w", err)
	}

	logger.Default().Debugln("blob archive on S3 enabled")
	client := s3.NewFromConfig(awsConfig)
	return &S3{
		client:    client,
		uploader:  manager.NewUploader(client),
		bucket:    blobConfig.AWSBucketName,
		keyPrefix: blobConfig.KeyPrefix,
	}, nil
}

// Put uploads the payload
func (s *S3) Put(ctx context.Context, u urn.URN, data []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.keyPrefix + Key(u)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("blob put %s: %w", u, err)
	}
	return nil
}

// Get downloads the archived payload, or nil if there is none
func (s *S3) Get(ctx context.Context, u urn.URN) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.keyPrefix + Key(u)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("blob get %s: %w", u, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("blob get %s: %w", u, err)
	}
	return data, nil
}

// Delete removes the archived payload
func (s *S3) Delete(ctx context.Context, u urn.URN) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.keyPrefix + Key(u)),
	})
	if err != nil {
		return fmt.Errorf("blob delete %s: %w", u, err)
	}
	return nil
}
