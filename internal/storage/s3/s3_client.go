package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/zeebo/errs"

	"imguard/internal/config"
	"imguard/internal/port"
)

// Error is the error class for blob store failures.
var Error = errs.Class("s3")

// Uploader is the subset of manager.Uploader the client needs.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type s3Client struct {
	uploader Uploader
	bucket   string
}

// NewS3Client creates a new S3-backed ObjectStorage implementation. A custom
// endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Client(cfg *config.S3Config) (port.ObjectStorage, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, Error.New("loading aws config: %v", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return NewWithUploader(manager.NewUploader(client), cfg.Bucket), nil
}

// NewWithUploader wraps an existing uploader.
func NewWithUploader(uploader Uploader, bucket string) port.ObjectStorage {
	return &s3Client{uploader: uploader, bucket: bucket}
}

func (c *s3Client) Put(ctx context.Context, input port.PutInput) (*port.PutOutput, error) {
	params := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(input.Key),
		Body:        input.Body,
		ContentType: aws.String(input.ContentType),
		Metadata:    input.Metadata,
	}
	if input.Size > 0 {
		params.ContentLength = aws.Int64(input.Size)
	}

	result, err := c.uploader.Upload(ctx, params)
	if err != nil {
		return nil, Error.New("put %s: %v", input.Key, err)
	}

	etag := ""
	if result.ETag != nil {
		etag = *result.ETag
	}

	return &port.PutOutput{
		Location: result.Location,
		ETag:     etag,
	}, nil
}
