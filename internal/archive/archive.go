package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Archiver keeps a copy of every uploaded import file.
type Archiver interface {
	Archive(ctx context.Context, fileName string, data []byte) (string, error)
}

// Nop is used when no archive bucket is configured.
type Nop struct{}

func (Nop) Archive(context.Context, string, []byte) (string, error) {
	return "", nil
}

// Uploader is the part of the S3 client the archiver needs.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
}

type S3Archiver struct {
	client Uploader
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Archiver builds an S3 client from the default AWS credential
// chain, or from static keys when both are given.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return NewWithClient(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
}

func NewWithClient(client Uploader, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

// Archive uploads data under prefix/YYYY/MM/DD/<id>-<file name> and
// returns the object key.
func (a *S3Archiver) Archive(ctx context.Context, fileName string, data []byte) (string, error) {
	key := a.objectKey(fileName)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(fileName)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to s3: %w", key, err)
	}
	return key, nil
}

func (a *S3Archiver) objectKey(fileName string) string {
	base := path.Base(fileName)
	if base == "." || base == "/" {
		base = "upload.csv"
	}
	return path.Join(a.prefix, a.now().UTC().Format("2006/01/02"), uuid.NewString()+"-"+base)
}

func contentType(fileName string) string {
	switch path.Ext(fileName) {
	case ".zip":
		return "application/zip"
	case ".tar":
		return "application/x-tar"
	default:
		return "text/csv"
	}
}
