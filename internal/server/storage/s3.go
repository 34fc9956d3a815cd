package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// maxDeleteBatch is the DeleteObjects per-request key limit.
const maxDeleteBatch = 1000

// S3API is the part of *s3.Client used by S3Purger.
type S3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Config holds what is needed to reach an S3-compatible bucket.
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
}

// S3Purger purges namespaces stored as key prefixes in one bucket.
type S3Purger struct {
	client S3API
	bucket string
}

func NewS3PurgerWithClient(client S3API, bucket string) *S3Purger {
	return &S3Purger{client: client, bucket: bucket}
}

var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
)

// NewS3Purger builds an S3 client with static credentials. BaseEndpoint
// points it at MinIO or another S3-compatible server; path-style addressing
// is used whenever it is set.
func NewS3Purger(ctx context.Context, c S3Config) (*S3Purger, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKey,
			c.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3PurgerWithClient(client, c.Bucket), nil
}

func (p *S3Purger) Purge(ctx context.Context, userName string) error {
	ns, err := Namespace(userName)
	if err != nil {
		return err
	}

	var (
		batch []types.ObjectIdentifier
		token *string
	)
	for {
		out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(p.bucket),
			Prefix:            aws.String(ns),
			ContinuationToken: token,
		})
		if err != nil {
			return &PurgeError{Namespace: ns, Err: fmt.Errorf("list objects: %w", err)}
		}

		for _, obj := range out.Contents {
			batch = append(batch, types.ObjectIdentifier{Key: obj.Key})
			if len(batch) == maxDeleteBatch {
				if err := p.deleteBatch(ctx, batch); err != nil {
					return &PurgeError{Namespace: ns, Err: err}
				}
				batch = batch[:0]
			}
		}

		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}

	if len(batch) > 0 {
		if err := p.deleteBatch(ctx, batch); err != nil {
			return &PurgeError{Namespace: ns, Err: err}
		}
	}
	return nil
}

func (p *S3Purger) deleteBatch(ctx context.Context, objs []types.ObjectIdentifier) error {
	ids := make([]types.ObjectIdentifier, len(objs))
	copy(ids, objs)

	out, err := p.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(p.bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("delete objects: %w", err)
	}

	var errs []error
	for _, e := range out.Errors {
		errs = append(errs, fmt.Errorf("delete %s: %s: %s",
			aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message)))
	}
	return errors.Join(errs...)
}
