package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"aidledger/internal/ledger/store"
	"aidledger/pkg/platform/sentinel"
)

// ObjectAPI is the part of the S3 client the checkpoint store calls.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config selects the bucket and, for S3-compatible services such as MinIO,
// a custom endpoint.
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// S3Store writes one object per checkpoint. Keys embed the zero-padded
// version so the lexically greatest key is the newest checkpoint.
type S3Store struct {
	client ObjectAPI
	bucket string
	prefix string
}

// NewS3Store builds a client from the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3StoreWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client ObjectAPI, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(version uint64) string {
	return fmt.Sprintf("%s%020d.json", s.prefix, version)
}

// Save writes snap under its version key.
func (s *S3Store) Save(ctx context.Context, snap store.Snapshot) error {
	payload, err := encode(snap)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(snap.Version)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put checkpoint %d: %w", snap.Version, err)
	}
	return nil
}

// Latest lists the prefix and reads the greatest key.
func (s *S3Store) Latest(ctx context.Context) (*store.Snapshot, error) {
	var (
		latest string
		token  *string
	)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list checkpoints: %w", err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, ".json") && key > latest {
				latest = key
			}
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	if latest == "" {
		return nil, sentinel.ErrNotFound
	}

	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(latest),
	})
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", latest, err)
	}
	defer obj.Body.Close()
	payload, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", latest, err)
	}
	return decode(payload)
}
