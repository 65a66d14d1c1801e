// Package backup uploads gzip-compressed JSON snapshots to S3-compatible
// storage and rotates old ones.
package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/matsen/bibnorm/internal/config"
	"github.com/matsen/bibnorm/internal/snapshot"
	"github.com/matsen/bibnorm/internal/store"
)

// ObjectStore is the subset of the S3 API used here. *s3.Client satisfies it.
type ObjectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// KeyPrefix starts every backup object name.
const KeyPrefix = "bibnorm-"

// NewS3Client creates an S3 client with static credentials. A non-empty
// endpoint selects an S3-compatible service with path-style addressing.
func NewS3Client(ctx context.Context, cfg config.BackupConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Uploader writes snapshots into one bucket under a prefix.
type Uploader struct {
	client ObjectStore
	bucket string
	prefix string
	keep   int
	logger *zap.Logger
}

// NewUploader returns an Uploader keeping the newest keep backups.
func NewUploader(client ObjectStore, cfg config.BackupConfig, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	keep := cfg.Keep
	if keep <= 0 {
		keep = config.DefaultKeepBackups
	}
	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		keep:   keep,
		logger: logger,
	}
}

// Key returns the object key for a backup taken at t.
func (u *Uploader) Key(t time.Time) string {
	name := KeyPrefix + t.UTC().Format("2006-01-02T15-04-05Z") + ".json.gz"
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// Upload puts sn as a gzip'd JSON document and returns its key.
func (u *Uploader) Upload(ctx context.Context, sn store.Snapshot, now time.Time) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := snapshot.EncodeDocument(zw, sn, snapshot.NewMetadata(sn, now)); err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compressing snapshot: %w", err)
	}

	key := u.Key(now)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(u.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading s3://%s/%s: %w", u.bucket, key, err)
	}

	u.logger.Info("backup uploaded",
		zap.String("bucket", u.bucket),
		zap.String("key", key),
		zap.Int("bytes", buf.Len()))
	return key, nil
}

// Rotate deletes all but the newest backups under the prefix and returns the
// deleted keys. Keys sort chronologically, so no timestamps are consulted.
func (u *Uploader) Rotate(ctx context.Context) ([]string, error) {
	listPrefix := KeyPrefix
	if u.prefix != "" {
		listPrefix = u.prefix + "/" + KeyPrefix
	}

	var keys []string
	var token *string
	for {
		out, err := u.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(u.bucket),
			Prefix:            aws.String(listPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing backups: %w", err)
		}
		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}

	if len(keys) <= u.keep {
		return nil, nil
	}

	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	var deleted []string
	for _, key := range keys[u.keep:] {
		_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(u.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return deleted, fmt.Errorf("deleting %s: %w", key, err)
		}
		u.logger.Info("old backup deleted", zap.String("key", key))
		deleted = append(deleted, key)
	}
	return deleted, nil
}
