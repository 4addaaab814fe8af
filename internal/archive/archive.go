// Package archive stores raw dataset CSV snapshots in S3-compatible
// object storage. It is optional: when no bucket is configured the server
// runs without it.
package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/arturkam25/intelplatform/internal/config"
	"github.com/arturkam25/intelplatform/internal/metrics"
)

// keyPrefix is the object key namespace for dataset snapshots.
const keyPrefix = "datasets/"

// objectAPI is the slice of the S3 client the service uses.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Snapshot describes one archived CSV object.
type Snapshot struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Service uploads and manages CSV snapshots in a single bucket.
type Service struct {
	client        objectAPI
	presignClient *s3.PresignClient
	bucket        string
	logger        *slog.Logger
}

// NewService creates a Service from the archive configuration. A custom
// endpoint switches the client into path-style addressing for MinIO.
func NewService(cfg config.ArchiveConfig, logger *slog.Logger) (*Service, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: no bucket configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(endpoint)
	}
	client := s3.New(opts)

	return &Service{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		logger:        logger,
	}, nil
}

// newServiceWithAPI wires a fake client for tests.
func newServiceWithAPI(api objectAPI, bucket string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{client: api, bucket: bucket, logger: logger}
}

var slugRegex = regexp.MustCompile(`[^a-z0-9._-]+`)

// slugify turns a dataset name into a safe object key segment.
func slugify(name string) string {
	s := slugRegex.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "snapshot"
	}
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}

// SnapshotKey builds the object key for a snapshot of the given kind and
// name at the given time.
func SnapshotKey(kind, name string, at time.Time) string {
	return fmt.Sprintf("%s%s/%s-%s.csv", keyPrefix, kind, at.UTC().Format("20060102T150405Z"), slugify(name))
}

// Archive uploads the raw CSV body and returns its object key.
func (s *Service) Archive(ctx context.Context, kind, name string, body io.Reader) (string, error) {
	key := SnapshotKey(kind, name, time.Now())

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		metrics.ArchiveUploadsTotal.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("archive snapshot %s: %w", key, err)
	}

	metrics.ArchiveUploadsTotal.WithLabelValues("success").Inc()
	s.logger.Info("archived dataset snapshot",
		slog.String("key", key),
		slog.String("kind", kind),
	)
	return key, nil
}

// List returns the snapshots of one kind, or all of them when kind is empty.
func (s *Service) List(ctx context.Context, kind string) ([]Snapshot, error) {
	prefix := keyPrefix
	if kind != "" {
		prefix += kind + "/"
	}

	var snapshots []Snapshot
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		for _, obj := range out.Contents {
			snap := Snapshot{}
			if obj.Key != nil {
				snap.Key = *obj.Key
			}
			if obj.Size != nil {
				snap.Size = *obj.Size
			}
			if obj.LastModified != nil {
				snap.LastModified = *obj.LastModified
			}
			snapshots = append(snapshots, snap)
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	return snapshots, nil
}

// Delete removes the given snapshot keys in batches of up to 1000, the S3
// per-request limit. Returns the number of objects deleted.
func (s *Service) Delete(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	identifiers := make([]types.ObjectIdentifier, len(keys))
	for i, key := range keys {
		identifiers[i] = types.ObjectIdentifier{Key: aws.String(key)}
	}

	deleted := 0
	const batchSize = 1000
	for i := 0; i < len(identifiers); i += batchSize {
		end := i + batchSize
		if end > len(identifiers) {
			end = len(identifiers)
		}
		batch := identifiers[i:end]

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: batch,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return deleted, fmt.Errorf("delete snapshots: %w", err)
		}
		deleted += len(batch) - len(out.Errors)
	}
	return deleted, nil
}

// PresignedURL generates a time-limited download URL for a snapshot.
func (s *Service) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if s.presignClient == nil {
		return "", fmt.Errorf("presigning not available")
	}
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign snapshot %s: %w", key, err)
	}
	return req.URL, nil
}
