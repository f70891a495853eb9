// Package storage uploads assembled Markdown exports to S3-compatible
// object storage (AWS S3, Tigris, MinIO, R2).
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"

	appconfig "github.com/jmylchreest/pagemark/internal/config"
	"github.com/jmylchreest/pagemark/internal/export"
	"github.com/jmylchreest/pagemark/internal/models"
)

// ErrDisabled is returned when no export bucket is configured.
var ErrDisabled = errors.New("export storage is not enabled")

// DefaultURLExpiry is how long presigned download links stay valid.
const DefaultURLExpiry = 24 * time.Hour

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ExportStorage stores Markdown exports.
type ExportStorage struct {
	client    objectPutter
	presigner objectPresigner
	raw       *s3.Client
	bucket    string
	prefix    string
	expiry    time.Duration
	enabled   bool
	now       func() time.Time
	logger    *slog.Logger
}

// NewExportStorage creates the export store. It is disabled, not an error,
// when no bucket is configured.
func NewExportStorage(ctx context.Context, cfg *appconfig.Config, logger *slog.Logger) (*ExportStorage, error) {
	if !cfg.ExportEnabled() {
		logger.Info("export storage disabled - no bucket configured")
		return &ExportStorage{logger: logger}, nil
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.ExportRegion)}
	if cfg.ExportAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.ExportAccessKey,
			cfg.ExportSecretKey,
			"",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ExportEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.ExportEndpoint)
		}
		o.UsePathStyle = cfg.ExportPathStyle
	})

	logger.Info("export storage initialized",
		"bucket", cfg.ExportBucket,
		"endpoint", cfg.ExportEndpoint,
		"prefix", cfg.ExportPrefix,
	)

	st := newExportStorage(client, s3.NewPresignClient(client), cfg.ExportBucket, cfg.ExportPrefix, logger)
	st.raw = client
	return st, nil
}

func newExportStorage(client objectPutter, presigner objectPresigner, bucket, prefix string, logger *slog.Logger) *ExportStorage {
	return &ExportStorage{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		prefix:    prefix,
		expiry:    DefaultURLExpiry,
		enabled:   true,
		now:       time.Now,
		logger:    logger,
	}
}

// IsEnabled returns whether export storage is configured.
func (s *ExportStorage) IsEnabled() bool {
	return s.enabled
}

// Bucket returns the configured bucket name.
func (s *ExportStorage) Bucket() string {
	return s.bucket
}

// Client returns the underlying S3 client, or nil when storage is disabled.
// The server reuses it to poll runtime log filters from the same bucket.
func (s *ExportStorage) Client() *s3.Client {
	return s.raw
}

// Key builds the object key for an export: <prefix><ulid>/<name>.md.
func (s *ExportStorage) Key(fileName string) string {
	id := ulid.MustNew(ulid.Timestamp(s.now()), ulid.DefaultEntropy())
	name := export.OutputName(path.Base(strings.ReplaceAll(fileName, `\`, "/")))
	return s.prefix + strings.ToLower(id.String()) + "/" + name
}

// Put stores markdown and returns where it went. URL is a presigned
// download link when one can be generated.
func (s *ExportStorage) Put(ctx context.Context, fileName, markdown string) (models.ExportResult, error) {
	if !s.enabled {
		return models.ExportResult{}, ErrDisabled
	}

	key := s.Key(fileName)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(markdown),
		ContentType: aws.String("text/markdown; charset=utf-8"),
	})
	if err != nil {
		return models.ExportResult{}, fmt.Errorf("failed to store export: %w", err)
	}

	result := models.ExportResult{Key: key, Size: len(markdown)}
	if s.presigner != nil {
		req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(s.expiry))
		if err != nil {
			s.logger.Warn("failed to presign export URL", "key", key, "error", err)
		} else {
			result.URL = req.URL
		}
	}

	s.logger.Info("stored export", "key", key, "size_bytes", len(markdown))
	return result, nil
}
