package media

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

// S3AssetStore uploads rendered posters and videos to an S3-compatible
// bucket and returns the public URL for each object. Setting Endpoint
// points the client at a non-AWS provider (R2, MinIO); those providers
// want path-style addressing.
type S3AssetStore struct {
	client *s3.Client
	cfg    core.AssetsConfig
	logger core.Logger
}

// NewS3AssetStore creates an asset store backed by cfg.Bucket. Static
// credentials are used when AccessKey is set, the default AWS chain
// otherwise.
func NewS3AssetStore(ctx context.Context, cfg core.AssetsConfig, logger core.Logger) (*S3AssetStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("asset bucket not configured: %w", core.ErrMissingConfiguration)
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/media")
	}

	region := cfg.Region
	if region == "" && cfg.Endpoint != "" {
		region = "auto"
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3AssetStore{client: client, cfg: cfg, logger: logger}, nil
}

// Store uploads data under the configured prefix and returns its URL.
func (s *S3AssetStore) Store(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	fullKey := key
	if s.cfg.Prefix != "" {
		fullKey = s.cfg.Prefix + "/" + key
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		s.logger.Error("Asset upload failed", map[string]interface{}{
			"operation": "asset_store",
			"bucket":    s.cfg.Bucket,
			"key":       fullKey,
			"error":     err.Error(),
		})
		telemetry.Counter("media.assets.total",
			"module", telemetry.ModuleMedia,
			"status", "error")
		return "", fmt.Errorf("failed to upload asset %s: %w", fullKey, err)
	}

	url := s.urlFor(fullKey)
	s.logger.Debug("Asset uploaded", map[string]interface{}{
		"operation": "asset_store",
		"key":       fullKey,
		"bytes":     len(data),
		"url":       url,
	})
	telemetry.Counter("media.assets.total",
		"module", telemetry.ModuleMedia,
		"status", "success")
	return url, nil
}

func (s *S3AssetStore) urlFor(fullKey string) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL + "/" + fullKey
	}
	if s.cfg.Region != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, fullKey)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.cfg.Bucket, fullKey)
}

// NoopAssetStore discards uploads. It stands in when no bucket is
// configured so the pipeline still produces prompts and mood without
// persisting binaries.
type NoopAssetStore struct {
	logger core.Logger
}

// NewNoopAssetStore creates a store that drops every upload.
func NewNoopAssetStore(logger core.Logger) *NoopAssetStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/media")
	}
	return &NoopAssetStore{logger: logger}
}

// Store logs the drop and reports no URL.
func (s *NoopAssetStore) Store(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.logger.Debug("Asset store disabled, dropping upload", map[string]interface{}{
		"operation": "asset_store",
		"key":       key,
		"bytes":     len(data),
	})
	return "", nil
}
