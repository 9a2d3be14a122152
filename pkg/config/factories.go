package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/tinyweb/internal/logger"
	"github.com/marmos91/tinyweb/pkg/content"
	contentFs "github.com/marmos91/tinyweb/pkg/content/fs"
	contentMemory "github.com/marmos91/tinyweb/pkg/content/memory"
	contentS3 "github.com/marmos91/tinyweb/pkg/content/s3"
	"github.com/marmos91/tinyweb/pkg/metrics"
	"github.com/marmos91/tinyweb/pkg/store/credential"
	credentialBadger "github.com/marmos91/tinyweb/pkg/store/credential/badger"
	credentialMemory "github.com/marmos91/tinyweb/pkg/store/credential/memory"
	"github.com/mitchellh/mapstructure"
)

// CreateContentStore creates a content store based on configuration.
//
// The Type field selects the implementation; the matching option map is
// decoded and passed to the store's constructor.
//
// Supported types:
//   - "filesystem": pkg/content/fs (document root on local disk, mmap'd)
//   - "memory": pkg/content/memory (files declared inline, for demos and tests)
//   - "s3": pkg/content/s3 (Amazon S3 or compatible storage)
func CreateContentStore(ctx context.Context, cfg *ContentConfig) (content.Store, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemContentStore(ctx, cfg.Filesystem)
	case "memory":
		return createMemoryContentStore(ctx, cfg.Memory)
	case "s3":
		return createS3ContentStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown content store type: %q", cfg.Type)
	}
}

// createFilesystemContentStore creates a filesystem-based content store.
func createFilesystemContentStore(ctx context.Context, options map[string]any) (content.Store, error) {
	type FilesystemContentStoreOptions struct {
		Root string `mapstructure:"root"`
	}

	var storeOpts FilesystemContentStoreOptions
	if err := mapstructure.Decode(options, &storeOpts); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem content store config: %w", err)
	}

	if storeOpts.Root == "" {
		return nil, fmt.Errorf("filesystem content store: root is required")
	}

	store, err := contentFs.NewFSContentStore(ctx, contentFs.FSContentStoreConfig{Root: storeOpts.Root})
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem content store: %w", err)
	}

	return store, nil
}

// createMemoryContentStore creates an in-memory content store seeded from
// the "files" option (request path to body).
func createMemoryContentStore(ctx context.Context, options map[string]any) (content.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type MemoryContentStoreOptions struct {
		Files map[string]string `mapstructure:"files"`
	}

	var storeOpts MemoryContentStoreOptions
	if err := mapstructure.Decode(options, &storeOpts); err != nil {
		return nil, fmt.Errorf("failed to decode memory content store config: %w", err)
	}

	store := contentMemory.NewMemoryContentStore()
	for name, body := range storeOpts.Files {
		store.Put(name, []byte(body))
	}

	return store, nil
}

// createS3ContentStore creates an S3-based content store.
func createS3ContentStore(ctx context.Context, options map[string]any) (content.Store, error) {
	type S3ContentStoreOptions struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxObjectSize   int64  `mapstructure:"max_object_size"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var storeOpts S3ContentStoreOptions
	if err := mapstructure.Decode(options, &storeOpts); err != nil {
		return nil, fmt.Errorf("failed to decode S3 content store config: %w", err)
	}

	if storeOpts.Bucket == "" {
		return nil, fmt.Errorf("S3 content store: bucket is required")
	}
	if storeOpts.Region == "" {
		return nil, fmt.Errorf("S3 content store: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(storeOpts.Region))

	// Custom endpoint for MinIO, Localstack, etc.
	if storeOpts.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               storeOpts.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Static credentials if provided, otherwise the default credential chain
	if storeOpts.AccessKeyID != "" && storeOpts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeOpts.AccessKeyID,
			storeOpts.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeOpts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Path-style addressing for MinIO/Localstack
		if storeOpts.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Content Store
	// ========================================================================

	store, err := contentS3.NewS3ContentStore(ctx, contentS3.S3ContentStoreConfig{
		Client:        client,
		Bucket:        storeOpts.Bucket,
		KeyPrefix:     storeOpts.KeyPrefix,
		MaxObjectSize: storeOpts.MaxObjectSize,
		Metrics:       metrics.NewS3Metrics(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 content store: %w", err)
	}

	logger.Info("S3 content store initialized: bucket=%s, region=%s, prefix=%s",
		storeOpts.Bucket, storeOpts.Region, storeOpts.KeyPrefix)

	return store, nil
}

// CreateCredentialStore creates a credential store based on configuration.
//
// Supported types:
//   - "memory": pkg/store/credential/memory (ephemeral)
//   - "badger": pkg/store/credential/badger (BadgerDB, persistent)
func CreateCredentialStore(ctx context.Context, cfg *CredentialsConfig) (credential.Store, error) {
	switch cfg.Type {
	case "memory":
		return createMemoryCredentialStore(ctx, cfg)
	case "badger":
		return createBadgerCredentialStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown credential store type: %q (supported: memory, badger)", cfg.Type)
	}
}

func createMemoryCredentialStore(ctx context.Context, cfg *CredentialsConfig) (credential.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return credentialMemory.NewMemoryCredentialStore(credentialMemory.MemoryCredentialStoreConfig{
		ReadPoolSize: cfg.ReadPoolSize,
		Metrics:      metrics.NewCredentialMetrics("memory"),
	}), nil
}

// createBadgerCredentialStore creates a BadgerDB-based persistent store.
func createBadgerCredentialStore(ctx context.Context, cfg *CredentialsConfig) (credential.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var storeCfg credentialBadger.BadgerCredentialStoreConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &storeCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(cfg.Badger); err != nil {
		return nil, fmt.Errorf("failed to decode badger credential store options: %w", err)
	}

	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger credential store: db_path is required")
	}

	// credentials.read_pool_size (and the -s flag) overrides the badger option.
	if cfg.ReadPoolSize > 0 {
		storeCfg.ReadPoolSize = cfg.ReadPoolSize
	}
	storeCfg.Metrics = metrics.NewCredentialMetrics("badger")

	start := time.Now()
	store, err := credentialBadger.NewBadgerCredentialStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger credential store: %w", err)
	}

	logger.Info("Badger credential store opened: path=%s (%s)", storeCfg.DBPath, time.Since(start))
	return store, nil
}
