package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	appconfig "github.com/imrishuroy/fieldlink/internal/config"
)

const defaultRegion = "us-east-1"

// LoadAWSConfig builds the SDK config from the service settings. An empty
// region falls back to us-east-1. EndpointOverride (localstack) redirects
// every client and AWSMaxAttempts caps the SDK retryer.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (sdkaws.Config, error) {
	region := cfg.AWSRegion
	if region == "" {
		region = defaultRegion
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cfg.AWSMaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.AWSMaxAttempts))
	}
	if cfg.EndpointOverride != "" {
		opts = append(opts, config.WithBaseEndpoint(cfg.EndpointOverride))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return awsCfg, fmt.Errorf("load aws config for %s: %w", region, err)
	}
	return awsCfg, nil
}
