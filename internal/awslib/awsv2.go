// Package awslib shares AWS SDK configuration between the gate's EC2
// metadata and tag fetchers.
package awslib

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

// LoadConfig loads the default AWS SDK v2 config, asking IMDS for the region
// when the local configuration does not resolve one.
func LoadConfig(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return cfg, fmt.Errorf("loading default config: %w", err)
	}
	if cfg.Region != "" {
		return cfg, nil
	}

	// no region locally, so ask the instance metadata service
	region, err := imds.NewFromConfig(cfg).GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return cfg, fmt.Errorf("getting region from imds: %w", err)
	}

	cfg, err = config.LoadDefaultConfig(ctx, append(optFns, config.WithRegion(region.Region))...)
	if err != nil {
		return cfg, fmt.Errorf("reloading config with the imds region: %w", err)
	}
	return cfg, nil
}
