package s3target

import (
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Option configures a Transport.
type Option func(*options)

type options struct {
	prefix         string
	region         string
	endpoint       string
	forcePathStyle bool
	awsConfig      *aws.Config
	logger         *slog.Logger
}

// WithKeyPrefix prepends prefix to every object key.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithRegion sets the AWS region.
// If not specified, uses the default AWS region from the credential chain.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithEndpoint sets a custom S3 endpoint, such as LocalStack or MinIO.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithForcePathStyle forces path-style URLs instead of virtual-hosted style.
func WithForcePathStyle(force bool) Option {
	return func(o *options) {
		o.forcePathStyle = force
	}
}

// WithAWSConfig uses cfg instead of loading the default configuration.
func WithAWSConfig(cfg aws.Config) Option {
	return func(o *options) {
		o.awsConfig = &cfg
	}
}

// WithLogger sets a custom logger.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
