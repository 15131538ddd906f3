// Package config loads the chunkup command configuration.
//
// Values come from an optional YAML (or any format Viper understands) file
// and from CHUNKUP_ prefixed environment variables, where nested keys use
// underscores: s3.bucket is read from CHUNKUP_S3_BUCKET. Command line flags
// are applied on top by the command itself.
package config
