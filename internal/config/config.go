package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/input-output-hk/catalyst-forge-libs/uploader"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/internal/logging"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/s3target"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CHUNKUP"

// DefaultChunkSize is used for HTTP targets when chunk_size is unset. S3
// targets default to s3target.MinPartSize.
const DefaultChunkSize = 1024 * 1024

// Config is the chunkup configuration.
type Config struct {
	Target                      string            `mapstructure:"target"`
	ChunkSize                   int64             `mapstructure:"chunk_size"`
	ForceChunkSize              bool              `mapstructure:"force_chunk_size"`
	SimultaneousUploads         int               `mapstructure:"simultaneous_uploads"`
	MaxChunkRetries             int               `mapstructure:"max_chunk_retries"`
	RetryInterval               time.Duration     `mapstructure:"retry_interval"`
	RetryMaxInterval            time.Duration     `mapstructure:"retry_max_interval"`
	TestChunks                  bool              `mapstructure:"test_chunks"`
	PrioritizeFirstAndLastChunk bool              `mapstructure:"prioritize_first_and_last_chunk"`
	Encoding                    string            `mapstructure:"encoding"`
	FileParameterName           string            `mapstructure:"file_parameter_name"`
	UploadMethod                string            `mapstructure:"upload_method"`
	Headers                     map[string]string `mapstructure:"headers"`
	Query                       map[string]string `mapstructure:"query"`
	LogLevel                    string            `mapstructure:"log_level"`
	S3                          S3Config          `mapstructure:"s3"`
}

// S3Config selects the S3 target instead of an HTTP endpoint.
type S3Config struct {
	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

var defaults = map[string]any{
	"target":                          "",
	"chunk_size":                      int64(0),
	"force_chunk_size":                false,
	"simultaneous_uploads":            3,
	"max_chunk_retries":               3,
	"retry_interval":                  time.Second,
	"retry_max_interval":              time.Duration(0),
	"test_chunks":                     false,
	"prioritize_first_and_last_chunk": false,
	"encoding":                        string(uploader.EncodingMultipart),
	"file_parameter_name":             "file",
	"upload_method":                   "POST",
	"log_level":                       "info",
	"s3.bucket":                       "",
	"s3.prefix":                       "",
	"s3.region":                       "",
	"s3.endpoint":                     "",
	"s3.force_path_style":             false,
}

// Load reads the configuration file at path, if any, and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// UseS3 reports whether chunks go to an S3 bucket.
func (c *Config) UseS3() bool {
	return c.S3.Bucket != ""
}

// Validate checks the settings the uploader cannot check itself.
func (c *Config) Validate() error {
	if !c.UseS3() && c.Target == "" {
		return fmt.Errorf("either target or s3.bucket must be set")
	}
	if c.UseS3() && c.Target != "" {
		return fmt.Errorf("target and s3.bucket are mutually exclusive")
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk_size %d is negative", c.ChunkSize)
	}
	if c.UseS3() && c.EffectiveChunkSize() < s3target.MinPartSize {
		return fmt.Errorf("chunk_size %d is below the S3 minimum part size %d", c.ChunkSize, s3target.MinPartSize)
	}
	if c.RetryMaxInterval > 0 && c.RetryMaxInterval < c.RetryInterval {
		return fmt.Errorf("retry_max_interval %s is below retry_interval %s", c.RetryMaxInterval, c.RetryInterval)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// EffectiveChunkSize returns the configured chunk size, or the default for
// the selected target when it is unset.
func (c *Config) EffectiveChunkSize() int64 {
	switch {
	case c.ChunkSize > 0:
		return c.ChunkSize
	case c.UseS3():
		return s3target.MinPartSize
	default:
		return DefaultChunkSize
	}
}

// UploaderOptions translates the configuration into uploader options. The
// target and transport are left to the caller.
func (c *Config) UploaderOptions() []uploader.Option {
	opts := []uploader.Option{
		uploader.WithChunkSize(c.EffectiveChunkSize()),
		uploader.WithForceChunkSize(c.ForceChunkSize),
		uploader.WithSimultaneousUploads(c.SimultaneousUploads),
		uploader.WithMaxChunkRetries(c.MaxChunkRetries),
		uploader.WithTestChunks(c.TestChunks),
		uploader.WithPrioritizeFirstAndLastChunk(c.PrioritizeFirstAndLastChunk),
		uploader.WithEncoding(uploader.Encoding(c.Encoding)),
		uploader.WithFileParameterName(c.FileParameterName),
		uploader.WithUploadMethod(c.UploadMethod),
	}

	if c.RetryMaxInterval > 0 {
		opts = append(opts, uploader.WithRetryBackoff(c.RetryInterval, c.RetryMaxInterval))
	} else {
		opts = append(opts, uploader.WithChunkRetryInterval(c.RetryInterval))
	}
	if len(c.Headers) > 0 {
		opts = append(opts, uploader.WithHeaders(c.Headers))
	}
	if len(c.Query) > 0 {
		opts = append(opts, uploader.WithQuery(c.Query))
	}
	return opts
}
