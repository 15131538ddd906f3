package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/uploader"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/s3target"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunkup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Zero(t, cfg.ChunkSize)
	assert.Equal(t, int64(DefaultChunkSize), cfg.EffectiveChunkSize())
	assert.Equal(t, 3, cfg.SimultaneousUploads)
	assert.Equal(t, 3, cfg.MaxChunkRetries)
	assert.Equal(t, time.Second, cfg.RetryInterval)
	assert.Equal(t, "multipart", cfg.Encoding)
	assert.Equal(t, "file", cfg.FileParameterName)
	assert.Equal(t, "POST", cfg.UploadMethod)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.UseS3())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfigFile(t, `
target: https://example.com/upload
chunk_size: 2048
simultaneous_uploads: 5
retry_interval: 250ms
retry_max_interval: 5s
test_chunks: true
headers:
  Authorization: Bearer abc
query:
  bucket: uploads
s3:
  region: eu-west-1
`)

	t.Setenv("CHUNKUP_SIMULTANEOUS_UPLOADS", "7")
	t.Setenv("CHUNKUP_S3_PREFIX", "incoming/")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/upload", cfg.Target)
	assert.Equal(t, int64(2048), cfg.ChunkSize)
	assert.Equal(t, 7, cfg.SimultaneousUploads)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryInterval)
	assert.Equal(t, 5*time.Second, cfg.RetryMaxInterval)
	assert.True(t, cfg.TestChunks)
	assert.Equal(t, "Bearer abc", cfg.Headers["authorization"])
	assert.Equal(t, map[string]string{"bucket": "uploads"}, cfg.Query)
	assert.Equal(t, "eu-west-1", cfg.S3.Region)
	assert.Equal(t, "incoming/", cfg.S3.Prefix)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:   "http target",
			mutate: func(c *Config) { c.Target = "https://example.com" },
		},
		{
			name:   "s3 bucket",
			mutate: func(c *Config) { c.S3.Bucket = "uploads" },
		},
		{
			name: "s3 bucket with explicit part size",
			mutate: func(c *Config) {
				c.S3.Bucket = "uploads"
				c.ChunkSize = 8 << 20
			},
		},
		{
			name: "s3 chunk size below minimum part size",
			mutate: func(c *Config) {
				c.S3.Bucket = "uploads"
				c.ChunkSize = 1 << 20
			},
			wantErr: true,
		},
		{
			name: "negative chunk size",
			mutate: func(c *Config) {
				c.Target = "https://example.com"
				c.ChunkSize = -1
			},
			wantErr: true,
		},
		{
			name:    "no destination",
			mutate:  func(c *Config) {},
			wantErr: true,
		},
		{
			name: "both destinations",
			mutate: func(c *Config) {
				c.Target = "https://example.com"
				c.S3.Bucket = "uploads"
			},
			wantErr: true,
		},
		{
			name: "max interval below interval",
			mutate: func(c *Config) {
				c.Target = "https://example.com"
				c.RetryMaxInterval = time.Millisecond
			},
			wantErr: true,
		},
		{
			name: "unknown log level",
			mutate: func(c *Config) {
				c.Target = "https://example.com"
				c.LogLevel = "chatty"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_EffectiveChunkSize(t *testing.T) {
	tests := []struct {
		name   string
		bucket string
		size   int64
		want   int64
	}{
		{"http default", "", 0, DefaultChunkSize},
		{"s3 default", "uploads", 0, s3target.MinPartSize},
		{"explicit http", "", 2048, 2048},
		{"explicit s3", "uploads", 16 << 20, 16 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{ChunkSize: tt.size, S3: S3Config{Bucket: tt.bucket}}
			assert.Equal(t, tt.want, cfg.EffectiveChunkSize())
		})
	}
}

func TestLoad_S3BucketFromEnv(t *testing.T) {
	t.Setenv("CHUNKUP_S3_BUCKET", "uploads")

	cfg, err := Load("")
	require.NoError(t, err)
	require.True(t, cfg.UseS3())
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(s3target.MinPartSize), cfg.EffectiveChunkSize())

	t.Setenv("CHUNKUP_CHUNK_SIZE", "1048576")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestConfig_UploaderOptions(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.ChunkSize = 10
	cfg.SimultaneousUploads = 1
	cfg.Headers = map[string]string{"X-Token": "t"}
	cfg.Query = map[string]string{"bucket": "b"}
	cfg.UploadMethod = "PUT"
	cfg.Encoding = string(uploader.EncodingOctet)

	tr := &testutil.MockTransport{}
	u, err := uploader.New(append(cfg.UploaderOptions(), uploader.WithTransport(tr))...)
	require.NoError(t, err)
	defer u.Close()

	f, err := u.AddFile(t.Context(), uploader.NewBytesSource("a.bin", []byte("0123456789abcdefghij")))
	require.NoError(t, err)
	assert.Len(t, f.Chunks(), 2)

	require.NoError(t, u.Upload())
	require.NoError(t, u.Wait(t.Context()))

	reqs := tr.UploadRequests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "PUT", reqs[0].Method)
	assert.Equal(t, uploader.EncodingOctet, reqs[0].Encoding)
	assert.Equal(t, "t", reqs[0].Header.Get("X-Token"))
	assert.Equal(t, "b", reqs[0].Params["bucket"])
}
