// Command chunkup uploads files in chunks to an HTTP endpoint or an S3
// bucket.
//
//	chunkup -target https://example.com/upload report.pdf photos/
//	chunkup -bucket uploads -prefix incoming/ -chunk-size 8388608 backup.tar
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/input-output-hk/catalyst-forge-libs/uploader"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/internal/config"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/internal/logging"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/s3target"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("chunkup", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintln(stderr, "usage: chunkup [flags] FILE|DIR...")
		flags.PrintDefaults()
	}

	headers := headerFlags{}
	var (
		configPath  = flags.String("config", "", "configuration file")
		target      = flags.String("target", "", "URL chunks are sent to")
		bucket      = flags.String("bucket", "", "S3 bucket chunks are stored in")
		prefix      = flags.String("prefix", "", "S3 key prefix")
		region      = flags.String("region", "", "AWS region")
		endpoint    = flags.String("endpoint", "", "custom S3 endpoint")
		chunkSize   = flags.Int64("chunk-size", 0, "chunk size in bytes")
		concurrency = flags.Int("concurrency", 0, "simultaneous chunk uploads")
		retries     = flags.Int("retries", 0, "retries per chunk")
		testChunks  = flags.Bool("test-chunks", false, "ask the server for each chunk before sending it")
		logLevel    = flags.String("log-level", "", "debug, info, warn or error")
	)
	flags.Var(headers, "H", "extra request header \"Name: value\", repeatable")

	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "chunkup: %v\n", err)
		return 2
	}

	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "target":
			cfg.Target = *target
		case "bucket":
			cfg.S3.Bucket = *bucket
		case "prefix":
			cfg.S3.Prefix = *prefix
		case "region":
			cfg.S3.Region = *region
		case "endpoint":
			cfg.S3.Endpoint = *endpoint
			cfg.S3.ForcePathStyle = true
		case "chunk-size":
			cfg.ChunkSize = *chunkSize
		case "concurrency":
			cfg.SimultaneousUploads = *concurrency
		case "retries":
			cfg.MaxChunkRetries = *retries
		case "test-chunks":
			cfg.TestChunks = *testChunks
		case "log-level":
			cfg.LogLevel = *logLevel
		case "H":
			if cfg.Headers == nil {
				cfg.Headers = map[string]string{}
			}
			for k, v := range headers {
				cfg.Headers[k] = v
			}
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "chunkup: %v\n", err)
		return 2
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger := logging.New(stdout, level)

	if err := upload(ctx, cfg, logger, flags.Args()); err != nil {
		logger.Error("upload failed", "error", err)
		return 1
	}
	return 0
}

func upload(ctx context.Context, cfg *config.Config, logger *slog.Logger, paths []string) error {
	opts := append(cfg.UploaderOptions(), uploader.WithLogger(logger))

	var s3t *s3target.Transport
	if cfg.UseS3() {
		var err error
		s3t, err = s3target.New(ctx, cfg.S3.Bucket,
			s3target.WithKeyPrefix(cfg.S3.Prefix),
			s3target.WithRegion(cfg.S3.Region),
			s3target.WithEndpoint(cfg.S3.Endpoint),
			s3target.WithForcePathStyle(cfg.S3.ForcePathStyle),
			s3target.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("create s3 transport: %w", err)
		}
		opts = append(opts,
			uploader.WithTransport(s3t),
			uploader.WithPermanentErrors(s3target.PermanentErrors...),
		)
	} else {
		opts = append(opts, uploader.WithTarget(cfg.Target))
	}

	u, err := uploader.New(opts...)
	if err != nil {
		return fmt.Errorf("create uploader: %w", err)
	}
	defer func() { _ = u.Close() }()

	u.On(func(e uploader.Event) {
		logger.Info("progress",
			"file", e.File.RelativePath(),
			"progress", fmt.Sprintf("%.1f%%", e.File.Progress()*100),
			"speed", int64(e.File.AverageSpeed()),
			"remaining", e.File.TimeRemaining().Round(time.Second).String(),
		)
	}, uploader.EventFileProgress)

	if s3t != nil {
		u.On(func(e uploader.Event) {
			if err := s3t.Abort(ctx, e.File.Identifier()); err != nil {
				logger.Warn("abort multipart upload", "file", e.File.RelativePath(), "error", err)
			}
		}, uploader.EventFileError)
	}

	var errs []error
	for _, p := range paths {
		if err := addPath(ctx, u, p); err != nil {
			errs = append(errs, err)
		}
	}
	if len(u.Files()) == 0 {
		return stderrors.Join(append(errs, fmt.Errorf("no files to upload"))...)
	}

	start := time.Now()
	if err := u.Upload(); err != nil {
		return err
	}

	if err := u.Wait(ctx); err != nil {
		errs = append(errs, err)
		if ctx.Err() != nil && s3t != nil {
			abortIncomplete(u, s3t, logger)
		}
	}

	logger.Info("upload finished",
		"files", len(u.Files()),
		"bytes", u.SizeUploaded(),
		"total", u.TotalSize(),
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	return stderrors.Join(errs...)
}

func addPath(ctx context.Context, u *uploader.Uploader, p string) error {
	abs, err := filepath.Abs(p)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", p, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}

	fsys := osfs.New(filepath.Dir(abs))
	if info.IsDir() {
		_, err = u.AddDir(ctx, fsys, filepath.Base(abs))
		return err
	}
	_, err = u.AddPath(ctx, fsys, filepath.Base(abs))
	return err
}

// abortIncomplete discards the stored parts of files left unfinished by an
// interrupted run.
func abortIncomplete(u *uploader.Uploader, s3t *s3target.Transport, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, f := range u.Files() {
		if f.IsComplete() {
			continue
		}
		if err := s3t.Abort(ctx, f.Identifier()); err != nil {
			logger.Warn("abort multipart upload", "file", f.RelativePath(), "error", err)
		}
	}
}
