// Package uploader uploads files in chunks over a bounded number of
// concurrent requests, with retries, resumable existence checks and progress
// events.
//
// Files are split into contiguous byte ranges when added. Upload dispatches
// pending chunks in file insertion order and chunk offset order until the
// configured number of simultaneous uploads is reached; each finished chunk
// frees a slot for the next one. A chunk moves through
//
//	pending -> reading -> (testing) -> uploading -> success | error
//
// and returns to uploading when a retryable status is received. Statuses are
// classified with the success and permanent error lists; anything else is
// retried until the retry budget is used.
//
// Basic usage:
//
//	u, err := uploader.New(
//	    uploader.WithTarget("https://example.com/upload"),
//	    uploader.WithChunkSize(4<<20),
//	    uploader.WithMaxChunkRetries(3),
//	    uploader.WithRetryBackoff(200*time.Millisecond, 10*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	defer u.Close()
//
//	u.On(func(e uploader.Event) {
//	    log.Printf("%s done", e.File.Name())
//	}, uploader.EventFileSuccess)
//
//	if _, err := u.AddPath(ctx, osfs.New("/data"), "video.mp4"); err != nil {
//	    return err
//	}
//	if err := u.Upload(); err != nil {
//	    return err
//	}
//	return u.Wait(ctx)
//
// Requests go through a Transport. The default HTTPTransport sends multipart
// or raw octet bodies; package s3target stores chunks as the parts of an S3
// multipart upload instead.
package uploader
