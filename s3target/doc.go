// Package s3target provides an uploader.Transport that stores chunks as the
// parts of S3 multipart uploads.
//
// Each file identifier maps to one multipart upload. The first upload
// request of a file creates it under the key prefix plus the file's relative
// path, chunk N is stored as part N, and the upload is completed once every
// chunk has been stored. Test requests answer 200 when the part exists and
// 204 otherwise, so the uploader's test-before-upload mode resumes
// interrupted files within a session.
//
// S3 rejects parts below MinPartSize except the last one, so use a chunk
// size of at least 5MB:
//
//	t, err := s3target.New(ctx, "my-bucket", s3target.WithKeyPrefix("incoming/"))
//	if err != nil {
//	    return err
//	}
//	u, err := uploader.New(
//	    uploader.WithTransport(t),
//	    uploader.WithChunkSize(8<<20),
//	    uploader.WithPermanentErrors(s3target.PermanentErrors...),
//	)
package s3target
