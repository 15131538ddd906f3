package uploader_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/uploader"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/internal/testutil"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    []uploader.Option
		wantErr bool
	}{
		{
			name: "target only",
			opts: []uploader.Option{uploader.WithTarget("https://example.com/upload")},
		},
		{
			name: "transport without target",
			opts: []uploader.Option{uploader.WithTransport(&testutil.MockTransport{})},
		},
		{
			name: "target resolver",
			opts: []uploader.Option{uploader.WithTargetResolver(func(*uploader.File, *uploader.Chunk, bool) string {
				return "https://example.com"
			})},
		},
		{
			name:    "missing target",
			wantErr: true,
		},
		{
			name:    "relative target",
			opts:    []uploader.Option{uploader.WithTarget("/upload")},
			wantErr: true,
		},
		{
			name:    "ftp target",
			opts:    []uploader.Option{uploader.WithTarget("ftp://example.com/upload")},
			wantErr: true,
		},
		{
			name: "zero chunk size",
			opts: []uploader.Option{
				uploader.WithTransport(&testutil.MockTransport{}),
				uploader.WithChunkSize(0),
			},
			wantErr: true,
		},
		{
			name: "zero concurrency",
			opts: []uploader.Option{
				uploader.WithTransport(&testutil.MockTransport{}),
				uploader.WithSimultaneousUploads(0),
			},
			wantErr: true,
		},
		{
			name: "negative retries",
			opts: []uploader.Option{
				uploader.WithTransport(&testutil.MockTransport{}),
				uploader.WithMaxChunkRetries(-1),
			},
			wantErr: true,
		},
		{
			name: "no success statuses",
			opts: []uploader.Option{
				uploader.WithTransport(&testutil.MockTransport{}),
				uploader.WithSuccessStatuses(),
			},
			wantErr: true,
		},
		{
			name: "overlapping statuses",
			opts: []uploader.Option{
				uploader.WithTransport(&testutil.MockTransport{}),
				uploader.WithSuccessStatuses(http.StatusOK),
				uploader.WithPermanentErrors(http.StatusOK),
			},
			wantErr: true,
		},
		{
			name: "invalid status code",
			opts: []uploader.Option{
				uploader.WithTransport(&testutil.MockTransport{}),
				uploader.WithPermanentErrors(999),
			},
			wantErr: true,
		},
		{
			name: "unsupported method",
			opts: []uploader.Option{
				uploader.WithTransport(&testutil.MockTransport{}),
				uploader.WithUploadMethod("DELETE"),
			},
			wantErr: true,
		},
		{
			name: "unknown encoding",
			opts: []uploader.Option{
				uploader.WithTransport(&testutil.MockTransport{}),
				uploader.WithEncoding("base64"),
			},
			wantErr: true,
		},
		{
			name: "empty file parameter name",
			opts: []uploader.Option{
				uploader.WithTransport(&testutil.MockTransport{}),
				uploader.WithFileParameterName(""),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := uploader.New(tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalidInput(err), "got %v", err)
				assert.Nil(t, u)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, u)
			assert.NoError(t, u.Close())
		})
	}
}
