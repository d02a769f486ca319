package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-ecm/pkg/ecm"
)

func TestHasErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("head bucket: %w", &smithy.GenericAPIError{Code: "NoSuchBucket"})

	assert.True(t, hasErrorCode(wrapped, "NotFound", "NoSuchBucket"))
	assert.False(t, hasErrorCode(wrapped, "NoSuchKey"))
	assert.False(t, hasErrorCode(errors.New("NoSuchBucket"), "NoSuchBucket"))
}

func TestNewValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(ctx, Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("InvalidSSE", func(t *testing.T) {
		_, err := New(ctx, Config{Bucket: "b", EnableSSE: true, SSEAlgorithm: "rot13"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid SSE algorithm")
	})

	t.Run("DefaultRegion", func(t *testing.T) {
		backend, err := New(ctx, Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", backend.config.Region)
	})
}

func TestPutInput(t *testing.T) {
	tests := []struct {
		name       string
		config     Config
		wantKey    string
		wantSSE    types.ServerSideEncryption
		wantKMSKey string
	}{
		{
			name:    "plain",
			config:  Config{Bucket: "b"},
			wantKey: "nodes/x/1",
		},
		{
			name:    "prefix",
			config:  Config{Bucket: "b", Prefix: "ecm/"},
			wantKey: "ecm/nodes/x/1",
		},
		{
			name:    "aes256",
			config:  Config{Bucket: "b", EnableSSE: true, SSEAlgorithm: "AES256"},
			wantKey: "nodes/x/1",
			wantSSE: types.ServerSideEncryptionAes256,
		},
		{
			name:       "kms",
			config:     Config{Bucket: "b", EnableSSE: true, SSEAlgorithm: "aws:kms", SSEKMSKeyID: "key-1"},
			wantKey:    "nodes/x/1",
			wantSSE:    types.ServerSideEncryptionAwsKms,
			wantKMSKey: "key-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Backend{bucket: tt.config.Bucket, config: tt.config}
			input := b.putInput("nodes/x/1", strings.NewReader(""), "text/html")

			assert.Equal(t, "b", *input.Bucket)
			assert.Equal(t, tt.wantKey, *input.Key)
			assert.Equal(t, "text/html", *input.ContentType)
			assert.Equal(t, tt.wantSSE, input.ServerSideEncryption)
			if tt.wantKMSKey != "" {
				require.NotNil(t, input.SSEKMSKeyId)
				assert.Equal(t, tt.wantKMSKey, *input.SSEKMSKeyId)
			} else {
				assert.Nil(t, input.SSEKMSKeyId)
			}
		})
	}
}

// TestMinIORoundTrip runs against an S3-compatible endpoint when
// S3_ENDPOINT is set.
func TestMinIORoundTrip(t *testing.T) {
	endpoint := os.Getenv("S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("S3_ENDPOINT not set")
	}
	ctx := context.Background()

	backend, err := New(ctx, Config{
		Region:                 "us-east-1",
		Bucket:                 "ecm-test",
		AccessKeyID:            getenv("S3_ACCESS_KEY_ID", "minioadmin"),
		SecretAccessKey:        getenv("S3_SECRET_ACCESS_KEY", "minioadmin"),
		Endpoint:               endpoint,
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	if err != nil {
		t.Skipf("minio not available: %v", err)
	}

	key := "nodes/" + uuid.NewString()
	require.NoError(t, backend.Upload(ctx, key, bytes.NewBufferString("hello"), "text/plain"))

	rc, err := backend.Download(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))

	require.NoError(t, backend.Delete(ctx, key))
	_, err = backend.Download(ctx, key)
	assert.ErrorIs(t, err, ecm.ErrBlobNotFound)
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
