package report

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestUpload(t *testing.T) {
	local := filepath.Join(t.TempDir(), "search_inn_2026-01-02_03-04-05.xlsx")
	require.NoError(t, os.WriteFile(local, []byte("workbook"), 0o600))

	t.Run("puts the workbook under run prefix", func(t *testing.T) {
		client := &fakeS3{}
		u, err := NewWithClient(client, "reports", "innsearch")
		require.NoError(t, err)

		key, err := u.Upload(context.Background(), "run-1", local, map[string]string{"found": "3"})
		require.NoError(t, err)

		assert.Equal(t, "innsearch/run-1/search_inn_2026-01-02_03-04-05.xlsx", key)
		assert.Equal(t, "reports", aws.ToString(client.input.Bucket))
		assert.Equal(t, key, aws.ToString(client.input.Key))
		assert.Equal(t, workbookContentType, aws.ToString(client.input.ContentType))
		assert.Equal(t, int64(len("workbook")), aws.ToInt64(client.input.ContentLength))
		assert.Equal(t, map[string]string{"run-id": "run-1", "found": "3"}, client.input.Metadata)
		assert.Equal(t, "workbook", string(client.body))
	})

	t.Run("put errors are wrapped", func(t *testing.T) {
		putErr := errors.New("access denied")
		u, err := NewWithClient(&fakeS3{err: putErr}, "reports", "")
		require.NoError(t, err)
		_, err = u.Upload(context.Background(), "run-1", local, nil)
		assert.ErrorIs(t, err, putErr)
	})

	t.Run("missing workbook", func(t *testing.T) {
		u, err := NewWithClient(&fakeS3{}, "reports", "")
		require.NoError(t, err)
		_, err = u.Upload(context.Background(), "run-1", filepath.Join(t.TempDir(), "none.xlsx"), nil)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestNewValidation(t *testing.T) {
	_, err := NewWithClient(nil, "b", "")
	assert.Error(t, err)
	_, err = NewWithClient(&fakeS3{}, "", "")
	assert.Error(t, err)
	_, err = New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestNewBuildsClient(t *testing.T) {
	u, err := New(context.Background(), Config{
		Bucket:          "reports",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		PathStyle:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "reports", u.bucket)
}
