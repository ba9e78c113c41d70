package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditdocs-backend/internal/shared/storage/object"
)

type fakeAPI struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	getErr  error
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[aws.ToString(in.Key)] = body
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "owner/statement.pdf", want: "owner/statement.pdf"},
		{name: "prefix", prefix: "docs", key: "owner/statement.pdf", want: "docs/owner/statement.pdf"},
		{name: "slashes trimmed", prefix: "/docs/", key: "/owner/statement.pdf", want: "docs/owner/statement.pdf"},
		{name: "empty key", prefix: "docs", key: "", want: "docs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, applyPrefix(tt.prefix, tt.key))
		})
	}
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), "us-east-1", "", "", "")
	require.Error(t, err)
}

func TestSaveAndOpen(t *testing.T) {
	api := &fakeAPI{}
	store := newStore(api, "bucket", " /docs/ ", "")

	key, size, mimeType, err := store.Save(context.Background(), "owner-1", "bank statement.pdf", strings.NewReader("%PDF-1.4 body"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("%PDF-1.4 body")), size)
	assert.Equal(t, "application/pdf", mimeType)
	assert.True(t, strings.HasPrefix(key, object.OwnerDir("owner-1")+"/"))
	assert.True(t, strings.HasSuffix(key, "_bank statement.pdf"))

	require.Len(t, api.puts, 1)
	assert.Equal(t, "docs/"+key, aws.ToString(api.puts[0].Key))
	assert.Equal(t, s3types.ServerSideEncryptionAes256, api.puts[0].ServerSideEncryption)

	rc, err := store.Open(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(body))
}

func TestSaveUsesKMSKey(t *testing.T) {
	api := &fakeAPI{}
	store := newStore(api, "bucket", "", "kms-123")

	_, _, _, err := store.Save(context.Background(), "owner-1", "a.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	require.Len(t, api.puts, 1)
	assert.Equal(t, s3types.ServerSideEncryptionAwsKms, api.puts[0].ServerSideEncryption)
	assert.Equal(t, "kms-123", aws.ToString(api.puts[0].SSEKMSKeyId))
}

func TestSaveRejectsTraversal(t *testing.T) {
	store := newStore(&fakeAPI{}, "bucket", "", "")
	_, _, _, err := store.Save(context.Background(), "owner-1", "../etc/passwd", strings.NewReader("x"))
	require.ErrorIs(t, err, object.ErrInvalidFileName)
}

func TestOpenMissingIsNotFound(t *testing.T) {
	store := newStore(&fakeAPI{}, "bucket", "", "")
	_, err := store.Open(context.Background(), "owner/missing.pdf")
	require.ErrorIs(t, err, object.ErrNotFound)
}
