package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	getErr  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func newFake() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func TestS3StoragePutGetDelete(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	store := NewWithClient(fake, "docs", logger.NewNop())

	require.NoError(t, store.Put(ctx, "uploads/a.pdf", bytes.NewReader([]byte("%PDF-1.4")), 8, "application/pdf"))
	assert.Equal(t, "application/pdf", fake.types["uploads/a.pdf"])

	rc, err := store.Get(ctx, "uploads/a.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, store.Delete(ctx, "uploads/a.pdf"))
	_, err = store.Get(ctx, "uploads/a.pdf")
	assert.ErrorIs(t, err, models.ErrObjectNotFound)
}

func TestS3StorageGetError(t *testing.T) {
	fake := newFake()
	fake.getErr = errors.New("access denied")
	store := NewWithClient(fake, "docs", logger.NewNop())

	_, err := store.Get(context.Background(), "x.pdf")
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrObjectNotFound)
	assert.Contains(t, err.Error(), "access denied")
}
