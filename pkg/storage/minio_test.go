package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	bucket, object, contentType string
	body                        []byte
	err                         error
}

func (f *fakePutter) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	f.bucket, f.object, f.contentType = bucketName, objectName, opts.ContentType
	b, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.body = b
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, nil
}

func TestObjectName(t *testing.T) {
	at := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("UTC+8", 8*3600))
	assert.Equal(t, "dead-letters/2024-03-09/failed/chat-0-42.json", objectName(at, "/failed/chat-0-42/"))
}

func TestDeadLetterStore_Archive(t *testing.T) {
	putter := &fakePutter{}
	store := &DeadLetterStore{
		client: putter,
		bucket: "digests",
		now:    func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	}

	require.NoError(t, store.Archive(context.Background(), "undecodable/t-1-7", []byte(`{"bad":true}`)))
	assert.Equal(t, "digests", putter.bucket)
	assert.Equal(t, "dead-letters/2024-01-02/undecodable/t-1-7.json", putter.object)
	assert.Equal(t, "application/json", putter.contentType)
	assert.Equal(t, `{"bad":true}`, string(putter.body))
}

func TestDeadLetterStore_ArchiveError(t *testing.T) {
	store := &DeadLetterStore{client: &fakePutter{err: errors.New("down")}, bucket: "b", now: time.Now}
	err := store.Archive(context.Background(), "k", []byte("{}"))
	assert.ErrorContains(t, err, "down")
}
