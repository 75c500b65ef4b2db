package minio

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/hupe1980/rangecache/blobstore"
	"github.com/minio/minio-go/v7"
)

// Store implements blobstore.Driver for MinIO and S3-compatible storage.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore creates a new MinIO driver.
// bucket is the MinIO bucket name.
// rootPrefix is prepended to all keys (e.g. "datasets/").
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// object is the handle returned by Open.
type object struct {
	key  string
	size int64
}

func (s *Store) stat(ctx context.Context, key string) (minio.ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return minio.ObjectInfo{}, blobstore.ErrNotFound
		}
		return minio.ObjectInfo{}, err
	}
	return info, nil
}

func isNotFound(err error) bool {
	errResp := minio.ToErrorResponse(err)
	return errResp.Code == "NoSuchKey" || errResp.Code == "NotFound"
}

// Open verifies the object exists and returns a handle for it.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Handle, error) {
	key := s.key(name)
	info, err := s.stat(ctx, key)
	if err != nil {
		return nil, err
	}
	return &object{key: key, size: info.Size}, nil
}

// Stat returns the object size and last-modified time.
func (s *Store) Stat(ctx context.Context, name string) (blobstore.Metadata, error) {
	info, err := s.stat(ctx, s.key(name))
	if err != nil {
		return blobstore.Metadata{}, err
	}
	return blobstore.Metadata{Size: info.Size, ModTime: info.LastModified}, nil
}

// Close is a no-op; MinIO handles hold no connection.
func (s *Store) Close(_ context.Context, h blobstore.Handle) error {
	if _, ok := h.(*object); !ok {
		return fmt.Errorf("minio: unexpected handle type %T", h)
	}
	return nil
}

// ReadAt fetches [off, off+len(p)) with a single ranged GetObject.
func (s *Store) ReadAt(ctx context.Context, h blobstore.Handle, p []byte, off int64) (int, error) {
	obj, ok := h.(*object)
	if !ok {
		return 0, fmt.Errorf("minio: unexpected handle type %T", h)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= obj.size {
		return 0, io.EOF
	}

	end := off + int64(len(p)) - 1
	if end >= obj.size {
		end = obj.size - 1
	}
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, end); err != nil {
		return 0, err
	}

	o, err := s.client.GetObject(ctx, s.bucket, obj.key, opts)
	if err != nil {
		return 0, err
	}
	defer o.Close()

	n, err := io.ReadFull(o, p[:end-off+1])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
