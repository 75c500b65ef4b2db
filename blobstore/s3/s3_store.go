package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/rangecache/blobstore"
)

// Client is the subset of the S3 API used by Store.
type Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store implements blobstore.Driver for S3.
type Store struct {
	client     Client
	downloader *manager.Downloader
	bucket     string
	prefix     string
}

type options struct {
	prefix string
	region string
	client Client
}

// Option configures New.
type Option func(*options)

// WithPrefix sets the key prefix prepended to every path (e.g. "datasets/").
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithRegion overrides the region resolved from the default AWS config chain.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithClient uses the given client instead of loading the default AWS config.
func WithClient(c Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// New creates a Store for bucket, loading credentials from the default AWS
// config chain unless WithClient is given.
func New(ctx context.Context, bucket string, optFns ...Option) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	var o options
	for _, fn := range optFns {
		fn(&o)
	}
	client := o.client
	if client == nil {
		var loadOpts []func(*config.LoadOptions) error
		if o.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(o.region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("s3: load aws config: %w", err)
		}
		client = s3.NewFromConfig(cfg)
	}
	return NewStore(client, bucket, o.prefix), nil
}

// NewStore creates a new S3 driver.
// rootPrefix is prepended to all keys (e.g. "my-data/").
func NewStore(client Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			// Blocks are fetched as one ranged request each.
			d.Concurrency = 1
		}),
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

func (s *Store) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, blobstore.ErrNotFound
		}
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}
	return head, nil
}

// Open verifies the object exists and returns a handle for it.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Handle, error) {
	key := s.key(name)
	head, err := s.head(ctx, key)
	if err != nil {
		return nil, err
	}
	return &object{key: key, size: aws.ToInt64(head.ContentLength)}, nil
}

// Stat returns the object size and last-modified time.
func (s *Store) Stat(ctx context.Context, name string) (blobstore.Metadata, error) {
	head, err := s.head(ctx, s.key(name))
	if err != nil {
		return blobstore.Metadata{}, err
	}
	return blobstore.Metadata{
		Size:    aws.ToInt64(head.ContentLength),
		ModTime: aws.ToTime(head.LastModified),
	}, nil
}

// Close is a no-op; S3 handles hold no connection.
func (s *Store) Close(_ context.Context, h blobstore.Handle) error {
	if _, ok := h.(*object); !ok {
		return fmt.Errorf("s3: unexpected handle type %T", h)
	}
	return nil
}

// ReadAt fetches [off, off+len(p)) with a single ranged GetObject.
func (s *Store) ReadAt(ctx context.Context, h blobstore.Handle, p []byte, off int64) (int, error) {
	obj, ok := h.(*object)
	if !ok {
		return 0, fmt.Errorf("s3: unexpected handle type %T", h)
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

	buf := manager.NewWriteAtBuffer(p[:end-off+1])
	n, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(obj.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	})
	if err != nil {
		return 0, err
	}
	copied := copy(p, buf.Bytes()[:n])
	if copied < len(p) {
		return copied, io.EOF
	}
	return copied, nil
}
