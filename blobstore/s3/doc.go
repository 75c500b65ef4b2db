// Package s3 provides an S3 implementation of the blobstore.Driver interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("datasets/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	mgr, err := rangecache.New(store, rangecache.WithBlockSize(1<<20))
//
// # Features
//
//   - Metadata via HeadObject (size, last-modified fingerprint)
//   - Block reads as single ranged GetObject requests through the transfer manager
//   - Configurable prefix for multi-tenant isolation
package s3
