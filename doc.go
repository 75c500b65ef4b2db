// Package rangecache provides a read-through, block-aligned byte-range cache
// in front of a file-like storage backend.
//
// Every read is normalized into fixed-size block fetches. Blocks are served
// from a byte-bounded, shared cache and fetched from the backend only on a
// miss. Cached blocks are keyed by path, modification time, and block bounds,
// so a backend file that changes is simply never hit again.
//
// # Quick Start
//
//	ctx := context.Background()
//	m, _ := rangecache.New(blobstore.NewLocalStore("./data"),
//	    rangecache.WithCacheSize(64<<20),
//	    rangecache.WithBlockSize(4096),
//	)
//	defer m.Disconnect(ctx)
//
//	f, _ := m.Open("logs/app.log")
//	defer f.Close(ctx)
//
//	head, _ := f.ReadRange(ctx, 0, 128)
//	next, _ := f.Read(ctx, rangecache.ReadLength(64)) // continues at the cursor
//
// # Streams
//
// A Stream yields the requested range block by block, in ascending order:
//
//	s, _ := m.CreateReadStream(ctx, "logs/app.log", rangecache.StreamStart(1024))
//	for chunk, err := range s.All() {
//	    if err != nil {
//	        return err
//	    }
//	    process(chunk)
//	}
//
// Streams created by the Manager close their File when they end.
//
// # Lifecycle
//
// Files resolve their backend handle and metadata lazily and at most once.
// Close is idempotent. It rejects new reads immediately, waits for accepted
// reads to finish, and only then closes the backend handle.
//
// Disconnect closes every tracked File, collects per-file close errors into a
// *DisconnectError, and fails every later operation with ErrDisconnected.
//
// # Backends
//
// Drivers implement blobstore.Driver:
//
//	blobstore.NewLocalStore(root)   // local filesystem
//	blobstore.NewMemoryStore()      // in-memory, for tests
//	s3.New(ctx, bucket)             // Amazon S3
//	minio.NewStore(client, bucket, prefix) // MinIO and S3-compatible stores
package rangecache
