// Package s3 provides an Amazon S3 implementation of blobstore.Store.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("aggcache/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	tier := cache.NewBlobTier(store, cache.WithBlobCompression(codec.CompressionZSTD))
//
// Listing a large bucket is slow and billed per request. IndexedStore keeps
// the names in a DynamoDB table so that the blob tier watcher can poll
// cheaply:
//
//	store := s3.NewIndexedStore(base, dynamodb.NewFromConfig(cfg), "aggcache-index", "s3://my-bucket/aggcache")
//
// # Features
//
//   - CRC32C integrity checks on single-part uploads
//   - Multipart uploads above a configurable threshold
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
