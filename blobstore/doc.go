// Package blobstore provides the byte-object stores behind the blob cache
// tier.
//
// A Store holds immutable, whole objects addressed by slash-separated
// names. Segment headers and bodies are small enough to be read and
// written in one piece, so the interface has no range reads or streaming
// writers. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process, for tests and single-process deployments
//   - LocalStore: a directory, written atomically with rename
//   - s3.Store / s3.IndexedStore: Amazon S3, optionally indexed in DynamoDB
//   - minio.Store: MinIO and other S3-compatible servers
package blobstore
