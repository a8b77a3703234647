// Package cache provides the storage tiers behind the segment cache
// manager.
//
// A Tier stores segment header/body pairs keyed by header identity. Tiers
// never see live schema objects: headers and bodies are self-describing and
// serializable, so a tier may live in this process, on local disk, or in a
// shared object store used by many processes.
//
// Implementations:
//
//   - MemoryTier: in-process LRU bounded by bytes and a resource controller
//   - DiskTier: a local directory with an in-memory LRU index, rebuilt on
//     startup
//   - BlobTier: any blobstore.Store (S3, MinIO, local, memory); a Watcher
//     turns changes made by other processes into events
//   - Composite: reads tiers in order and fans writes out to all of them
//
// Tiers report created and deleted segments to subscribed listeners. Local
// events echo this process's own calls; non-local events (evictions,
// remote changes) tell the manager that its index is out of date.
package cache
