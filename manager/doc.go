// Package manager implements the segment cache manager: a single goroutine
// that owns the segment index and serializes every change to it.
//
// Callers talk to the manager through commands, which block until the
// actor replies, and events, which are fire-and-forget:
//
//	commands: Peek, Register, Flush, FindRollup, State, Sync, Shutdown
//	events:   LoadSucceeded, LoadFailed, Remove, ExternalCreated, ExternalDeleted
//
// The actor never performs tier IO itself. Reads and writes to the cache
// tiers run on an executor pool; their outcomes come back to the actor as
// events. Tier listeners feed non-local changes (evictions, other
// processes) back into the same queue, which keeps the index coherent
// across processes sharing a tier.
package manager
