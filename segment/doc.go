// Package segment holds the cached unit of the aggregation cache: one
// measure's values over a fixed set of column constraints.
//
// A Segment starts Loading and moves exactly once to Ready (axes and a
// Dataset attached) or Failed. Readers block on the segment's gate until it
// leaves Loading. Once Ready, axes and dataset are frozen and may be read
// from any goroutine without further locking.
//
// Segments cross process and tier boundaries only as a Header (identity,
// content-addressed by a SHA-256 checksum) plus a Body (payload). ToHeader,
// ToBody and FromHeaderBody convert between the two forms without loss;
// Rollup merges several segments into one of lower dimensionality.
//
// Cell storage is either dense (one slot per addressable cell, row-major
// with the last axis varying fastest, plus a roaring bitmap marking cells
// without data) or sparse (a map from cell key to value). UseSparse decides
// between them.
package segment
