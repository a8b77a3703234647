// Package star models the physical star schema that cached segments are
// built over: a fact table, its constrained columns and its measures.
//
// The cache treats a Star as an opaque collaborator. Columns are addressed
// by ordinal (their bit position in a bitkey.BitKey) and by expression
// (their stable, serializable identity). Once a Star is handed to the cache
// its column list must not grow: every bit-key derived from it has the
// width of the column list at that time.
//
// The package also defines the value domain shared by predicates, axes and
// wire forms: strings, int64, float64 and bool, plus the Null marker which
// sorts after every other value.
package star
