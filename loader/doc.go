// Package loader populates segments from the result set of one aggregate
// query.
//
// A load streams the rows once. Column values are accumulated into per-axis
// sorted sets and each row is buffered in normalized form. After the scan
// the axes are frozen, every grouping set picks a dense or sparse layout by
// the density rule, and the buffered rows are replayed into the datasets.
//
// When several grouping sets are loaded from one GROUPING SETS query, each
// row carries one indicator per rolled-up column; the indicators form the
// row's rollup key, which selects the single grouping set the row belongs
// to.
//
// Whatever the outcome, no segment of the load is left Loading when Load
// returns: segments without data are marked Failed so waiters are released.
package loader
