// Package aggcache provides the aggregation cache of a ROLAP engine.
//
// Cells of a cube are answered from segments: the values of one measure
// over a set of column constraints, loaded by one aggregate query against
// a star schema. Segments are indexed by a single cache manager goroutine
// and stored in cache tiers: an in-process LRU tier, an optional disk tier
// and any number of shared blob tiers (S3, MinIO, local directory).
//
// # Quick Start
//
//	db, _ := sql.Open("sqlite3", "foodmart.db")
//	c, err := aggcache.New(ctx, aggcache.FactTablePlanner{}, aggcache.SQLRowSource{DB: db})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	sales := star.New("FoodMart", "v1", "sales_fact")
//	state := sales.AddColumn("state", "store_state", "sales_fact", star.String, 3)
//	unitSales := sales.AddMeasure("Sales", "Unit Sales", "unit_sales", star.Sum, star.Numeric)
//
//	r := c.NewReader()
//	defer r.Close()
//	req := aggcache.NewCellRequest(sales, unitSales).Constrain(state, "CA")
//	v, err := r.Get(ctx, req)
//	if errors.Is(err, aggcache.ErrNotCached) {
//	    _ = r.Load(ctx)
//	    v, err = r.Get(ctx, req)
//	}
//
// # Batching
//
// Misses are recorded, not loaded one by one. Load groups the recorded
// requests by star, column set and compound predicates, widens value lists
// (see OptimizePredicates), loads each group with one query and, when the
// planner supports GROUPING SETS, merges groups that differ only by rolled
// up columns into a single query.
//
// # Flushing
//
// Flush invalidates a region of a star after its data changed. Segments
// entirely inside the region are dropped; others are narrowed by recording
// the region as excluded, without reloading.
//
// # Configuration
//
// Config carries the tunables; LoadConfig reads them from a JSON file that
// may contain comments.
package aggcache
