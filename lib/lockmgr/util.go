package lockmgr

import (
	"github.com/ValentinKolb/kvs/lib/db"
)

// planBuckets maps keys to their distinct bucket indices in ascending order.
// Since the number of buckets is fixed a presence table replaces sorting.
func planBuckets(table *db.Table, keys []string) []int {
	var touched [db.TableSize]bool
	n := 0
	for _, key := range keys {
		idx := table.BucketOf(key)
		if !touched[idx] {
			touched[idx] = true
			n++
		}
	}

	buckets := make([]int, 0, n)
	for idx, ok := range touched {
		if ok {
			buckets = append(buckets, idx)
		}
	}
	return buckets
}
