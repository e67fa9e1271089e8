package metrics

import (
	"cmp"
	"slices"
)

// StatusBucket is the number of responses seen for one method and status code.
type StatusBucket struct {
	Method string
	Code   string
	Count  int
}

// FlattenStatusBuckets turns method -> code -> count into rows ordered by
// descending count, then method, then code.
func FlattenStatusBuckets(buckets map[string]map[string]int) []StatusBucket {
	var rows []StatusBucket
	for method, codes := range buckets {
		for code, count := range codes {
			rows = append(rows, StatusBucket{Method: method, Code: code, Count: count})
		}
	}
	slices.SortFunc(rows, func(a, b StatusBucket) int {
		return cmp.Or(
			cmp.Compare(b.Count, a.Count),
			cmp.Compare(a.Method, b.Method),
			cmp.Compare(a.Code, b.Code),
		)
	})
	return rows
}
