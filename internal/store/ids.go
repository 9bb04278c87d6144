package store

import (
	"slices"

	"github.com/lib/pq"
)

// idArray adapts ids for "= ANY($n)" parameters.
func idArray(ids []int) any {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return pq.Array(out)
}

// MissingIDs returns the ids in requested that are not in found, in the
// order they were requested and without repeats.
func MissingIDs(requested, found []int) []int {
	present := make(map[int]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
	}
	var missing []int
	for _, id := range requested {
		if _, ok := present[id]; ok {
			continue
		}
		if slices.Contains(missing, id) {
			continue
		}
		missing = append(missing, id)
	}
	return missing
}
