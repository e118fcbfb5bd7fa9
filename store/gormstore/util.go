package gormstore

import (
	"sort"

	"github.com/bluesky-social/nestedset/store"
)

func toRows(in []map[string]any) []store.Row {
	out := make([]store.Row, len(in))
	for i, r := range in {
		out[i] = store.Row(r)
	}
	return out
}

// sortedKeys gives inserts a stable column order.
func sortedKeys(r store.Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
