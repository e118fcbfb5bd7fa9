package store

import (
	"sort"
)

// SortRows orders rows ascending by an integer column. Rows whose column
// cannot be read sort first; ties keep their input order.
func SortRows(rows []Row, field string) {
	if field == "" {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := rows[i].Int(field)
		b, _ := rows[j].Int(field)
		return a < b
	})
}

// Project returns a copy of the row holding only the named columns. A nil or
// empty field list copies every column.
func Project(r Row, fields []string) Row {
	if len(fields) == 0 {
		return r.Clone()
	}
	out := make(Row, len(fields))
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Filter runs q over an unordered set of rows, the way the non-SQL backends
// answer Scan.
func Filter(rows []Row, q Query) ([]Row, error) {
	var out []Row
	for _, r := range rows {
		ok, err := MatchAll(q.Where, r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	// sort before projecting, the order column may not be selected
	SortRows(out, q.OrderBy)
	for i := range out {
		out[i] = Project(out[i], q.Fields)
	}
	return out, nil
}
