package store

import (
	"errors"
	"fmt"
)

// RangedUpdate rewrites a set of columns over every row matching Where, in a
// single statement. Each assignment picks the first case whose conditions
// hold for the row; rows matching no case keep their value. All conditions
// are evaluated against the row as it was before the statement, the way an
// SQL UPDATE evaluates its SET expressions.
type RangedUpdate struct {
	Where []Cond
	Sets  []Assignment
}

type Assignment struct {
	Field string
	Cases []Case
}

// Case either adds Add to the column or, when Set is true, replaces it with
// Value.
type Case struct {
	When  []Cond
	Add   int64
	Set   bool
	Value int64
}

func (u RangedUpdate) Validate() error {
	if len(u.Where) == 0 {
		return errors.New("ranged update needs a where clause")
	}
	seen := make(map[string]bool, len(u.Sets))
	for _, a := range u.Sets {
		if a.Field == "" {
			return errors.New("assignment without a field")
		}
		if seen[a.Field] {
			return fmt.Errorf("field %q assigned twice", a.Field)
		}
		seen[a.Field] = true
		if len(a.Cases) == 0 {
			return fmt.Errorf("assignment to %q has no cases", a.Field)
		}
	}
	for _, c := range u.Where {
		if !c.Op.Valid() {
			return fmt.Errorf("unsupported comparison %q", c.Op)
		}
	}
	return nil
}

// Apply computes the updated row. The input row is not modified.
func (u RangedUpdate) Apply(r Row) (Row, error) {
	out := r.Clone()
	for _, a := range u.Sets {
		for _, c := range a.Cases {
			ok, err := MatchAll(c.When, r)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if c.Set {
				out[a.Field] = c.Value
				break
			}
			cur, err := r.Int(a.Field)
			if err != nil {
				return nil, err
			}
			out[a.Field] = cur + c.Add
			break
		}
	}
	return out, nil
}
