package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

type Op string

const (
	OpEq Op = "="
	OpNe Op = "<>"
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

func (o Op) Valid() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// Cond compares an integer column against a constant.
type Cond struct {
	Field string
	Op    Op
	Value int64
}

func Eq(field string, v int64) Cond { return Cond{Field: field, Op: OpEq, Value: v} }
func Lt(field string, v int64) Cond { return Cond{Field: field, Op: OpLt, Value: v} }
func Le(field string, v int64) Cond { return Cond{Field: field, Op: OpLe, Value: v} }
func Gt(field string, v int64) Cond { return Cond{Field: field, Op: OpGt, Value: v} }
func Ge(field string, v int64) Cond { return Cond{Field: field, Op: OpGe, Value: v} }

func (c Cond) String() string {
	return fmt.Sprintf("%s %s %d", c.Field, c.Op, c.Value)
}

// Match evaluates the condition against a row.
func (c Cond) Match(r Row) (bool, error) {
	v, err := r.Int(c.Field)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case OpEq:
		return v == c.Value, nil
	case OpNe:
		return v != c.Value, nil
	case OpLt:
		return v < c.Value, nil
	case OpLe:
		return v <= c.Value, nil
	case OpGt:
		return v > c.Value, nil
	case OpGe:
		return v >= c.Value, nil
	default:
		return false, fmt.Errorf("unsupported comparison %q", c.Op)
	}
}

// MatchAll reports whether the row satisfies every condition. An empty set
// matches everything.
func MatchAll(conds []Cond, r Row) (bool, error) {
	for _, c := range conds {
		ok, err := c.Match(r)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// ToInt64 normalizes the integer representations handed back by the
// various drivers and decoders.
func ToInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("value %v is not an integer", n)
		}
		return int64(n), nil
	case float32:
		return ToInt64(float64(n))
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case nil:
		return 0, fmt.Errorf("value is null")
	default:
		return 0, fmt.Errorf("unsupported integer type %T", v)
	}
}
