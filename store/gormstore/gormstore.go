package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bluesky-social/nestedset/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gormstore is a gorm-backed implementation of the store.Store interface
// over a single table. Column names are quoted by the dialect, so structural
// columns may use reserved words such as "left".
type Gormstore struct {
	gormOps
}

func NewGormstore(db *gorm.DB, table string) *Gormstore {
	return &Gormstore{
		gormOps: gormOps{
			db:    db,
			table: table,
		},
	}
}

func (s *Gormstore) Begin(ctx context.Context) (store.Tx, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin DB tx: %w", tx.Error)
	}
	return &gormTx{
		gormOps: gormOps{
			db:    tx,
			table: s.table,
		},
	}, nil
}

type gormTx struct {
	gormOps
}

func (tx *gormTx) Commit() error {
	if err := tx.db.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit DB tx: %w", err)
	}
	return nil
}

func (tx *gormTx) Rollback() error {
	return tx.db.Rollback().Error
}

type gormOps struct {
	db    *gorm.DB
	table string
}

func (o *gormOps) Scan(ctx context.Context, q store.Query) ([]store.Row, error) {
	db := o.db.WithContext(ctx).Table(o.table)
	if len(q.Fields) > 0 {
		db = db.Select(q.Fields)
	}
	if len(q.Where) > 0 {
		where, args, err := compileWhere(q.Where)
		if err != nil {
			return nil, err
		}
		db = db.Where(where, args...)
	}
	if q.OrderBy != "" {
		db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: q.OrderBy}})
	}

	var rows []map[string]any
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toRows(rows), nil
}

func (o *gormOps) Get(ctx context.Context, pkField string, id int64) (store.Row, error) {
	var rows []map[string]any
	if err := o.db.WithContext(ctx).Table(o.table).
		Where("? = ?", clause.Column{Name: pkField}, id).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return store.Row(rows[0]), nil
}

func (o *gormOps) Insert(ctx context.Context, pkField string, row store.Row) (int64, error) {
	if len(row) == 0 {
		return 0, errors.New("cannot insert an empty row")
	}

	cols := make([]clause.Column, 0, len(row))
	vals := make([]any, 0, len(row))
	for _, k := range sortedKeys(row) {
		cols = append(cols, clause.Column{Name: k})
		vals = append(vals, row[k])
	}

	var id int64
	if err := o.db.WithContext(ctx).
		Raw("INSERT INTO ? ? VALUES ? RETURNING ?", clause.Table{Name: o.table}, cols, vals, clause.Column{Name: pkField}).
		Scan(&id).Error; err != nil {
		return 0, err
	}
	return id, nil
}

func (o *gormOps) Delete(ctx context.Context, where []store.Cond) (int64, error) {
	if len(where) == 0 {
		return 0, gorm.ErrMissingWhereClause
	}
	sql, args, err := compileWhere(where)
	if err != nil {
		return 0, err
	}

	res := o.db.WithContext(ctx).Exec("DELETE FROM ? WHERE "+sql, append([]any{clause.Table{Name: o.table}}, args...)...)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (o *gormOps) Update(ctx context.Context, u store.RangedUpdate) (int64, error) {
	if err := u.Validate(); err != nil {
		return 0, err
	}
	where, args, err := compileWhere(u.Where)
	if err != nil {
		return 0, err
	}

	sets := make(map[string]any, len(u.Sets))
	for _, a := range u.Sets {
		expr, err := compileAssignment(a)
		if err != nil {
			return 0, err
		}
		sets[a.Field] = expr
	}

	res := o.db.WithContext(ctx).Table(o.table).Where(where, args...).UpdateColumns(sets)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (o *gormOps) Max(ctx context.Context, field string) (int64, error) {
	var out int64
	row := o.db.WithContext(ctx).Table(o.table).Select("COALESCE(MAX(?), 0)", clause.Column{Name: field}).Row()
	if err := row.Scan(&out); err != nil {
		return 0, err
	}
	return out, nil
}

// compileWhere renders a conjunction of conditions with quoted column
// placeholders.
func compileWhere(conds []store.Cond) (string, []any, error) {
	parts := make([]string, 0, len(conds))
	args := make([]any, 0, len(conds)*2)
	for _, c := range conds {
		if !c.Op.Valid() {
			return "", nil, fmt.Errorf("unsupported comparison %q", c.Op)
		}
		parts = append(parts, "? "+string(c.Op)+" ?")
		args = append(args, clause.Column{Name: c.Field}, c.Value)
	}
	return strings.Join(parts, " AND "), args, nil
}

// compileAssignment turns one assignment into
// CASE WHEN ... THEN ... ELSE <col> END.
func compileAssignment(a store.Assignment) (clause.Expr, error) {
	col := clause.Column{Name: a.Field}
	var sb strings.Builder
	var args []any

	sb.WriteString("CASE")
	for _, c := range a.Cases {
		sb.WriteString(" WHEN ")
		if len(c.When) == 0 {
			// unconditional case
			sb.WriteString("1 = 1")
		} else {
			when, wargs, err := compileWhere(c.When)
			if err != nil {
				return clause.Expr{}, err
			}
			sb.WriteString(when)
			args = append(args, wargs...)
		}
		if c.Set {
			sb.WriteString(" THEN ?")
			args = append(args, c.Value)
		} else {
			sb.WriteString(" THEN ? + ?")
			args = append(args, col, c.Add)
		}
	}
	sb.WriteString(" ELSE ? END")
	args = append(args, col)

	return gorm.Expr(sb.String(), args...), nil
}
