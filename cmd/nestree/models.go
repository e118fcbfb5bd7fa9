package main

// Category is the row layout `nestree init` creates: the default structural
// columns plus a name payload.
type Category struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	LeftKey  int64  `gorm:"column:left_key;not null;index:idx_categories_bounds,priority:1"`
	RightKey int64  `gorm:"column:right_key;not null;index:idx_categories_bounds,priority:2"`
	ParentID int64  `gorm:"column:parent_id;not null;default:0;index"`
	Level    int64  `gorm:"column:level;not null"`
	Name     string `gorm:"column:name"`
}
