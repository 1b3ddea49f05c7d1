package repo

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrStaleOrder        = errors.New("order changed concurrently")
	ErrSessionAlreadySet = errors.New("order already has a payment session")
)

type GormRepo struct {
	DB *gorm.DB
}

// Page is an offset window plus a sort key. Sort must already be a column name
// from a caller allow-list; it is quoted, never interpolated.
type Page struct {
	Offset int
	Limit  int
	Sort   string
	Desc   bool
}

func (p Page) apply(q *gorm.DB, table string) *gorm.DB {
	if p.Sort != "" {
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Table: table, Name: p.Sort}, Desc: p.Desc})
	}
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}
	return q
}

func likePattern(s string) string {
	return "%" + s + "%"
}
