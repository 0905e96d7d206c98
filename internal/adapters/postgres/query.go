package postgres

import (
	"strconv"
	"strings"
)

// query assembles the small parametrized statements used by the repositories.
type query struct {
	base  string
	conds []string
	order string
	limit int
	args  []any
}

func newQuery(base string) *query {
	return &query{base: base}
}

func (q *query) where(cond string, arg any) {
	q.args = append(q.args, arg)
	q.conds = append(q.conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(q.args))))
}

func (q *query) whereNotNull(column string) {
	q.conds = append(q.conds, column+" IS NOT NULL")
}

// whereTenant scopes the query to a tenant; "" leaves it unscoped.
func (q *query) whereTenant(tenantID string) {
	if tenantID != "" {
		q.where("client_id = ?", tenantID)
	}
}

func (q *query) orderBy(order string) {
	q.order = order
}

func (q *query) limitTo(n int) {
	q.limit = n
}

func (q *query) sql() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(q.base))
	if len(q.conds) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(q.conds, " AND "))
	}
	if q.order != "" {
		b.WriteString("\nORDER BY ")
		b.WriteString(q.order)
	}
	if q.limit > 0 {
		b.WriteString("\nLIMIT ")
		b.WriteString(strconv.Itoa(q.limit))
	}
	return b.String()
}
