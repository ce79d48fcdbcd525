// File: internal/core/builder.go
package core

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Row is one scanned result row keyed by column name.
type Row = map[string]interface{}

// Table returns the quoted, schema-qualified name of a relation.
func Table(namespace, name string) string {
	if namespace == "" {
		return pq.QuoteIdentifier(name)
	}
	return pq.QuoteIdentifier(namespace) + "." + pq.QuoteIdentifier(name)
}

// QueryBuilder is a fluent SELECT builder
type QueryBuilder struct {
	db         Querier
	table      string
	selectCols []string
	whereOps   []string
	args       []interface{}
	orderBy    []string
	limit      int
	offset     int
}

func NewQueryBuilder(db Querier) *QueryBuilder {
	return &QueryBuilder{db: db}
}

// From sets the already quoted relation to select from
func (qb *QueryBuilder) From(table string) *QueryBuilder {
	qb.table = table
	return qb
}

// Select sets the selected columns; names are quoted
func (qb *QueryBuilder) Select(cols ...string) *QueryBuilder {
	qb.selectCols = cols
	return qb
}

// Where adds a condition joined with AND; use ? for placeholders
func (qb *QueryBuilder) Where(cond string, vals ...interface{}) *QueryBuilder {
	qb.whereOps = append(qb.whereOps, cond)
	qb.args = append(qb.args, vals...)
	return qb
}

// WhereEq adds `"col" = ?`
func (qb *QueryBuilder) WhereEq(col string, val interface{}) *QueryBuilder {
	return qb.Where(pq.QuoteIdentifier(col)+" = ?", val)
}

// OrderBy appends an ORDER BY column, ascending
func (qb *QueryBuilder) OrderBy(cols ...string) *QueryBuilder {
	qb.orderBy = append(qb.orderBy, cols...)
	return qb
}

// Limit sets the LIMIT clause
func (qb *QueryBuilder) Limit(n int) *QueryBuilder {
	qb.limit = n
	return qb
}

// Offset sets the OFFSET clause
func (qb *QueryBuilder) Offset(n int) *QueryBuilder {
	qb.offset = n
	return qb
}

// Build assembles the SQL query string and returns it with args
func (qb *QueryBuilder) Build() (string, []interface{}) {
	parts := []string{"SELECT"}
	if len(qb.selectCols) > 0 {
		parts = append(parts, quoteAll(qb.selectCols))
	} else {
		parts = append(parts, "*")
	}
	parts = append(parts, "FROM", qb.table)
	if len(qb.whereOps) > 0 {
		parts = append(parts, "WHERE", strings.Join(qb.whereOps, " AND "))
	}
	if len(qb.orderBy) > 0 {
		parts = append(parts, "ORDER BY", quoteAll(qb.orderBy))
	}
	if qb.limit > 0 {
		parts = append(parts, fmt.Sprintf("LIMIT %d", qb.limit))
	}
	if qb.offset > 0 {
		parts = append(parts, fmt.Sprintf("OFFSET %d", qb.offset))
	}
	return numberPlaceholders(strings.Join(parts, " ")), qb.args
}

// All executes the built query and scans every row
func (qb *QueryBuilder) All(ctx context.Context) ([]Row, error) {
	query, args := qb.Build()
	return QueryRows(ctx, qb.db, query, args...)
}

// One fetches a single row; sql.ErrNoRows when nothing matches
func (qb *QueryBuilder) One(ctx context.Context) (Row, error) {
	qb.limit = 1
	return first(qb.All(ctx))
}

// Count returns the count of matching records
func (qb *QueryBuilder) Count(ctx context.Context) (int64, error) {
	var count int64
	query := "SELECT COUNT(*) FROM " + qb.table
	if len(qb.whereOps) > 0 {
		query += " WHERE " + strings.Join(qb.whereOps, " AND ")
	}
	rows, err := qb.db.QueryContext(ctx, numberPlaceholders(query), qb.args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, sql.ErrNoRows
	}
	if err := rows.Scan(&count); err != nil {
		return 0, err
	}
	return count, rows.Err()
}

// InsertBuilder builds INSERT ... RETURNING *
type InsertBuilder struct {
	db     Querier
	table  string
	values map[string]interface{}
}

func NewInsertBuilder(db Querier, table string) *InsertBuilder {
	return &InsertBuilder{db: db, table: table, values: map[string]interface{}{}}
}

// Set assigns a column value
func (ib *InsertBuilder) Set(col string, val interface{}) *InsertBuilder {
	ib.values[col] = val
	return ib
}

// Build assembles the statement; columns are emitted in sorted order
func (ib *InsertBuilder) Build() (string, []interface{}) {
	if len(ib.values) == 0 {
		return "INSERT INTO " + ib.table + " DEFAULT VALUES RETURNING *", nil
	}
	cols := sortedKeys(ib.values)
	args := make([]interface{}, len(cols))
	holders := make([]string, len(cols))
	for i, c := range cols {
		args[i] = ib.values[c]
		holders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		ib.table, quoteAll(cols), strings.Join(holders, ", "))
	return query, args
}

// Exec runs the insert and returns the inserted row
func (ib *InsertBuilder) Exec(ctx context.Context) (Row, error) {
	query, args := ib.Build()
	return first(QueryRows(ctx, ib.db, query, args...))
}

// UpdateBuilder builds UPDATE ... RETURNING *
type UpdateBuilder struct {
	db       Querier
	table    string
	values   map[string]interface{}
	whereOps []string
	args     []interface{}
}

func NewUpdateBuilder(db Querier, table string) *UpdateBuilder {
	return &UpdateBuilder{db: db, table: table, values: map[string]interface{}{}}
}

// Set assigns a column value
func (ub *UpdateBuilder) Set(col string, val interface{}) *UpdateBuilder {
	ub.values[col] = val
	return ub
}

// WhereEq adds `"col" = ?`
func (ub *UpdateBuilder) WhereEq(col string, val interface{}) *UpdateBuilder {
	ub.whereOps = append(ub.whereOps, pq.QuoteIdentifier(col)+" = ?")
	ub.args = append(ub.args, val)
	return ub
}

// Build assembles the statement. With no values the row is returned untouched.
func (ub *UpdateBuilder) Build() (string, []interface{}) {
	cols := sortedKeys(ub.values)
	args := make([]interface{}, 0, len(cols)+len(ub.args))
	var query string
	if len(cols) == 0 {
		query = "SELECT * FROM " + ub.table
	} else {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = pq.QuoteIdentifier(c) + " = ?"
			args = append(args, ub.values[c])
		}
		query = "UPDATE " + ub.table + " SET " + strings.Join(sets, ", ")
	}
	if len(ub.whereOps) > 0 {
		query += " WHERE " + strings.Join(ub.whereOps, " AND ")
	}
	if len(cols) > 0 {
		query += " RETURNING *"
	}
	args = append(args, ub.args...)
	return numberPlaceholders(query), args
}

// Exec runs the update and returns the updated row
func (ub *UpdateBuilder) Exec(ctx context.Context) (Row, error) {
	query, args := ub.Build()
	return first(QueryRows(ctx, ub.db, query, args...))
}

// DeleteBuilder builds DELETE ... RETURNING *
type DeleteBuilder struct {
	db       Querier
	table    string
	whereOps []string
	args     []interface{}
}

func NewDeleteBuilder(db Querier, table string) *DeleteBuilder {
	return &DeleteBuilder{db: db, table: table}
}

// WhereEq adds `"col" = ?`
func (d *DeleteBuilder) WhereEq(col string, val interface{}) *DeleteBuilder {
	d.whereOps = append(d.whereOps, pq.QuoteIdentifier(col)+" = ?")
	d.args = append(d.args, val)
	return d
}

func (d *DeleteBuilder) Build() (string, []interface{}) {
	query := "DELETE FROM " + d.table
	if len(d.whereOps) > 0 {
		query += " WHERE " + strings.Join(d.whereOps, " AND ")
	}
	return numberPlaceholders(query + " RETURNING *"), d.args
}

// Exec runs the delete and returns the deleted row
func (d *DeleteBuilder) Exec(ctx context.Context) (Row, error) {
	query, args := d.Build()
	return first(QueryRows(ctx, d.db, query, args...))
}

// QueryRows runs a query and scans every row into a map keyed by column name.
// []byte values are converted to strings.
func QueryRows(ctx context.Context, db Querier, query string, args ...interface{}) ([]Row, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var results []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func first(rows []Row, err error) (Row, error) {
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, sql.ErrNoRows
	}
	return rows[0], nil
}

// numberPlaceholders rewrites ? placeholders to Postgres' $n form.
// Question marks inside single-quoted literals are left alone.
func numberPlaceholders(query string) string {
	var (
		b       strings.Builder
		n       int
		literal bool
	)
	for _, r := range query {
		switch {
		case r == '\'':
			literal = !literal
			b.WriteRune(r)
		case r == '?' && !literal:
			n++
			fmt.Fprintf(&b, "$%d", n)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func quoteAll(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
