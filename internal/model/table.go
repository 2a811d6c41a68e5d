package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// DBTX is the subset of *sql.DB (and *sql.Tx) a Table needs.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Table is the SQLite implementation of Model for a single table.
type Table struct {
	db         DBTX
	name       string
	primaryKey string
	columns    []string
	columnSet  map[string]struct{}
}

var _ Model = (*Table)(nil)

// Open introspects table name and returns a Table bound to it.
func Open(ctx context.Context, db DBTX, name string) (*Table, error) {
	if !identRe.MatchString(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", name))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}
	defer rows.Close()

	var columns []string
	var primaryKey string
	for rows.Next() {
		var (
			cid      int
			column   string
			colType  string
			notNull  int
			defValue sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &column, &colType, &notNull, &defValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", name, err)
		}
		columns = append(columns, column)
		if pk == 1 {
			primaryKey = column
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s does not exist", name)
	}
	if primaryKey == "" {
		return nil, fmt.Errorf("table %s has no primary key", name)
	}

	return NewTable(db, name, primaryKey, columns), nil
}

// NewTable binds a table whose layout is already known.
func NewTable(db DBTX, name, primaryKey string, columns []string) *Table {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	return &Table{
		db:         db,
		name:       name,
		primaryKey: primaryKey,
		columns:    slices.Clone(columns),
		columnSet:  set,
	}
}

func (t *Table) Table() string      { return t.name }
func (t *Table) PrimaryKey() string { return t.primaryKey }

func (t *Table) ColumnNames() []string {
	return slices.Clone(t.columns)
}

// HasColumn reports whether the table has column.
func (t *Table) HasColumn(column string) bool {
	_, ok := t.columnSet[column]
	return ok
}

// Insert writes a row and returns its primary key.
func (t *Table) Insert(ctx context.Context, data Data) (int64, error) {
	return t.insert(ctx, "INSERT", data)
}

// ReplaceInsert writes a row, replacing any row that collides on a unique key.
func (t *Table) ReplaceInsert(ctx context.Context, data Data) (int64, error) {
	return t.insert(ctx, "INSERT OR REPLACE", data)
}

func (t *Table) insert(ctx context.Context, verb string, data Data) (int64, error) {
	columns, args, err := t.split(data)
	if err != nil {
		return 0, err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)", verb, t.name, strings.Join(columns, ", "), placeholders)

	result, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", t.name, err)
	}

	if v, ok := data[t.primaryKey]; ok {
		if id, ok := ToInt64(v); ok {
			return id, nil
		}
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get %s id: %w", t.name, err)
	}
	return id, nil
}

// Delete removes the row with primary key id and returns the rows affected.
func (t *Table) Delete(ctx context.Context, id int64) (int64, error) {
	result, err := t.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.name, t.primaryKey), id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", t.name, err)
	}
	return result.RowsAffected()
}

// Update writes data to the row with primary key id and returns the rows affected.
// updated_at is stamped when the table has one and data does not set it.
func (t *Table) Update(ctx context.Context, id int64, data Data) (int64, error) {
	if _, ok := data["updated_at"]; !ok && t.HasColumn("updated_at") && len(data) > 0 {
		data = data.Clone()
		data["updated_at"] = time.Now().UTC()
	}

	columns, args, err := t.split(data)
	if err != nil {
		return 0, err
	}

	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c + " = ?"
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", t.name, strings.Join(sets, ", "), t.primaryKey)
	result, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", t.name, err)
	}
	return result.RowsAffected()
}

// Get returns the row with primary key id, or nil.
func (t *Table) Get(ctx context.Context, id int64) (*Record, error) {
	return t.GetOneByWhere(ctx, t.primaryKey+" = ?", id)
}

// Gets returns the rows for ids in the order given, skipping missing ones.
func (t *Table) Gets(ctx context.Context, ids []int64) ([]*Record, error) {
	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := t.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// GetOneByWhere returns the first row matching where, or nil.
func (t *Table) GetOneByWhere(ctx context.Context, where string, args ...any) (*Record, error) {
	records, err := t.All(ctx, Query{Where: where, Args: args, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// All returns the rows matching q.
func (t *Table) All(ctx context.Context, q Query) ([]*Record, error) {
	orderBy := t.primaryKey + " ASC"
	if q.OrderBy != "" {
		var err error
		if orderBy, err = t.orderBy(q.OrderBy); err != nil {
			return nil, err
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(t.columns, ", "), t.name)
	if q.Where != "" {
		fmt.Fprintf(&sb, " WHERE %s", q.Where)
	}
	fmt.Fprintf(&sb, " ORDER BY %s", orderBy)

	args := slices.Clone(q.Args)
	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit <= 0 {
			limit = -1
		}
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, q.Offset)
	}

	rows, err := t.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.name, err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		values := make([]any, len(t.columns))
		ptrs := make([]any, len(t.columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t.name, err)
		}

		rec := &Record{Values: make(map[string]any, len(t.columns)), PrimaryKey: t.primaryKey}
		for i, c := range t.columns {
			rec.Values[c] = values[i]
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of rows matching q.
func (t *Table) Count(ctx context.Context, q Query) (int64, error) {
	query := "SELECT COUNT(*) FROM " + t.name
	if q.Where != "" {
		query += " WHERE " + q.Where
	}

	var count int64
	err := t.db.QueryRowContext(ctx, query, q.Args...).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.name, err)
	}
	return count, nil
}

// split validates data against the table and returns sorted columns with
// their values.
func (t *Table) split(data Data) ([]string, []any, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", t.name, ErrNoData)
	}

	columns := make([]string, 0, len(data))
	for c := range data {
		if !t.HasColumn(c) {
			return nil, nil, fmt.Errorf("%s.%s: %w", t.name, c, ErrUnknownColumn)
		}
		columns = append(columns, c)
	}
	slices.Sort(columns)

	args := make([]any, len(columns))
	for i, c := range columns {
		args[i] = data[c]
	}
	return columns, args, nil
}

func (t *Table) orderBy(spec string) (string, error) {
	var terms []string
	for part := range strings.SplitSeq(spec, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 || len(fields) > 2 || !t.HasColumn(fields[0]) {
			return "", fmt.Errorf("%q: %w", spec, ErrInvalidOrder)
		}
		dir := "ASC"
		if len(fields) == 2 {
			dir = strings.ToUpper(fields[1])
			if dir != "ASC" && dir != "DESC" {
				return "", fmt.Errorf("%q: %w", spec, ErrInvalidOrder)
			}
		}
		terms = append(terms, fields[0]+" "+dir)
	}
	return strings.Join(terms, ", "), nil
}
