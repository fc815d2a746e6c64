// Package query renders the SQL statements emitted by the mapper. Every
// statement uses "?" placeholders; executors rebind them for their dialect.
package query

import (
	"fmt"
	"strings"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

// Assignment is one SET column = value pair of an UPDATE.
type Assignment struct {
	Column string
	Value  any
}

// CreateTable renders CREATE TABLE IF NOT EXISTS for schema.
func CreateTable(schema *core.Schema, dialect core.Dialect) (string, error) {
	if schema == nil || len(schema.Columns) == 0 {
		return "", fmt.Errorf("schema has no columns")
	}

	defs := make([]string, 0, len(schema.Columns))
	for _, col := range schema.Columns {
		typeName, ok := dialect.TypeName(col.Kind)
		if !ok {
			return "", &core.UnsupportedTypeError{Field: col.Name, Kind: col.Kind}
		}
		def := col.Name + " " + typeName
		if !col.Nullable || col.PrimaryKey {
			def += " NOT NULL"
		}
		if col.PrimaryKey {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", schema.TableName, strings.Join(defs, ", ")), nil
}

// Insert renders a single-row INSERT with one placeholder per column.
func Insert(table string, columns []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders)
}

// Select renders SELECT columns FROM table [WHERE ...] [LIMIT n]. A limit of
// zero or less means no limit.
func Select(table, columnList string, criteria []Criterion, limit int) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", columnList, table)

	where, args := Where(criteria)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}
	return sb.String(), args
}

// Update renders UPDATE table SET ... [WHERE ...]. SET arguments come first,
// then WHERE arguments, each in insertion order.
func Update(table string, sets []Assignment, criteria []Criterion) (string, []any, error) {
	if len(sets) == 0 {
		return "", nil, &core.NoUpdateFieldsError{Table: table}
	}

	parts := make([]string, 0, len(sets))
	args := make([]any, 0, len(sets)+len(criteria))
	for _, set := range sets {
		parts = append(parts, set.Column+" = ?")
		args = append(args, set.Value)
	}

	query := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(parts, ", "))
	where, whereArgs := Where(criteria)
	if where != "" {
		query += " WHERE " + where
		args = append(args, whereArgs...)
	}
	return query, args, nil
}

// DeleteByKey renders DELETE FROM table WHERE pk = ?.
func DeleteByKey(table, pkColumn string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, pkColumn)
}
