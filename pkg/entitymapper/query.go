package entitymapper

import (
	"context"

	"github.com/rzpsarthak13/entity-mapper/internal/query"
	"github.com/rzpsarthak13/entity-mapper/internal/table"
)

// whereClause carries the criteria shared by every query builder. B is the
// builder embedding it, returned from each method to keep chains typed.
// Build errors are kept and reported by Execute.
type whereClause[B any] struct {
	self   B
	filter *query.Filter
}

func newWhereClause[B any](self B, engine *table.Engine) whereClause[B] {
	return whereClause[B]{self: self, filter: query.NewFilter(engine.Descriptor())}
}

func (w whereClause[B]) add(field string, op query.Operator, values ...any) B {
	w.filter.Add(field, op, values...)
	return w.self
}

// Where adds field = value, or field IS NULL when value is nil.
func (w whereClause[B]) Where(field string, value any) B {
	return w.add(field, query.Equals, value)
}

// WhereNot adds field != value, or field IS NOT NULL when value is nil.
func (w whereClause[B]) WhereNot(field string, value any) B {
	return w.add(field, query.NotEquals, value)
}

func (w whereClause[B]) WhereGreaterThan(field string, value any) B {
	return w.add(field, query.GreaterThan, value)
}

func (w whereClause[B]) WhereGreaterOrEqual(field string, value any) B {
	return w.add(field, query.GreaterOrEqual, value)
}

func (w whereClause[B]) WhereLessThan(field string, value any) B {
	return w.add(field, query.LessThan, value)
}

func (w whereClause[B]) WhereLessOrEqual(field string, value any) B {
	return w.add(field, query.LessOrEqual, value)
}

func (w whereClause[B]) WhereLike(field string, pattern string) B {
	return w.add(field, query.Like, pattern)
}

func (w whereClause[B]) WhereNotLike(field string, pattern string) B {
	return w.add(field, query.NotLike, pattern)
}

// WhereIn adds field IN (values...). No values matches nothing.
func (w whereClause[B]) WhereIn(field string, values ...any) B {
	return w.add(field, query.In, values...)
}

// WhereNotIn adds field NOT IN (values...). No values matches everything.
func (w whereClause[B]) WhereNotIn(field string, values ...any) B {
	return w.add(field, query.NotIn, values...)
}

// WhereBetween adds field BETWEEN low AND high.
func (w whereClause[B]) WhereBetween(field string, low, high any) B {
	return w.add(field, query.Between, low, high)
}

func (w whereClause[B]) WhereIsNull(field string) B {
	return w.add(field, query.IsNull)
}

func (w whereClause[B]) WhereIsNotNull(field string) B {
	return w.add(field, query.IsNotNull)
}

// FindOneQuery selects at most one entity.
type FindOneQuery[T any] struct {
	whereClause[*FindOneQuery[T]]
	table     *Table[T]
	relations bool
}

// WithRelationships loads relationship fields of the result: eager ones
// immediately, lazy ones bound to loaders.
func (q *FindOneQuery[T]) WithRelationships(on bool) *FindOneQuery[T] {
	q.relations = on
	return q
}

// Execute runs the query. It returns nil and no error when nothing matches.
func (q *FindOneQuery[T]) Execute(ctx context.Context) (*T, error) {
	if err := q.filter.Err(); err != nil {
		return nil, err
	}
	rows, err := q.table.engine.Find(ctx, q.filter.Criteria(), 1, q.relations)
	if err != nil {
		return nil, err
	}
	if rows.Len() == 0 {
		return nil, nil
	}
	return rows.Index(0).Addr().Interface().(*T), nil
}

// FindManyQuery selects every matching entity.
type FindManyQuery[T any] struct {
	whereClause[*FindManyQuery[T]]
	table     *Table[T]
	limit     int
	relations bool
}

// Limit caps the number of rows returned. Zero means no limit.
func (q *FindManyQuery[T]) Limit(n int) *FindManyQuery[T] {
	q.limit = n
	return q
}

// WithRelationships loads relationship fields of every result.
func (q *FindManyQuery[T]) WithRelationships(on bool) *FindManyQuery[T] {
	q.relations = on
	return q
}

// Execute runs the query. The result is empty, not nil, when nothing
// matches.
func (q *FindManyQuery[T]) Execute(ctx context.Context) ([]T, error) {
	if err := q.filter.Err(); err != nil {
		return nil, err
	}
	rows, err := q.table.engine.Find(ctx, q.filter.Criteria(), q.limit, q.relations)
	if err != nil {
		return nil, err
	}
	return rows.Interface().([]T), nil
}

// UpdateQuery assigns columns on every matching row.
type UpdateQuery[T any] struct {
	whereClause[*UpdateQuery[T]]
	table *Table[T]
	sets  *query.SetList
}

// Set assigns value to field. A nil value stores NULL.
func (q *UpdateQuery[T]) Set(field string, value any) *UpdateQuery[T] {
	q.sets.Set(field, value)
	return q
}

// Execute runs the UPDATE and returns the number of affected rows. Without
// any Set call it fails with *NoUpdateFieldsError.
func (q *UpdateQuery[T]) Execute(ctx context.Context) (int64, error) {
	return q.table.engine.Update(ctx, q.sets, q.filter)
}
