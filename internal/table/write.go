package table

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
	"github.com/rzpsarthak13/entity-mapper/internal/query"
	"github.com/rzpsarthak13/entity-mapper/internal/schema"
)

// writeState tracks one cascading write. created holds the entities
// already inserted, by table and address, so that object graphs with cycles
// terminate. deleted holds (table, pk) pairs already removed. after
// collects cache and event actions that run once the write has committed.
type writeState struct {
	created map[string]bool
	deleted map[string]bool
	after   []func(ctx context.Context)
}

func newWriteState() *writeState {
	return &writeState{created: make(map[string]bool), deleted: make(map[string]bool)}
}

// visitEntity marks the entity behind the pointer value entity and reports
// whether it was new. Distinct objects sharing a primary key are both
// visited, so a duplicate key reaches the database.
func (st *writeState) visitEntity(table string, entity reflect.Value) bool {
	key := fmt.Sprintf("%s:%x", table, entity.Pointer())
	if st.created[key] {
		return false
	}
	st.created[key] = true
	return true
}

// visitKey marks (table, pk) and reports whether it was new.
func (st *writeState) visitKey(table string, pk any) bool {
	key := fmt.Sprintf("%s:%v", table, schema.Plain(pk))
	if st.deleted[key] {
		return false
	}
	st.deleted[key] = true
	return true
}

func (st *writeState) onCommit(fn func(ctx context.Context)) {
	st.after = append(st.after, fn)
}

// flush hands the collected actions to the transaction carried by ctx, or
// runs them now when there is none.
func (st *writeState) flush(ctx context.Context) {
	for _, fn := range st.after {
		core.AfterCommit(ctx, fn)
	}
	st.after = nil
}

// inTx runs fn in a new transaction when the write spans several statements
// and ctx does not already carry one.
func (e *Engine) inTx(ctx context.Context, multi bool, fn func(ctx context.Context) error) error {
	if !multi || core.InTransaction(ctx) {
		return fn(ctx)
	}
	return e.exec.WithTx(ctx, func(ctx context.Context, _ core.Executor) error {
		return fn(ctx)
	})
}

// Create inserts entity, a non-nil *T. Relationships marked with persist are
// created too: owning targets first so their keys can fill the foreign key
// columns, then inverse children with their join column set to the owner's
// primary key.
func (e *Engine) Create(ctx context.Context, entity reflect.Value) error {
	if err := e.checkEntity(entity); err != nil {
		return err
	}

	st := newWriteState()
	if err := e.inTx(ctx, e.cascades(schema.CascadePersist), func(ctx context.Context) error {
		return e.create(ctx, entity, st)
	}); err != nil {
		return err
	}
	st.flush(ctx)
	return nil
}

func (e *Engine) create(ctx context.Context, entity reflect.Value, st *writeState) error {
	pk, err := e.desc.PrimaryKeyValue(entity)
	if err != nil {
		return err
	}
	if !st.visitEntity(e.name, entity) {
		return nil
	}

	for _, r := range e.desc.Relationships() {
		if !r.Owning() {
			continue
		}
		if err := e.createOwning(ctx, entity, r, st); err != nil {
			return err
		}
	}

	values, err := e.desc.Values(entity)
	if err != nil {
		return err
	}
	columns := e.desc.ColumnNames()
	sql := query.Insert(e.name, columns)
	n, err := e.executor(ctx).Exec(ctx, sql, values...)
	if err != nil {
		return wrapExec("insert into "+e.name, sql, err)
	}
	e.log.Debug().Str("table", e.name).Interface("key", schema.Plain(pk)).Msg("row inserted")

	data := make(map[string]any, len(columns))
	for i, col := range columns {
		data[col] = schema.Plain(values[i])
	}
	st.onCommit(func(ctx context.Context) {
		if e.cache != nil {
			e.cache.Invalidate(ctx, e.name, schema.Plain(pk))
		}
		e.publish(ctx, &core.ChangeEvent{
			Table:     e.name,
			Operation: core.OperationCreate,
			Key:       schema.Plain(pk),
			Data:      data,
			Affected:  n,
			Timestamp: time.Now().UTC(),
		})
	})

	for _, r := range e.desc.Relationships() {
		if r.Owning() || !r.Cascades(schema.CascadePersist) {
			continue
		}
		if err := e.createInverse(ctx, entity, r, st); err != nil {
			return err
		}
	}
	return nil
}

// createOwning creates the target of an owning relationship when it
// cascades, and copies the target's primary key into the join column.
func (e *Engine) createOwning(ctx context.Context, entity reflect.Value, r *schema.Relationship, st *writeState) error {
	related := r.Related(entity)
	if len(related) == 0 {
		return nil
	}
	target, err := e.target(ctx, r)
	if err != nil {
		return err
	}
	child := related[0]
	if r.Cascades(schema.CascadePersist) {
		if err := target.create(ctx, child, st); err != nil {
			return err
		}
	}

	fk, _ := e.desc.FieldForColumn(r.JoinColumn)
	key := target.desc.FieldValue(child, target.desc.PrimaryKey())
	return e.desc.SetFieldValue(entity, fk, key.Interface())
}

func (e *Engine) createInverse(ctx context.Context, entity reflect.Value, r *schema.Relationship, st *writeState) error {
	related := r.Related(entity)
	if len(related) == 0 {
		return nil
	}
	target, err := e.target(ctx, r)
	if err != nil {
		return err
	}
	fk, _ := target.desc.FieldForColumn(r.JoinColumn)
	owner := e.desc.FieldValue(entity, e.desc.PrimaryKey()).Interface()
	for _, child := range related {
		if err := target.desc.SetFieldValue(child, fk, owner); err != nil {
			return err
		}
		if err := target.create(ctx, child, st); err != nil {
			return err
		}
	}
	return nil
}

// Update runs UPDATE with the accumulated assignments and criteria and
// returns the number of affected rows. Build errors recorded on sets or
// where are returned before anything executes.
func (e *Engine) Update(ctx context.Context, sets *query.SetList, where *query.Filter) (int64, error) {
	if err := sets.Err(); err != nil {
		return 0, err
	}
	var criteria []query.Criterion
	if where != nil {
		if err := where.Err(); err != nil {
			return 0, err
		}
		criteria = where.Criteria()
	}

	sql, args, err := query.Update(e.name, sets.Assignments(), criteria)
	if err != nil {
		return 0, err
	}
	n, err := e.executor(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, wrapExec("update "+e.name, sql, err)
	}

	event := &core.ChangeEvent{
		Table:     e.name,
		Operation: core.OperationUpdate,
		Data:      sets.Data(),
		Affected:  n,
		Timestamp: time.Now().UTC(),
	}
	var key any
	scoped := false
	if where != nil {
		key, scoped = where.KeyEquals()
	}
	if scoped {
		event.Key = schema.Plain(key)
	}
	core.AfterCommit(ctx, func(ctx context.Context) {
		if e.cache != nil {
			if scoped {
				e.cache.Invalidate(ctx, e.name, schema.Plain(key))
			} else {
				e.cache.InvalidateTable(e.name)
			}
		}
		e.publish(ctx, event)
	})
	return n, nil
}

// Delete removes entity by primary key and returns the rows affected for
// the entity itself. Relationships marked with remove are deleted too:
// inverse children before the owner, owning targets after it.
func (e *Engine) Delete(ctx context.Context, entity reflect.Value) (int64, error) {
	if err := e.checkEntity(entity); err != nil {
		return 0, err
	}

	st := newWriteState()
	var n int64
	if err := e.inTx(ctx, e.cascades(schema.CascadeRemove), func(ctx context.Context) error {
		var err error
		n, err = e.delete(ctx, entity, st)
		return err
	}); err != nil {
		return 0, err
	}
	st.flush(ctx)
	return n, nil
}

func (e *Engine) delete(ctx context.Context, entity reflect.Value, st *writeState) (int64, error) {
	pk, err := e.desc.PrimaryKeyValue(entity)
	if err != nil {
		return 0, err
	}
	if !st.visitKey(e.name, pk) {
		return 0, nil
	}

	for _, r := range e.desc.Relationships() {
		if r.Owning() || !r.Cascades(schema.CascadeRemove) {
			continue
		}
		target, err := e.target(ctx, r)
		if err != nil {
			return 0, err
		}
		children, err := target.Find(ctx, []query.Criterion{{Column: r.JoinColumn, Op: query.Equals, Args: []any{pk}}}, 0, false)
		if err != nil {
			return 0, err
		}
		for i := 0; i < children.Len(); i++ {
			if _, err := target.delete(ctx, children.Index(i).Addr(), st); err != nil {
				return 0, err
			}
		}
	}

	sql := query.DeleteByKey(e.name, e.desc.PrimaryKey().Column)
	n, err := e.executor(ctx).Exec(ctx, sql, pk)
	if err != nil {
		return 0, wrapExec("delete from "+e.name, sql, err)
	}
	st.onCommit(func(ctx context.Context) {
		if e.cache != nil {
			e.cache.Invalidate(ctx, e.name, schema.Plain(pk))
		}
		e.publish(ctx, &core.ChangeEvent{
			Table:     e.name,
			Operation: core.OperationDelete,
			Key:       schema.Plain(pk),
			Affected:  n,
			Timestamp: time.Now().UTC(),
		})
	})

	for _, r := range e.desc.Relationships() {
		if !r.Owning() || !r.Cascades(schema.CascadeRemove) {
			continue
		}
		fk, _ := e.desc.FieldForColumn(r.JoinColumn)
		arg, err := fk.Encode(e.desc.FieldValue(entity, fk))
		if err != nil {
			return 0, err
		}
		if schema.Plain(arg) == nil {
			continue
		}
		target, err := e.target(ctx, r)
		if err != nil {
			return 0, err
		}
		related, found, err := target.getByArg(ctx, arg)
		if err != nil {
			return 0, err
		}
		if !found {
			continue
		}
		if _, err := target.delete(ctx, related, st); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (e *Engine) publish(ctx context.Context, event *core.ChangeEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.log.Warn().Err(err).
			Str("table", event.Table).
			Str("operation", string(event.Operation)).
			Msg("failed to publish change event")
	}
}
