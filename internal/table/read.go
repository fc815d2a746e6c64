package table

import (
	"context"
	"reflect"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
	"github.com/rzpsarthak13/entity-mapper/internal/query"
	"github.com/rzpsarthak13/entity-mapper/internal/schema"
)

// Find selects rows matching criteria and returns them as a []T. A limit of
// zero or less means no limit. When withRelationships is set, eager
// relationships are loaded and lazy ones are bound to loaders; otherwise
// relationship fields stay at their zero value.
func (e *Engine) Find(ctx context.Context, criteria []query.Criterion, limit int, withRelationships bool) (reflect.Value, error) {
	sql, args := query.Select(e.name, e.desc.ColumnList(), criteria, limit)

	rows := reflect.MakeSlice(reflect.SliceOf(e.desc.Type()), 0, 0)
	err := e.executor(ctx).Query(ctx, sql, args, func(row core.Row) error {
		holders := e.desc.NewHolders()
		if err := row.Scan(holders...); err != nil {
			return err
		}
		entity := e.newEntity()
		if err := e.desc.Decode(entity, holders); err != nil {
			return err
		}
		rows = reflect.Append(rows, entity.Elem())
		return nil
	})
	if err != nil {
		return reflect.Value{}, wrapExec("select from "+e.name, sql, err)
	}

	if withRelationships {
		for i := 0; i < rows.Len(); i++ {
			if err := e.resolve(ctx, rows.Index(i).Addr()); err != nil {
				return reflect.Value{}, err
			}
		}
	}
	return rows, nil
}

// Get returns the row with primary key pk as a *T, reading through the
// entity cache when one is configured. A missing row is a NotFoundError.
func (e *Engine) Get(ctx context.Context, pk any, withRelationships bool) (reflect.Value, error) {
	arg, err := e.desc.PrimaryKey().EncodeValue(pk)
	if err != nil {
		return reflect.Value{}, err
	}
	entity, found, err := e.getByArg(ctx, arg)
	if err != nil {
		return reflect.Value{}, err
	}
	if !found {
		return reflect.Value{}, e.notFound(arg)
	}
	if withRelationships {
		if err := e.resolve(ctx, entity); err != nil {
			return reflect.Value{}, err
		}
	}
	return entity, nil
}

func (e *Engine) notFound(arg any) error {
	return &core.NotFoundError{Table: e.name, Column: e.desc.PrimaryKey().Column, Key: schema.Plain(arg)}
}

// getByArg loads one row by an encoded primary key. The cache is bypassed
// inside transactions so uncommitted rows are never stored.
func (e *Engine) getByArg(ctx context.Context, arg any) (reflect.Value, bool, error) {
	sql, args := query.Select(e.name, e.desc.ColumnList(),
		[]query.Criterion{{Column: e.desc.PrimaryKey().Column, Op: query.Equals, Args: []any{arg}}}, 0)
	load := func(ctx context.Context, holders []any) (bool, error) {
		return core.QueryOne(ctx, e.executor(ctx), sql, args, func(row core.Row) error {
			return row.Scan(holders...)
		})
	}

	holders := e.desc.NewHolders()
	var (
		found bool
		err   error
	)
	if e.cache != nil && !core.InTransaction(ctx) {
		found, err = e.cache.Fetch(ctx, e.name, schema.Plain(arg), holders, load)
	} else {
		found, err = load(ctx, holders)
	}
	if err != nil {
		return reflect.Value{}, false, wrapExec("select from "+e.name, sql, err)
	}
	if !found {
		return reflect.Value{}, false, nil
	}

	entity := e.newEntity()
	if err := e.desc.Decode(entity, holders); err != nil {
		return reflect.Value{}, false, err
	}
	return entity, true, nil
}

// resolve fills the relationship fields of entity. Related entities are
// loaded one level deep, without their own relationships.
func (e *Engine) resolve(ctx context.Context, entity reflect.Value) error {
	for _, r := range e.desc.Relationships() {
		target, err := e.target(ctx, r)
		if err != nil {
			return err
		}
		if r.Owning() {
			err = e.resolveOwning(ctx, entity, r, target)
		} else {
			err = e.resolveInverse(ctx, entity, r, target)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// resolveOwning follows the foreign key held by entity. A NULL key resolves
// to no related entity.
func (e *Engine) resolveOwning(ctx context.Context, entity reflect.Value, r *schema.Relationship, target *Engine) error {
	fk, _ := e.desc.FieldForColumn(r.JoinColumn)
	arg, err := fk.Encode(e.desc.FieldValue(entity, fk))
	if err != nil {
		return err
	}
	null := schema.Plain(arg) == nil

	if r.Fetch == schema.FetchLazy {
		if null {
			r.ResolveLazy(entity, nil)
			return nil
		}
		r.BindLazy(entity, func(ctx context.Context) (any, error) {
			related, found, err := target.getByArg(ctx, arg)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, target.notFound(arg)
			}
			return related.Interface(), nil
		})
		return nil
	}

	if null {
		r.SetEager(entity, reflect.Value{})
		return nil
	}
	related, found, err := target.getByArg(ctx, arg)
	if err != nil {
		return err
	}
	if !found {
		r.SetEager(entity, reflect.Value{})
		return nil
	}
	r.SetEager(entity, related)
	return nil
}

// resolveInverse loads the target rows whose join column references the
// primary key of entity.
func (e *Engine) resolveInverse(ctx context.Context, entity reflect.Value, r *schema.Relationship, target *Engine) error {
	pk, err := e.desc.PrimaryKeyValue(entity)
	if err != nil {
		return err
	}
	criteria := []query.Criterion{{Column: r.JoinColumn, Op: query.Equals, Args: []any{pk}}}
	limit := 0
	if !r.Many() {
		limit = 1
	}
	load := func(ctx context.Context) (reflect.Value, error) {
		return target.Find(ctx, criteria, limit, false)
	}

	if r.Fetch == schema.FetchLazy {
		r.BindLazy(entity, func(ctx context.Context) (any, error) {
			rows, err := load(ctx)
			if err != nil {
				return nil, err
			}
			if r.Many() {
				return rows.Interface(), nil
			}
			if rows.Len() == 0 {
				return nil, &core.NotFoundError{Table: target.name, Column: r.JoinColumn, Key: schema.Plain(pk)}
			}
			return rows.Index(0).Addr().Interface(), nil
		})
		return nil
	}

	rows, err := load(ctx)
	if err != nil {
		return err
	}
	switch {
	case r.Many():
		r.SetEager(entity, rows)
	case rows.Len() == 0:
		r.SetEager(entity, reflect.Value{})
	default:
		r.SetEager(entity, rows.Index(0).Addr())
	}
	return nil
}
