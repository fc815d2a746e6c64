package schema

import (
	"reflect"
	"strings"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
	"github.com/rzpsarthak13/entity-mapper/internal/lazy"
)

// RelationKind is the cardinality of a relationship.
type RelationKind int

const (
	RelationNone RelationKind = iota
	OneToOne
	OneToMany
	ManyToOne
)

func (k RelationKind) String() string {
	switch k {
	case OneToOne:
		return "OneToOne"
	case OneToMany:
		return "OneToMany"
	case ManyToOne:
		return "ManyToOne"
	default:
		return "None"
	}
}

// FetchMode selects when a relationship is loaded.
type FetchMode int

const (
	FetchEager FetchMode = iota
	FetchLazy
)

func (m FetchMode) String() string {
	if m == FetchLazy {
		return "lazy"
	}
	return "eager"
}

// CascadeType is a set of operations propagated to related entities.
type CascadeType uint8

const (
	CascadePersist CascadeType = 1 << iota
	CascadeRemove
	CascadeMerge
	CascadeRefresh

	// CascadeAll is expanded when a tag is parsed; evaluation only ever
	// tests individual members.
	CascadeAll = CascadePersist | CascadeRemove | CascadeMerge | CascadeRefresh
)

func (c CascadeType) String() string {
	var names []string
	for _, m := range []struct {
		t    CascadeType
		name string
	}{
		{CascadePersist, "persist"},
		{CascadeRemove, "remove"},
		{CascadeMerge, "merge"},
		{CascadeRefresh, "refresh"},
	} {
		if c&m.t != 0 {
			names = append(names, m.name)
		}
	}
	return strings.Join(names, "|")
}

// Shape is the Go container holding a relationship value.
type Shape int

const (
	ShapePointer Shape = iota
	ShapeSlice
	ShapePointerSlice
	ShapeLazy
	ShapeLazyList
)

// Relationship describes a link from the owning entity to a target entity.
type Relationship struct {
	// Name is the logical field name.
	Name string

	// GoName is the struct field name.
	GoName string

	// Kind is the relationship cardinality.
	Kind RelationKind

	// Target is the related entity struct type.
	Target reflect.Type

	// JoinColumn holds the foreign key. On owning sides it is a column of
	// the owner; on inverse sides it is a column of the target.
	JoinColumn string

	// Fetch is eager or lazy.
	Fetch FetchMode

	// Cascade is the expanded cascade set.
	Cascade CascadeType

	// MappedBy names the owning field on the target for inverse sides.
	MappedBy string

	// Shape is the Go container of the field.
	Shape Shape

	index []int
}

var binderType = reflect.TypeFor[lazy.Binder]()

func isLazyType(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.Implements(binderType)
}

func newRelationship(owner reflect.Type, sf reflect.StructField, name string, opts tagOptions) (*Relationship, error) {
	fail := func(reason string) error {
		return &core.MappingError{Type: owner, Field: sf.Name, Reason: reason}
	}

	if opts.relation == RelationNone {
		return nil, fail("lazy field needs a relationship marker (onetoone, onetomany or manytoone)")
	}
	if opts.pk || opts.embedded {
		return nil, fail("relationship fields cannot be primary keys or embedded")
	}

	r := &Relationship{
		Name:     name,
		GoName:   sf.Name,
		Kind:     opts.relation,
		Cascade:  opts.cascade,
		MappedBy: opts.mappedBy,
		index:    sf.Index,
	}

	t := sf.Type
	switch {
	case isLazyType(t):
		binder := reflect.Zero(t).Interface().(lazy.Binder)
		r.Target = binder.ElemType()
		r.Shape = ShapeLazy
		if binder.Many() {
			r.Shape = ShapeLazyList
		}
	case t.Kind() == reflect.Pointer:
		r.Target = t.Elem()
		r.Shape = ShapePointer
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Pointer:
		r.Target = t.Elem().Elem()
		r.Shape = ShapePointerSlice
	case t.Kind() == reflect.Slice:
		r.Target = t.Elem()
		r.Shape = ShapeSlice
	}
	if r.Target == nil || r.Target.Kind() != reflect.Struct || r.Target == timeType {
		return nil, fail("cannot determine target entity from type " + t.String())
	}

	switch r.Shape {
	case ShapeLazy, ShapeLazyList:
		r.Fetch = FetchLazy
	default:
		r.Fetch = FetchEager
	}
	if opts.fetch != "" && opts.fetch != r.Fetch.String() {
		return nil, fail("fetch=" + opts.fetch + " does not match field type " + t.String())
	}

	if r.Many() != (r.Kind == OneToMany) {
		return nil, fail(r.Kind.String() + " cannot be held in " + t.String())
	}

	switch r.Kind {
	case ManyToOne:
		if r.MappedBy != "" {
			return nil, fail("ManyToOne cannot declare mappedBy")
		}
	case OneToMany:
		if r.MappedBy == "" {
			return nil, fail("OneToMany requires mappedBy")
		}
	}

	switch {
	case opts.join != "":
		r.JoinColumn = opts.join
	case r.MappedBy != "":
		r.JoinColumn = ColumnName(r.MappedBy) + "_id"
	default:
		r.JoinColumn = name + "_id"
	}
	return r, nil
}

// Many reports whether the relationship holds a collection.
func (r *Relationship) Many() bool {
	return r.Shape == ShapeSlice || r.Shape == ShapePointerSlice || r.Shape == ShapeLazyList
}

// Owning reports whether the foreign key lives on the owner's table.
func (r *Relationship) Owning() bool {
	return r.Kind == ManyToOne || (r.Kind == OneToOne && r.MappedBy == "")
}

// Cascades reports whether op is in the cascade set.
func (r *Relationship) Cascades(op CascadeType) bool {
	return r.Cascade&op != 0
}

// FieldValue returns the relationship field of entity.
func (r *Relationship) FieldValue(entity reflect.Value) reflect.Value {
	return indirect(entity).FieldByIndex(r.index)
}

// Related returns the related entities currently held by the field, as
// pointers. Unloaded lazy references yield nothing.
func (r *Relationship) Related(entity reflect.Value) []reflect.Value {
	fv := r.FieldValue(entity)
	switch r.Shape {
	case ShapePointer:
		if fv.IsNil() {
			return nil
		}
		return []reflect.Value{fv}
	case ShapeSlice:
		out := make([]reflect.Value, 0, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			out = append(out, fv.Index(i).Addr())
		}
		return out
	case ShapePointerSlice:
		out := make([]reflect.Value, 0, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			if !fv.Index(i).IsNil() {
				out = append(out, fv.Index(i))
			}
		}
		return out
	case ShapeLazy, ShapeLazyList:
		v, ok := fv.Interface().(lazy.Binder).Peek()
		if !ok || v == nil {
			return nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer {
			return []reflect.Value{rv}
		}
		out := make([]reflect.Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, rv.Index(i).Addr())
		}
		return out
	}
	return nil
}

// SetEager stores loaded values in an eager field. For to-one shapes value
// is a *Target or nil; for to-many it is a []Target.
func (r *Relationship) SetEager(entity reflect.Value, value reflect.Value) {
	fv := r.FieldValue(entity)
	switch r.Shape {
	case ShapePointer:
		if !value.IsValid() {
			fv.Set(reflect.Zero(fv.Type()))
			return
		}
		fv.Set(value)
	case ShapeSlice:
		fv.Set(value)
	case ShapePointerSlice:
		out := reflect.MakeSlice(fv.Type(), value.Len(), value.Len())
		for i := 0; i < value.Len(); i++ {
			out.Index(i).Set(value.Index(i).Addr())
		}
		fv.Set(out)
	}
}

// BindLazy replaces a lazy field with an unloaded reference using load.
func (r *Relationship) BindLazy(entity reflect.Value, load lazy.Loader) {
	fv := r.FieldValue(entity)
	binder := fv.Interface().(lazy.Binder)
	fv.Set(reflect.ValueOf(binder.Bind(load)))
}

// ResolveLazy replaces a lazy field with a reference already loaded with v.
func (r *Relationship) ResolveLazy(entity reflect.Value, v any) {
	fv := r.FieldValue(entity)
	binder := fv.Interface().(lazy.Binder)
	fv.Set(reflect.ValueOf(binder.Resolved(v)))
}
