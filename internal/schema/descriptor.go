package schema

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/samber/lo"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

// Field describes one scalar column, either declared directly on the entity
// or flattened from an embedded value object.
type Field struct {
	// Name is the logical field name used by query builders.
	Name string

	// GoName is the struct field name.
	GoName string

	// Column is the column name.
	Column string

	// Kind is the scalar kind.
	Kind core.Kind

	// Nullable is set for pointer fields.
	Nullable bool

	// PrimaryKey marks the primary key.
	PrimaryKey bool

	// Type is the Go type of the field.
	Type reflect.Type

	index    []int
	embedded *Embedded
}

// Embedded returns the embedded group a flattened field belongs to.
func (f *Field) Embedded() *Embedded {
	return f.embedded
}

// Descriptor is the immutable introspection result for one entity type.
type Descriptor struct {
	typ           reflect.Type
	fields        []*Field
	primaryKey    *Field
	embedded      []*Embedded
	relationships []*Relationship
	columns       []*Field
	lookup        map[string]*Field
	columnList    string
}

// Type returns the entity struct type.
func (d *Descriptor) Type() reflect.Type { return d.typ }

// Name returns the entity type name.
func (d *Descriptor) Name() string { return d.typ.Name() }

// Fields returns the directly declared scalar fields.
func (d *Descriptor) Fields() []*Field { return d.fields }

// PrimaryKey returns the primary key field.
func (d *Descriptor) PrimaryKey() *Field { return d.primaryKey }

// Embedded returns the embedded groups in declaration order.
func (d *Descriptor) Embedded() []*Embedded { return d.embedded }

// Relationships returns the relationship fields in declaration order.
func (d *Descriptor) Relationships() []*Relationship { return d.relationships }

// Columns returns every column field: direct scalars first, then each
// embedded group.
func (d *Descriptor) Columns() []*Field { return d.columns }

// ColumnNames returns the column names in column order.
func (d *Descriptor) ColumnNames() []string {
	return lo.Map(d.columns, func(f *Field, _ int) string { return f.Column })
}

// ColumnList returns the comma separated column list used by SELECT.
func (d *Descriptor) ColumnList() string { return d.columnList }

// Lookup finds a column field by logical name, Go field name or column name.
func (d *Descriptor) Lookup(name string) (*Field, bool) {
	f, ok := d.lookup[name]
	return f, ok
}

// Require is Lookup that fails with UnknownFieldError.
func (d *Descriptor) Require(name string) (*Field, error) {
	if f, ok := d.lookup[name]; ok {
		return f, nil
	}
	return nil, &core.UnknownFieldError{Entity: d.Name(), Field: name}
}

// FieldForColumn returns the field stored in column.
func (d *Descriptor) FieldForColumn(column string) (*Field, bool) {
	return lo.Find(d.columns, func(f *Field) bool { return f.Column == column })
}

// Relationship returns the relationship with the given logical or Go name.
func (d *Descriptor) Relationship(name string) (*Relationship, bool) {
	return lo.Find(d.relationships, func(r *Relationship) bool {
		return r.Name == name || r.GoName == name
	})
}

// Schema describes the table layout for tableName.
func (d *Descriptor) Schema(tableName string) *core.Schema {
	s := &core.Schema{TableName: tableName, PrimaryKey: d.primaryKey.Column}
	for _, f := range d.columns {
		s.Columns = append(s.Columns, core.Column{
			Name:       f.Column,
			Kind:       f.Kind,
			Nullable:   f.Nullable,
			PrimaryKey: f.PrimaryKey,
		})
	}
	return s
}

// Values encodes the entity's columns in column order.
func (d *Descriptor) Values(entity reflect.Value) ([]any, error) {
	entity = indirect(entity)
	values := make([]any, 0, len(d.columns))
	for _, f := range d.fields {
		v, err := f.Encode(entity.FieldByIndex(f.index))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	for _, e := range d.embedded {
		flat, err := e.Flatten(entity)
		if err != nil {
			return nil, err
		}
		values = append(values, flat...)
	}
	return values, nil
}

// NewHolders allocates one scan destination per column.
func (d *Descriptor) NewHolders() []any {
	holders := make([]any, len(d.columns))
	for i, f := range d.columns {
		holders[i] = NewHolder(f.Kind)
	}
	return holders
}

// Decode fills entity from holders produced by NewHolders and scanned from
// a row. Relationship fields are left untouched.
func (d *Descriptor) Decode(entity reflect.Value, holders []any) error {
	if len(holders) != len(d.columns) {
		return fmt.Errorf("decode %s: expected %d columns, got %d", d.Name(), len(d.columns), len(holders))
	}
	entity = indirect(entity)

	pos := 0
	for _, f := range d.fields {
		if err := f.Assign(entity.FieldByIndex(f.index), holders[pos]); err != nil {
			return err
		}
		pos++
	}
	for _, e := range d.embedded {
		n := len(e.Fields)
		if err := e.Reconstruct(entity, holders[pos:pos+n]); err != nil {
			return err
		}
		pos += n
	}
	return nil
}

// PrimaryKeyValue returns the entity's primary key as a driver argument.
func (d *Descriptor) PrimaryKeyValue(entity reflect.Value) (any, error) {
	entity = indirect(entity)
	return d.primaryKey.Encode(entity.FieldByIndex(d.primaryKey.index))
}

// FieldValue returns the reflect value of a direct scalar field.
func (d *Descriptor) FieldValue(entity reflect.Value, f *Field) reflect.Value {
	entity = indirect(entity)
	if f.embedded != nil {
		ev := entity.FieldByIndex(f.embedded.index)
		if ev.Kind() == reflect.Pointer {
			if ev.IsNil() {
				return reflect.Value{}
			}
			ev = ev.Elem()
		}
		return ev.FieldByIndex(f.index)
	}
	return entity.FieldByIndex(f.index)
}

// SetFieldValue assigns a canonical value (as returned by Field.Value) to a
// direct scalar field, converting as needed.
func (d *Descriptor) SetFieldValue(entity reflect.Value, f *Field, value any) error {
	if f.embedded != nil {
		return fmt.Errorf("field %s is part of an embedded group", f.Name)
	}
	dst := indirect(entity).FieldByIndex(f.index)
	if IsNull(value) {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	target := dst.Type()
	elem := target
	if target.Kind() == reflect.Pointer {
		elem = target.Elem()
	}
	if !v.Type().ConvertibleTo(elem) {
		return &core.UnsupportedTypeError{Type: v.Type(), Field: f.Name, Kind: f.Kind}
	}
	converted := v.Convert(elem)
	if target.Kind() == reflect.Pointer {
		p := reflect.New(elem)
		p.Elem().Set(converted)
		dst.Set(p)
		return nil
	}
	dst.Set(converted)
	return nil
}

// String renders a compact summary, mainly for logs.
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s(%s; pk=%s; relationships=%d)",
		d.Name(), strings.Join(d.ColumnNames(), ","), d.primaryKey.Column, len(d.relationships))
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return v
}
