package schema

import (
	"reflect"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

// Embedded flattens a nested value object into prefixed parent columns.
type Embedded struct {
	// Name is the logical name of the embedded field.
	Name string

	// GoName is the struct field name on the owner.
	GoName string

	// Prefix is prepended, with an underscore, to every nested column.
	Prefix string

	// Type is the nested struct type.
	Type reflect.Type

	// Pointer is set when the owner holds *Type.
	Pointer bool

	// Fields are the flattened columns in the nested declaration order.
	Fields []*Field

	index []int
}

func newEmbedded(owner reflect.Type, sf reflect.StructField, name string, opts tagOptions) (*Embedded, error) {
	if opts.pk {
		return nil, &core.MappingError{Type: owner, Field: sf.Name, Reason: "embedded fields cannot be primary keys"}
	}
	nested := sf.Type
	pointer := false
	if nested.Kind() == reflect.Pointer {
		pointer = true
		nested = nested.Elem()
	}
	if nested.Kind() != reflect.Struct || nested == timeType {
		return nil, &core.MappingError{Type: owner, Field: sf.Name, Reason: "embedded field must be a struct"}
	}

	prefix := name
	if opts.prefixSet {
		prefix = opts.prefix
	} else if sf.Anonymous && opts.name == "" {
		prefix = ""
	}

	e := &Embedded{
		Name:    name,
		GoName:  sf.Name,
		Prefix:  prefix,
		Type:    nested,
		Pointer: pointer,
		index:   sf.Index,
	}

	for i := 0; i < nested.NumField(); i++ {
		nf := nested.Field(i)
		raw, tagged := nf.Tag.Lookup(TagName)
		if raw == "-" {
			continue
		}
		if !nf.IsExported() {
			if tagged {
				return nil, &core.MappingError{Type: nested, Field: nf.Name, Reason: "tagged field is not exported"}
			}
			continue
		}

		nopts, err := parseTag(raw)
		if err != nil {
			return nil, &core.MappingError{Type: nested, Field: nf.Name, Reason: err.Error()}
		}
		if nopts.pk || nopts.embedded || nopts.relation != RelationNone {
			return nil, &core.MappingError{Type: nested, Field: nf.Name, Reason: "embedded types may only declare scalar fields"}
		}

		kind, nullable := KindOf(nf.Type)
		if !kind.Valid() {
			return nil, &core.UnsupportedTypeError{Type: nf.Type, Field: nested.Name() + "." + nf.Name}
		}

		nestedName := nopts.name
		if nestedName == "" {
			nestedName = ColumnName(nf.Name)
		}
		column := nestedName
		if nopts.column != "" {
			column = nopts.column
		}
		if prefix != "" {
			column = prefix + "_" + column
		}
		logical := nestedName
		if prefix != "" || !sf.Anonymous {
			logical = name + "." + nestedName
		}

		e.Fields = append(e.Fields, &Field{
			Name:     logical,
			GoName:   nf.Name,
			Column:   column,
			Kind:     kind,
			Nullable: nullable || pointer,
			Type:     nf.Type,
			index:    nf.Index,
			embedded: e,
		})
	}

	if len(e.Fields) == 0 {
		return nil, &core.MappingError{Type: owner, Field: sf.Name, Reason: "embedded type " + nested.Name() + " declares no fields"}
	}
	return e, nil
}

// Flatten encodes the nested value in column order. A nil embedded pointer
// binds NULL in every position.
func (e *Embedded) Flatten(owner reflect.Value) ([]any, error) {
	ev := indirect(owner).FieldByIndex(e.index)
	values := make([]any, 0, len(e.Fields))

	if e.Pointer {
		if ev.IsNil() {
			for _, f := range e.Fields {
				null, err := NullOf(f.Kind)
				if err != nil {
					return nil, err
				}
				values = append(values, null)
			}
			return values, nil
		}
		ev = ev.Elem()
	}

	for _, f := range e.Fields {
		v, err := f.Encode(ev.FieldByIndex(f.index))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// Reconstruct rebuilds the nested value from this group's holders. A pointer
// group whose columns are all NULL stays nil.
func (e *Embedded) Reconstruct(owner reflect.Value, holders []any) error {
	ev := indirect(owner).FieldByIndex(e.index)

	target := ev
	if e.Pointer {
		allNull := true
		for _, h := range holders {
			if HolderValid(h) {
				allNull = false
				break
			}
		}
		if allNull {
			ev.Set(reflect.Zero(ev.Type()))
			return nil
		}
		p := reflect.New(e.Type)
		ev.Set(p)
		target = p.Elem()
	}

	for i, f := range e.Fields {
		if err := f.Assign(target.FieldByIndex(f.index), holders[i]); err != nil {
			return err
		}
	}
	return nil
}
