package schema

import (
	"reflect"
	"strings"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

// Inspect builds the descriptor for an entity struct type (or a pointer to
// one). It is pure: callers that need caching keep the result themselves.
func Inspect(t reflect.Type) (*Descriptor, error) {
	if t == nil {
		return nil, &core.MappingError{Reason: "entity type is nil"}
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, &core.MappingError{Type: t, Reason: "entity must be a struct"}
	}

	d := &Descriptor{
		typ:    t,
		lookup: make(map[string]*Field),
	}

	var explicitPK *Field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		raw, tagged := sf.Tag.Lookup(TagName)
		if raw == "-" {
			continue
		}
		if !sf.IsExported() {
			if tagged {
				return nil, &core.MappingError{Type: t, Field: sf.Name, Reason: "tagged field is not exported and cannot be populated"}
			}
			continue
		}

		opts, err := parseTag(raw)
		if err != nil {
			return nil, &core.MappingError{Type: t, Field: sf.Name, Reason: err.Error()}
		}
		name := opts.name
		if name == "" {
			name = ColumnName(sf.Name)
		}

		switch {
		case opts.relation != RelationNone || isLazyType(sf.Type):
			rel, err := newRelationship(t, sf, name, opts)
			if err != nil {
				return nil, err
			}
			d.relationships = append(d.relationships, rel)

		case opts.embedded || isAnonymousStruct(sf, tagged):
			emb, err := newEmbedded(t, sf, name, opts)
			if err != nil {
				return nil, err
			}
			d.embedded = append(d.embedded, emb)

		default:
			kind, nullable := KindOf(sf.Type)
			if !kind.Valid() {
				return nil, &core.UnsupportedTypeError{Type: sf.Type, Field: t.Name() + "." + sf.Name}
			}
			column := name
			if opts.column != "" {
				column = opts.column
			}
			f := &Field{
				Name:     name,
				GoName:   sf.Name,
				Column:   column,
				Kind:     kind,
				Nullable: nullable,
				Type:     sf.Type,
				index:    sf.Index,
			}
			if opts.pk {
				if explicitPK != nil {
					return nil, &core.MappingError{Type: t, Field: sf.Name, Reason: "more than one primary key (already " + explicitPK.GoName + ")"}
				}
				explicitPK = f
			}
			d.fields = append(d.fields, f)
		}
	}

	if len(d.fields) == 0 && len(d.embedded) == 0 {
		return nil, &core.MappingError{Type: t, Reason: "entity declares no persistent fields"}
	}

	d.primaryKey = explicitPK
	if d.primaryKey == nil {
		if len(d.fields) == 0 {
			return nil, &core.MappingError{Type: t, Reason: "entity has no scalar field to use as primary key"}
		}
		d.primaryKey = d.fields[0]
	}
	d.primaryKey.PrimaryKey = true
	if d.primaryKey.Nullable {
		return nil, &core.MappingError{Type: t, Field: d.primaryKey.GoName, Reason: "primary key cannot be nullable"}
	}

	d.columns = append(d.columns, d.fields...)
	for _, e := range d.embedded {
		d.columns = append(d.columns, e.Fields...)
	}

	if err := d.index(); err != nil {
		return nil, err
	}
	if err := d.validateRelationships(); err != nil {
		return nil, err
	}

	d.columnList = strings.Join(d.ColumnNames(), ", ")
	return d, nil
}

func isAnonymousStruct(sf reflect.StructField, tagged bool) bool {
	if !sf.Anonymous || tagged {
		return false
	}
	t := sf.Type
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t != timeType && t != uuidType
}

// index registers every column under its logical, Go and column names and
// rejects duplicates.
func (d *Descriptor) index() error {
	names := make(map[string]bool)
	columns := make(map[string]bool)
	for _, f := range d.columns {
		if names[f.Name] {
			return &core.MappingError{Type: d.typ, Field: f.GoName, Reason: "duplicate field name " + f.Name}
		}
		names[f.Name] = true
		if columns[f.Column] {
			return &core.MappingError{Type: d.typ, Field: f.GoName, Reason: "duplicate column " + f.Column}
		}
		columns[f.Column] = true
	}
	for _, r := range d.relationships {
		if names[r.Name] {
			return &core.MappingError{Type: d.typ, Field: r.GoName, Reason: "duplicate field name " + r.Name}
		}
		names[r.Name] = true
	}

	for _, f := range d.columns {
		d.lookup[f.Name] = f
	}
	for _, f := range d.columns {
		if _, taken := d.lookup[f.Column]; !taken {
			d.lookup[f.Column] = f
		}
		if f.embedded == nil {
			if _, taken := d.lookup[f.GoName]; !taken {
				d.lookup[f.GoName] = f
			}
		}
	}
	return nil
}

func (d *Descriptor) validateRelationships() error {
	for _, r := range d.relationships {
		if !r.Owning() {
			continue
		}
		f, ok := d.FieldForColumn(r.JoinColumn)
		if !ok || f.embedded != nil {
			return &core.MappingError{
				Type:   d.typ,
				Field:  r.GoName,
				Reason: "join column " + r.JoinColumn + " must be a declared scalar column",
			}
		}
		if f.PrimaryKey && r.Kind == ManyToOne {
			return &core.MappingError{Type: d.typ, Field: r.GoName, Reason: "join column cannot be the primary key"}
		}
	}
	return nil
}
