package schema

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

var (
	uuidType = reflect.TypeFor[uuid.UUID]()
	timeType = reflect.TypeFor[time.Time]()
)

// KindOf classifies a Go type. Pointers are the nullable form of their
// element kind. It returns core.KindInvalid for types outside the scalar set.
func KindOf(t reflect.Type) (kind core.Kind, nullable bool) {
	if t.Kind() == reflect.Pointer {
		nullable = true
		t = t.Elem()
	}

	switch t {
	case uuidType:
		return core.KindUUID, nullable
	case timeType:
		return core.KindTimestamp, nullable
	}

	switch t.Kind() {
	case reflect.String:
		return core.KindText, nullable
	case reflect.Int16:
		return core.KindInt16, nullable
	case reflect.Int32:
		return core.KindInt32, nullable
	case reflect.Int64, reflect.Int:
		return core.KindInt64, nullable
	case reflect.Float32:
		return core.KindFloat32, nullable
	case reflect.Float64:
		return core.KindFloat64, nullable
	case reflect.Bool:
		return core.KindBool, nullable
	default:
		return core.KindInvalid, nullable
	}
}

// NullOf returns the SQL NULL of kind as a typed driver value.
func NullOf(kind core.Kind) (any, error) {
	switch kind {
	case core.KindText, core.KindUUID:
		return sql.NullString{}, nil
	case core.KindInt16:
		return sql.NullInt16{}, nil
	case core.KindInt32:
		return sql.NullInt32{}, nil
	case core.KindInt64:
		return sql.NullInt64{}, nil
	case core.KindFloat32, core.KindFloat64:
		return sql.NullFloat64{}, nil
	case core.KindBool:
		return sql.NullBool{}, nil
	case core.KindTimestamp:
		return sql.NullTime{}, nil
	default:
		return nil, &core.UnsupportedTypeError{Kind: kind}
	}
}

// NewHolder allocates the scan destination for kind. Holders keep SQL NULL
// apart from the zero value.
func NewHolder(kind core.Kind) any {
	switch kind {
	case core.KindText, core.KindUUID:
		return &sql.NullString{}
	case core.KindInt16:
		return &sql.NullInt16{}
	case core.KindInt32:
		return &sql.NullInt32{}
	case core.KindInt64:
		return &sql.NullInt64{}
	case core.KindFloat32, core.KindFloat64:
		return &sql.NullFloat64{}
	case core.KindBool:
		return &sql.NullBool{}
	case core.KindTimestamp:
		return &sql.NullTime{}
	default:
		return nil
	}
}

// HolderValid reports whether the holder carries a non-NULL value.
func HolderValid(holder any) bool {
	switch h := holder.(type) {
	case *sql.NullString:
		return h.Valid
	case *sql.NullInt16:
		return h.Valid
	case *sql.NullInt32:
		return h.Valid
	case *sql.NullInt64:
		return h.Valid
	case *sql.NullFloat64:
		return h.Valid
	case *sql.NullBool:
		return h.Valid
	case *sql.NullTime:
		return h.Valid
	default:
		return false
	}
}

// Plain unwraps typed NULLs and other valuers into their driver value.
func Plain(arg any) any {
	if v, ok := arg.(driver.Valuer); ok {
		plain, err := v.Value()
		if err != nil {
			return nil
		}
		return plain
	}
	return arg
}

// Encode converts a field value into a driver argument. Nil pointers bind a
// NULL of the field's kind.
func (f *Field) Encode(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return NullOf(f.Kind)
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return NullOf(f.Kind)
		}
		v = v.Elem()
	}
	return f.encodeScalar(v)
}

// EncodeValue converts a loosely typed operand, such as an untyped int
// passed to a query builder, into a driver argument for this field.
func (f *Field) EncodeValue(value any) (any, error) {
	if IsNull(value) {
		return NullOf(f.Kind)
	}

	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}

	switch f.Kind {
	case core.KindUUID:
		switch x := v.Interface().(type) {
		case uuid.UUID:
			return x.String(), nil
		case string:
			id, err := uuid.Parse(x)
			if err != nil {
				return nil, fmt.Errorf("field %s: invalid uuid %q: %w", f.Name, x, err)
			}
			return id.String(), nil
		}
	case core.KindTimestamp:
		if t, ok := v.Interface().(time.Time); ok {
			return t, nil
		}
	case core.KindText:
		if v.Kind() == reflect.String {
			return v.String(), nil
		}
	case core.KindBool:
		if v.Kind() == reflect.Bool {
			return v.Bool(), nil
		}
	case core.KindInt16, core.KindInt32, core.KindInt64, core.KindFloat32, core.KindFloat64:
		if isNumeric(v.Kind()) {
			return convertNumber(f.Name, f.Kind, v)
		}
	}

	return nil, &core.UnsupportedTypeError{Type: v.Type(), Field: f.Name, Kind: f.Kind}
}

func (f *Field) encodeScalar(v reflect.Value) (any, error) {
	switch f.Kind {
	case core.KindText:
		return v.String(), nil
	case core.KindInt16, core.KindInt32, core.KindInt64, core.KindFloat32, core.KindFloat64:
		return convertNumber(f.Name, f.Kind, v)
	case core.KindBool:
		return v.Bool(), nil
	case core.KindUUID:
		return v.Interface().(uuid.UUID).String(), nil
	case core.KindTimestamp:
		return v.Interface().(time.Time), nil
	default:
		return nil, &core.UnsupportedTypeError{Type: v.Type(), Field: f.Name, Kind: f.Kind}
	}
}

func convertNumber(name string, kind core.Kind, v reflect.Value) (any, error) {
	switch kind {
	case core.KindInt16, core.KindInt32, core.KindInt64:
		n, ok := toInt64(v)
		if !ok || !fitsInt(kind, n) {
			return nil, &core.RangeError{Field: name, Kind: kind, Value: v.Interface()}
		}
		switch kind {
		case core.KindInt16:
			return int16(n), nil
		case core.KindInt32:
			return int32(n), nil
		}
		return n, nil
	case core.KindFloat32:
		x := toFloat64(v)
		if !math.IsInf(x, 0) && math.Abs(x) > math.MaxFloat32 {
			return nil, &core.RangeError{Field: name, Kind: kind, Value: v.Interface()}
		}
		return float32(x), nil
	case core.KindFloat64:
		return toFloat64(v), nil
	default:
		return nil, &core.UnsupportedTypeError{Type: v.Type(), Field: name, Kind: kind}
	}
}

// toInt64 reports false for values without an exact int64 form.
func toInt64(v reflect.Value) (int64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		x := v.Float()
		// NaN fails the first comparison.
		if x != math.Trunc(x) || x < -(1<<63) || x >= 1<<63 {
			return 0, false
		}
		return int64(x), true
	default:
		return 0, false
	}
}

func fitsInt(kind core.Kind, n int64) bool {
	switch kind {
	case core.KindInt16:
		return !reflect.ValueOf(int16(0)).OverflowInt(n)
	case core.KindInt32:
		return !reflect.ValueOf(int32(0)).OverflowInt(n)
	default:
		return true
	}
}

func toFloat64(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	case reflect.Float32, reflect.Float64:
		return v.Float()
	default:
		return 0
	}
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// IsNull reports whether value is nil or a nil pointer.
func IsNull(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// Assign writes the holder's value into dst. A NULL leaves a nullable field
// nil and a non-nullable field at its zero value.
func (f *Field) Assign(dst reflect.Value, holder any) error {
	val, valid, err := f.holderValue(holder)
	if err != nil {
		return err
	}
	if !valid {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	target := dst.Type()
	if target.Kind() == reflect.Pointer {
		p := reflect.New(target.Elem())
		p.Elem().Set(val.Convert(target.Elem()))
		dst.Set(p)
		return nil
	}
	dst.Set(val.Convert(target))
	return nil
}

// Value returns the holder's value in its canonical Go type, or nil for NULL.
func (f *Field) Value(holder any) (any, error) {
	val, valid, err := f.holderValue(holder)
	if err != nil || !valid {
		return nil, err
	}
	return val.Interface(), nil
}

func (f *Field) holderValue(holder any) (reflect.Value, bool, error) {
	switch h := holder.(type) {
	case *sql.NullString:
		if !h.Valid {
			return reflect.Value{}, false, nil
		}
		if f.Kind == core.KindUUID {
			id, err := uuid.Parse(h.String)
			if err != nil {
				return reflect.Value{}, false, fmt.Errorf("column %s: invalid uuid %q: %w", f.Column, h.String, err)
			}
			return reflect.ValueOf(id), true, nil
		}
		return reflect.ValueOf(h.String), true, nil
	case *sql.NullInt16:
		return reflect.ValueOf(h.Int16), h.Valid, nil
	case *sql.NullInt32:
		return reflect.ValueOf(h.Int32), h.Valid, nil
	case *sql.NullInt64:
		return reflect.ValueOf(h.Int64), h.Valid, nil
	case *sql.NullFloat64:
		if f.Kind == core.KindFloat32 {
			return reflect.ValueOf(float32(h.Float64)), h.Valid, nil
		}
		return reflect.ValueOf(h.Float64), h.Valid, nil
	case *sql.NullBool:
		return reflect.ValueOf(h.Bool), h.Valid, nil
	case *sql.NullTime:
		return reflect.ValueOf(h.Time), h.Valid, nil
	default:
		return reflect.Value{}, false, &core.UnsupportedTypeError{Type: reflect.TypeOf(holder), Field: f.Name, Kind: f.Kind}
	}
}
