package schema

import (
	"reflect"

	"github.com/iancoleman/strcase"
	"github.com/jinzhu/inflection"
)

// ColumnName returns the default logical name for a Go field.
func ColumnName(goName string) string {
	return strcase.ToSnake(goName)
}

// TableName returns the default table name for an entity type: the snake
// case type name, pluralized.
func TableName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		name = "entity"
	}
	return inflection.Plural(strcase.ToSnake(name))
}
