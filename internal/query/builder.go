package query

import (
	"github.com/rzpsarthak13/entity-mapper/internal/schema"
)

// Filter accumulates WHERE criteria for one entity type. The first error
// (unknown field, operand that cannot be encoded) is kept and later calls
// become no-ops, so fluent chains can report it once at execution.
type Filter struct {
	desc     *schema.Descriptor
	criteria []Criterion
	err      error
}

// NewFilter creates an empty filter for desc.
func NewFilter(desc *schema.Descriptor) *Filter {
	return &Filter{desc: desc}
}

// Add appends a criterion on field. Equality against nil becomes IS NULL and
// inequality against nil becomes IS NOT NULL.
func (f *Filter) Add(field string, op Operator, values ...any) {
	if f.err != nil {
		return
	}

	fd, err := f.desc.Require(field)
	if err != nil {
		f.err = err
		return
	}

	if len(values) == 1 && schema.IsNull(values[0]) {
		switch op {
		case Equals:
			op, values = IsNull, nil
		case NotEquals:
			op, values = IsNotNull, nil
		}
	}

	args := make([]any, 0, len(values))
	for _, v := range values {
		arg, err := fd.EncodeValue(v)
		if err != nil {
			f.err = err
			return
		}
		args = append(args, arg)
	}

	c, err := NewCriterion(fd.Column, op, args...)
	if err != nil {
		f.err = err
		return
	}
	f.criteria = append(f.criteria, c)
}

// Criteria returns the accumulated criteria in insertion order.
func (f *Filter) Criteria() []Criterion {
	return f.criteria
}

// Err returns the first build error.
func (f *Filter) Err() error {
	return f.err
}

// KeyEquals reports whether the filter is exactly "primary key = value".
func (f *Filter) KeyEquals() (any, bool) {
	if len(f.criteria) != 1 {
		return nil, false
	}
	c := f.criteria[0]
	if c.Op != Equals || c.Column != f.desc.PrimaryKey().Column {
		return nil, false
	}
	return c.Args[0], true
}

// SetList accumulates UPDATE assignments with the same error discipline as
// Filter.
type SetList struct {
	desc *schema.Descriptor
	sets []Assignment
	data map[string]any
	err  error
}

// NewSetList creates an empty assignment list for desc.
func NewSetList(desc *schema.Descriptor) *SetList {
	return &SetList{desc: desc, data: make(map[string]any)}
}

// Set appends column = value for field. A nil value binds a typed NULL.
func (s *SetList) Set(field string, value any) {
	if s.err != nil {
		return
	}
	fd, err := s.desc.Require(field)
	if err != nil {
		s.err = err
		return
	}
	arg, err := fd.EncodeValue(value)
	if err != nil {
		s.err = err
		return
	}
	s.sets = append(s.sets, Assignment{Column: fd.Column, Value: arg})
	s.data[fd.Column] = schema.Plain(arg)
}

// Assignments returns the assignments in insertion order.
func (s *SetList) Assignments() []Assignment {
	return s.sets
}

// Data returns column to plain value for change events.
func (s *SetList) Data() map[string]any {
	return s.data
}

// Err returns the first build error.
func (s *SetList) Err() error {
	return s.err
}
