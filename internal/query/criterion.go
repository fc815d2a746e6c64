package query

import (
	"fmt"
	"strings"
)

// Operator is a comparison used in a WHERE criterion.
type Operator string

const (
	Equals         Operator = "="
	NotEquals      Operator = "!="
	GreaterThan    Operator = ">"
	GreaterOrEqual Operator = ">="
	LessThan       Operator = "<"
	LessOrEqual    Operator = "<="
	Like           Operator = "LIKE"
	NotLike        Operator = "NOT LIKE"
	In             Operator = "IN"
	NotIn          Operator = "NOT IN"
	Between        Operator = "BETWEEN"
	IsNull         Operator = "IS NULL"
	IsNotNull      Operator = "IS NOT NULL"
)

// Arity returns the number of operands the operator takes, or -1 for
// list operators.
func (op Operator) Arity() int {
	switch op {
	case IsNull, IsNotNull:
		return 0
	case Between:
		return 2
	case In, NotIn:
		return -1
	default:
		return 1
	}
}

// Criterion is one WHERE condition. Args are already encoded driver values.
type Criterion struct {
	Column string
	Op     Operator
	Args   []any
}

// NewCriterion checks operand arity and builds a criterion.
func NewCriterion(column string, op Operator, args ...any) (Criterion, error) {
	if arity := op.Arity(); arity >= 0 && len(args) != arity {
		return Criterion{}, fmt.Errorf("operator %s takes %d operand(s), got %d", op, arity, len(args))
	}
	return Criterion{Column: column, Op: op, Args: args}, nil
}

// appendSQL writes the condition and returns the arguments it binds, in
// placeholder order.
func (c Criterion) appendSQL(sb *strings.Builder) []any {
	switch c.Op {
	case IsNull, IsNotNull:
		fmt.Fprintf(sb, "%s %s", c.Column, c.Op)
		return nil
	case Between:
		fmt.Fprintf(sb, "%s BETWEEN ? AND ?", c.Column)
		return c.Args
	case In, NotIn:
		if len(c.Args) == 0 {
			if c.Op == In {
				sb.WriteString("1 = 0")
			} else {
				sb.WriteString("1 = 1")
			}
			return nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(c.Args)), ", ")
		fmt.Fprintf(sb, "%s %s (%s)", c.Column, c.Op, placeholders)
		return c.Args
	default:
		fmt.Fprintf(sb, "%s %s ?", c.Column, c.Op)
		return c.Args
	}
}

// BindCount returns the number of placeholders the criterion renders.
func (c Criterion) BindCount() int {
	switch c.Op {
	case IsNull, IsNotNull:
		return 0
	default:
		return len(c.Args)
	}
}

// Where renders criteria joined with AND, without the WHERE keyword.
func Where(criteria []Criterion) (string, []any) {
	if len(criteria) == 0 {
		return "", nil
	}
	var sb strings.Builder
	var args []any
	for i, c := range criteria {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		args = append(args, c.appendSQL(&sb)...)
	}
	return sb.String(), args
}
