// Package query compiles the s-expression query language into parameterized
// SQL predicates. Compilation is depth-first and fail-fast: the first invalid
// leaf aborts the whole expression with a validation error and nothing is
// partially compiled.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/davis-data/davis-storage/pkg/apperrors"
	"github.com/davis-data/davis-storage/pkg/models"
	"github.com/davis-data/davis-storage/pkg/sqlutil"
)

// Predicate is a compiled expression: a SQL fragment with $1-based
// placeholders and its bound arguments. Callers appending further
// placeholders (LIMIT, OFFSET) continue numbering from len(Args)+1.
type Predicate struct {
	SQL  string
	Args []any
}

var comparisonOps = map[string]string{
	"=":    "=",
	"!=":   "<>",
	"<":    "<",
	"<=":   "<=",
	">":    ">",
	">=":   ">=",
	"like": "LIKE",
}

var membershipOps = map[string]bool{
	"in":    true,
	"notin": true,
}

var logicalOps = map[string]bool{
	"and": true,
	"or":  true,
	"nor": true,
	"not": true,
}

func validOperators() string {
	ops := make([]string, 0, len(comparisonOps)+len(membershipOps)+len(logicalOps))
	for op := range comparisonOps {
		ops = append(ops, op)
	}
	for op := range membershipOps {
		ops = append(ops, op)
	}
	for op := range logicalOps {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return strings.Join(ops, ", ")
}

// MapProperty rewrites an entity property name to its column name. Unmapped
// properties pass through unchanged so pre-existing column names can be
// queried without an explicit mapping entry.
func MapProperty(mappings map[string]string, property string) string {
	if column, ok := mappings[property]; ok {
		return column
	}
	return property
}

// MapExpression returns a copy of the expression with every leaf's property
// name rewritten through the mappings. Logical operators recurse; any invalid
// sub-expression aborts the whole rewrite.
func MapExpression(mappings map[string]string, expr models.Expression) (models.Expression, error) {
	op, err := operatorOf(expr)
	if err != nil {
		return nil, err
	}

	if logicalOps[op] {
		mapped := models.Expression{op}
		for _, raw := range expr[1:] {
			sub, ok := subExpression(raw)
			if !ok {
				return nil, apperrors.Validation("operator %q requires nested expressions, got %v", op, raw)
			}
			mappedSub, err := MapExpression(mappings, sub)
			if err != nil {
				return nil, err
			}
			mapped = append(mapped, []any(mappedSub))
		}
		return mapped, nil
	}

	property, ok := expr[1].(string)
	if !ok {
		return nil, apperrors.Validation("expression property must be a string, got %v", expr[1])
	}

	mapped := make(models.Expression, len(expr))
	copy(mapped, expr)
	mapped[1] = MapProperty(mappings, property)
	return mapped, nil
}

// Compile validates the expression, rewrites its property names, and renders
// it to a parameterized predicate.
func Compile(mappings map[string]string, expr models.Expression) (Predicate, error) {
	mapped, err := MapExpression(mappings, expr)
	if err != nil {
		return Predicate{}, err
	}

	var args []any
	sql, err := render(mapped, &args)
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{SQL: sql, Args: args}, nil
}

func render(expr models.Expression, args *[]any) (string, error) {
	op, err := operatorOf(expr)
	if err != nil {
		return "", err
	}

	switch {
	case logicalOps[op]:
		return renderLogical(op, expr[1:], args)
	case membershipOps[op]:
		return renderMembership(op, expr, args)
	default:
		return renderComparison(op, expr, args)
	}
}

func renderLogical(op string, rawSubs []any, args *[]any) (string, error) {
	if len(rawSubs) == 0 {
		return "", apperrors.Validation("operator %q requires at least one sub-expression", op)
	}
	if op == "not" && len(rawSubs) != 1 {
		return "", apperrors.Validation("operator \"not\" takes exactly one sub-expression, got %d", len(rawSubs))
	}

	parts := make([]string, 0, len(rawSubs))
	for _, raw := range rawSubs {
		sub, ok := subExpression(raw)
		if !ok {
			return "", apperrors.Validation("operator %q requires nested expressions, got %v", op, raw)
		}
		rendered, err := render(sub, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, rendered)
	}

	switch op {
	case "and":
		return "(" + strings.Join(parts, " AND ") + ")", nil
	case "or":
		return "(" + strings.Join(parts, " OR ") + ")", nil
	case "nor":
		return "NOT (" + strings.Join(parts, " OR ") + ")", nil
	default: // not
		return "NOT " + parts[0], nil
	}
}

func renderComparison(op string, expr models.Expression, args *[]any) (string, error) {
	sqlOp := comparisonOps[op]
	if len(expr) != 3 {
		return "", apperrors.Validation("comparison %q requires [op, property, value], got %d elements", op, len(expr))
	}

	column, err := columnOf(expr)
	if err != nil {
		return "", err
	}

	*args = append(*args, expr[2])
	return fmt.Sprintf("%s %s $%d", column, sqlOp, len(*args)), nil
}

// renderMembership compiles in/notin against an array parameter. An empty set
// is legal: "col = ANY(empty)" matches nothing, and the negated form matches
// everything.
func renderMembership(op string, expr models.Expression, args *[]any) (string, error) {
	if len(expr) != 3 {
		return "", apperrors.Validation("membership %q requires [op, property, values], got %d elements", op, len(expr))
	}

	column, err := columnOf(expr)
	if err != nil {
		return "", err
	}

	values, ok := valueList(expr[2])
	if !ok {
		return "", apperrors.Validation("membership %q requires a list of values, got %v", op, expr[2])
	}

	*args = append(*args, values)
	clause := fmt.Sprintf("%s = ANY($%d)", column, len(*args))
	if op == "notin" {
		return "NOT (" + clause + ")", nil
	}
	return clause, nil
}

func columnOf(expr models.Expression) (string, error) {
	property, ok := expr[1].(string)
	if !ok {
		return "", apperrors.Validation("expression property must be a string, got %v", expr[1])
	}
	column, err := sqlutil.QuoteColumn(property)
	if err != nil {
		return "", apperrors.Validation("expression property %q is not a valid column name", property)
	}
	return column, nil
}

func operatorOf(expr models.Expression) (string, error) {
	if len(expr) == 0 {
		return "", apperrors.Validation("empty query expression")
	}
	op, ok := expr[0].(string)
	if !ok {
		return "", apperrors.Validation("expression operator must be a string, got %v", expr[0])
	}
	if _, isComparison := comparisonOps[op]; !isComparison && !membershipOps[op] && !logicalOps[op] {
		return "", apperrors.Validation("unknown query operator %q (valid operators: %s)", op, validOperators())
	}
	return op, nil
}

func subExpression(raw any) (models.Expression, bool) {
	switch sub := raw.(type) {
	case models.Expression:
		return sub, true
	case []any:
		return models.Expression(sub), true
	default:
		return nil, false
	}
}

func valueList(raw any) ([]any, bool) {
	switch values := raw.(type) {
	case []any:
		return values, true
	case []int64:
		out := make([]any, len(values))
		for i, v := range values {
			out[i] = v
		}
		return out, true
	case []string:
		out := make([]any, len(values))
		for i, v := range values {
			out[i] = v
		}
		return out, true
	default:
		return nil, false
	}
}
