package models

// Expression is an s-expression-shaped query term, mirroring the JSON shape
// external callers construct:
//
//	["=", "name", "GDP"]                  comparison
//	["in", "id", []any{1, 2, 3}]          membership
//	["and", expr, expr, ...]              conjunction
//	["not", expr]                         negation
//
// Expressions are validated and compiled by pkg/query; an empty expression
// means "all rows".
type Expression []any

// Comparison operator expression builders. These are conveniences for Go
// callers; expressions arriving over the wire are plain nested slices.

// Eq builds ["=", property, value].
func Eq(property string, value any) Expression {
	return Expression{"=", property, value}
}

// In builds ["in", property, values].
func In(property string, values []any) Expression {
	return Expression{"in", property, values}
}

// InIDs builds an id-membership expression from typed ids.
func InIDs(property string, ids []int64) Expression {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return In(property, values)
}

// And combines sub-expressions conjunctively.
func And(exprs ...Expression) Expression {
	combined := Expression{"and"}
	for _, e := range exprs {
		combined = append(combined, []any(e))
	}
	return combined
}

// SortDirection is ascending or descending; there is no third option.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// SortOption orders query results by an entity property. The property name
// is mapped through the registry before reaching the database.
type SortOption struct {
	Property  string
	Direction SortDirection
}

// QueryOptions carries the optional sort/paging knobs of an entity query.
// Take and Skip apply after sorting; zero values mean "no limit"/"no offset".
type QueryOptions struct {
	Sort *SortOption
	Take int64
	Skip int64
}
