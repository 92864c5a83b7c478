package models

// FactFilter is one heterogeneous filter specification for a facts query.
// Categorical filters name a variable and an optional attribute set (an empty
// set means "variable present with no category"). Numerical and text filters
// name a variable, a comparator, and a value. Filters AND together: an
// individual must satisfy every filter to be included.
type FactFilter struct {
	Type       VariableType
	Variable   int64
	Attributes []int64
	Comparator string
	Value      any
}

// CategoricalFilter matches individuals holding one of the given attributes
// for the variable.
func CategoricalFilter(variable int64, attributes ...int64) FactFilter {
	return FactFilter{Type: VariableTypeCategorical, Variable: variable, Attributes: attributes}
}

// NumericalFilter matches individuals whose numerical value for the variable
// satisfies the comparator.
func NumericalFilter(variable int64, comparator string, value any) FactFilter {
	return FactFilter{Type: VariableTypeNumerical, Variable: variable, Comparator: comparator, Value: value}
}

// TextFilter matches individuals whose text value for the variable equals
// value exactly.
func TextFilter(variable int64, value string) FactFilter {
	return FactFilter{Type: VariableTypeText, Variable: variable, Value: value}
}

// DeleteCriteria scopes a bulk fact delete. At least one of the three id
// lists must be non-empty; a fully empty criteria set is rejected rather than
// interpreted as "delete everything".
type DeleteCriteria struct {
	DataSets   []int64
	Variables  []int64
	Attributes []int64
}

// Empty reports whether no filter at all was supplied.
func (c DeleteCriteria) Empty() bool {
	return len(c.DataSets) == 0 && len(c.Variables) == 0 && len(c.Attributes) == 0
}
