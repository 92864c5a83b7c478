package models

import "fmt"

// VariableType discriminates the three observation kinds. The integer values
// are the stored representation in the variables.type column.
type VariableType int

const (
	VariableTypeCategorical VariableType = 1
	VariableTypeNumerical   VariableType = 2
	VariableTypeText        VariableType = 3
)

func (t VariableType) String() string {
	switch t {
	case VariableTypeCategorical:
		return "categorical"
	case VariableTypeNumerical:
		return "numerical"
	case VariableTypeText:
		return "text"
	default:
		return fmt.Sprintf("VariableType(%d)", int(t))
	}
}

// Valid reports whether t is one of the three known variable types.
func (t VariableType) Valid() bool {
	return t == VariableTypeCategorical || t == VariableTypeNumerical || t == VariableTypeText
}

// Variable describes one observed dimension. Key is a stable machine name,
// defaulting to Name when unset. ScopedDataSet restricts the variable to a
// single data set when non-zero. Format is a free-form rendering hint stored
// as a JSON blob.
type Variable struct {
	Core
	Type          VariableType
	Key           string
	ScopedDataSet int64
	Format        any
}

func (*Variable) EntityType() string { return EntityTypeVariable }

// NewCategoricalVariable creates an unpersisted categorical variable.
func NewCategoricalVariable(name string) *Variable {
	return &Variable{Core: Core{Name: name}, Type: VariableTypeCategorical}
}

// NewNumericalVariable creates an unpersisted numerical variable.
func NewNumericalVariable(name string) *Variable {
	return &Variable{Core: Core{Name: name}, Type: VariableTypeNumerical}
}

// NewTextVariable creates an unpersisted text variable.
func NewTextVariable(name string) *Variable {
	return &Variable{Core: Core{Name: name}, Type: VariableTypeText}
}
