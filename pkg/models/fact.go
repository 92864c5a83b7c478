package models

import (
	"fmt"
	"math"
	"strconv"
)

// Fact is one observed value for a (data set, individual, variable) triple.
// Exactly one value slot is populated according to Type; the others stay at
// their zero values. Facts are never addressable on their own, only as
// members of an Individual.
type Fact struct {
	Variable  int64
	Type      VariableType
	Attribute *int64
	Numerical *float64
	Text      string
}

// NewCategoricalFact builds a fact referencing an attribute. A zero attribute
// id stores NULL, meaning "variable present with no category".
func NewCategoricalFact(variable, attribute int64) Fact {
	f := Fact{Variable: variable, Type: VariableTypeCategorical}
	if attribute > 0 {
		f.Attribute = &attribute
	}
	return f
}

// NewNumericalFact builds a fact from an arbitrary input value. Inputs that
// do not parse as a finite number store NULL rather than failing; ingest
// pipelines routinely feed garbage cells through here.
func NewNumericalFact(variable int64, value any) Fact {
	return Fact{Variable: variable, Type: VariableTypeNumerical, Numerical: CoerceNumerical(value)}
}

// NewTextFact builds a fact holding the input's string form.
func NewTextFact(variable int64, value any) Fact {
	return Fact{Variable: variable, Type: VariableTypeText, Text: fmt.Sprint(value)}
}

// CoerceNumerical converts an arbitrary value to a nullable float. Anything
// that is not a finite number (or a string spelling one) becomes nil.
func CoerceNumerical(value any) *float64 {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		f = parsed
	case nil:
		return nil
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Individual is the aggregated set of facts for one (data set, individual id)
// pair. It exists only in memory: the query engine assembles individuals from
// fact rows and the write engine flattens them back out.
type Individual struct {
	ID      int64
	DataSet int64
	Facts   []Fact
}

// NewIndividual builds an individual from its facts.
func NewIndividual(id, dataSet int64, facts ...Fact) Individual {
	return Individual{ID: id, DataSet: dataSet, Facts: facts}
}
