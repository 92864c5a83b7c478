package facts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davis-data/davis-storage/pkg/apperrors"
	"github.com/davis-data/davis-storage/pkg/metrics"
	"github.com/davis-data/davis-storage/pkg/models"
	"github.com/davis-data/davis-storage/pkg/sqlutil"
)

var validNumericalComparators = []string{"<", "<=", "=", ">=", ">"}

// Query returns the individuals satisfying every filter, restricted to the
// given data sets when dataSetIDs is non-empty. Each filter becomes a
// subquery selecting matching (data_set_id, individual_id) pairs; the outer
// query intersects them all, so filters AND together. limit caps the
// individual id range (ids at or below limit), matching how ingest assigns
// preview ranges.
//
// Result rows carry a total order (data_set_id, individual_id, variable_id)
// before grouping; the order decides which fact sits at which index inside an
// individual's fact list.
func (e *Engine) Query(ctx context.Context, catalog string, filters []models.FactFilter, dataSetIDs []int64, limit int64) ([]models.Individual, error) {
	start := time.Now()
	result, err := e.query(ctx, catalog, filters, dataSetIDs, limit)
	metrics.Observe("facts", "query", start, err)
	return result, err
}

func (e *Engine) query(ctx context.Context, catalog string, filters []models.FactFilter, dataSetIDs []int64, limit int64) ([]models.Individual, error) {
	factsRef, err := sqlutil.QualifiedTable(catalog, factsTable)
	if err != nil {
		return nil, apperrors.Validation("bad catalog %q: %v", catalog, err)
	}
	variablesRef, err := sqlutil.QualifiedTable(catalog, variablesTable)
	if err != nil {
		return nil, apperrors.Validation("bad catalog %q: %v", catalog, err)
	}

	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb,
		`SELECT f.data_set_id, f.individual_id, v.id, v.type, f.attribute_id, f.numerical_value, f.text_value
		 FROM %s AS f JOIN %s AS v ON f.variable_id = v.id`,
		factsRef, variablesRef)

	var conditions []string
	if limit > 0 {
		args = append(args, limit)
		conditions = append(conditions, fmt.Sprintf("f.individual_id <= $%d", len(args)))
	}
	if len(dataSetIDs) > 0 {
		args = append(args, dataSetIDs)
		conditions = append(conditions, fmt.Sprintf("f.data_set_id = ANY($%d)", len(args)))
	}
	for _, filter := range filters {
		clause, err := filterClause(filter, &args)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, fmt.Sprintf(
			"(f.data_set_id, f.individual_id) IN (SELECT data_set_id, individual_id FROM %s WHERE %s)",
			factsRef, clause))
	}
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	sb.WriteString(" ORDER BY f.data_set_id, f.individual_id, v.id")

	rows, err := e.q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	var individuals []models.Individual
	for rows.Next() {
		var (
			dataSetID    int64
			individualID int64
			variableID   int64
			variableType int
			attributeID  *int64
			numerical    *float64
			textValue    *string
		)
		if err := rows.Scan(&dataSetID, &individualID, &variableID, &variableType, &attributeID, &numerical, &textValue); err != nil {
			return nil, fmt.Errorf("failed to scan fact row: %w", err)
		}

		fact := buildFact(variableID, variableType, attributeID, numerical, textValue)

		// Rows arrive in (data set, individual) order, so a key change
		// always starts a fresh individual and the flattened list keeps
		// data-set groups contiguous.
		last := len(individuals) - 1
		if last < 0 || individuals[last].DataSet != dataSetID || individuals[last].ID != individualID {
			individuals = append(individuals, models.Individual{ID: individualID, DataSet: dataSetID})
			last++
		}
		individuals[last].Facts = append(individuals[last].Facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fact rows: %w", err)
	}

	return individuals, nil
}

// filterClause renders one filter's subquery predicate, appending its bound
// values to args.
func filterClause(filter models.FactFilter, args *[]any) (string, error) {
	switch filter.Type {
	case models.VariableTypeCategorical:
		*args = append(*args, filter.Variable)
		variableCond := fmt.Sprintf("variable_id = $%d", len(*args))
		if len(filter.Attributes) == 0 {
			// Variable present with no category.
			return variableCond + " AND attribute_id IS NULL", nil
		}
		*args = append(*args, filter.Attributes)
		return fmt.Sprintf("%s AND attribute_id = ANY($%d)", variableCond, len(*args)), nil

	case models.VariableTypeNumerical:
		if !isValidComparator(filter.Comparator) {
			return "", apperrors.Validation(
				"unsupported numerical comparator: %s. Valid comparators include: %s",
				filter.Comparator, strings.Join(validNumericalComparators, ","))
		}
		*args = append(*args, filter.Variable, filter.Value)
		return fmt.Sprintf("variable_id = $%d AND numerical_value %s $%d",
			len(*args)-1, filter.Comparator, len(*args)), nil

	case models.VariableTypeText:
		// Text filter values arrive from outside callers and head into a raw
		// statement, so they go through injection screening first.
		if result := sqlutil.CheckValueForInjection("text filter value", filter.Value); result != nil {
			return "", apperrors.Validation(
				"text filter value %q failed injection screening (fingerprint %s)",
				filter.Value, result.Fingerprint)
		}
		*args = append(*args, filter.Variable, filter.Value)
		return fmt.Sprintf("variable_id = $%d AND text_value = $%d", len(*args)-1, len(*args)), nil

	default:
		return "", apperrors.Validation("unknown filter type: %v", filter.Type)
	}
}

func isValidComparator(comparator string) bool {
	for _, valid := range validNumericalComparators {
		if comparator == valid {
			return true
		}
	}
	return false
}

// buildFact converts one joined row into a typed fact. An unrecognized
// variable type on a stored row means the store is corrupt, so this panics
// instead of returning an error.
func buildFact(variableID int64, variableType int, attributeID *int64, numerical *float64, textValue *string) models.Fact {
	switch models.VariableType(variableType) {
	case models.VariableTypeCategorical:
		fact := models.Fact{Variable: variableID, Type: models.VariableTypeCategorical}
		fact.Attribute = attributeID
		return fact
	case models.VariableTypeNumerical:
		return models.Fact{Variable: variableID, Type: models.VariableTypeNumerical, Numerical: numerical}
	case models.VariableTypeText:
		fact := models.Fact{Variable: variableID, Type: models.VariableTypeText}
		if textValue != nil {
			fact.Text = *textValue
		}
		return fact
	default:
		panic(fmt.Sprintf("invalid variable type %d on fact row (variable %d)", variableType, variableID))
	}
}
