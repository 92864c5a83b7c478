package facts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/davis-data/davis-storage/pkg/apperrors"
	"github.com/davis-data/davis-storage/pkg/metrics"
	"github.com/davis-data/davis-storage/pkg/models"
	"github.com/davis-data/davis-storage/pkg/sqlutil"
)

// Create flattens each individual's facts into one row per fact and
// bulk-inserts them. Exactly one value column is populated per row according
// to the fact's variant. Returns the number of individuals written, not the
// number of fact rows.
func (e *Engine) Create(ctx context.Context, catalog string, individuals []models.Individual) (int, error) {
	start := time.Now()
	count, err := e.create(ctx, catalog, individuals)
	metrics.Observe("facts", "create", start, err)
	return count, err
}

func (e *Engine) create(ctx context.Context, catalog string, individuals []models.Individual) (int, error) {
	if len(individuals) == 0 {
		return 0, nil
	}

	table, err := sqlutil.QualifiedTable(catalog, factsTable)
	if err != nil {
		return 0, apperrors.Validation("bad catalog %q: %v", catalog, err)
	}

	var sb strings.Builder
	var args []any
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString(" (data_set_id, individual_id, variable_id, attribute_id, numerical_value, text_value) VALUES ")

	first := true
	for _, individual := range individuals {
		for _, f := range individual.Facts {
			if !first {
				sb.WriteString(", ")
			}
			first = false

			attribute, numerical, text, err := valueColumns(f)
			if err != nil {
				return 0, err
			}

			args = append(args, individual.DataSet, individual.ID, f.Variable, attribute, numerical, text)
			n := len(args)
			fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)", n-5, n-4, n-3, n-2, n-1, n)
		}
	}
	if first {
		// Individuals with no facts produce no rows.
		return len(individuals), nil
	}

	if _, err := e.q.Exec(ctx, sb.String(), args...); err != nil {
		return 0, fmt.Errorf("failed to insert facts: %w", err)
	}

	e.logger.Debug("Wrote facts",
		zap.String("catalog", catalog),
		zap.Int("individuals", len(individuals)),
		zap.Int("facts", len(args)/6))

	return len(individuals), nil
}

// valueColumns selects the populated value slot for a fact row. Numerical
// facts that carried unparseable input arrive with a nil value and store
// NULL; that is data, not an error.
func valueColumns(f models.Fact) (attribute any, numerical any, text any, err error) {
	switch f.Type {
	case models.VariableTypeCategorical:
		if f.Attribute != nil {
			attribute = *f.Attribute
		}
	case models.VariableTypeNumerical:
		if f.Numerical != nil {
			numerical = *f.Numerical
		}
	case models.VariableTypeText:
		text = f.Text
	default:
		return nil, nil, nil, apperrors.Validation("unknown fact type: %v", f.Type)
	}
	return attribute, numerical, text, nil
}
