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

// Delete removes the fact rows matching the criteria and returns the number
// of rows removed. A fully empty criteria set is rejected: the alternative
// reading, "delete the entire table", is never what a caller meant.
func (e *Engine) Delete(ctx context.Context, catalog string, criteria models.DeleteCriteria) (int64, error) {
	start := time.Now()
	count, err := e.delete(ctx, catalog, criteria)
	metrics.Observe("facts", "delete", start, err)
	return count, err
}

func (e *Engine) delete(ctx context.Context, catalog string, criteria models.DeleteCriteria) (int64, error) {
	if criteria.Empty() {
		return 0, apperrors.ErrNoDeleteCriteria
	}

	table, err := sqlutil.QualifiedTable(catalog, factsTable)
	if err != nil {
		return 0, apperrors.Validation("bad catalog %q: %v", catalog, err)
	}

	var conditions []string
	var args []any
	addCondition := func(column string, ids []int64) {
		if len(ids) == 0 {
			return
		}
		args = append(args, ids)
		conditions = append(conditions, fmt.Sprintf("%s = ANY($%d)", column, len(args)))
	}
	addCondition("data_set_id", criteria.DataSets)
	addCondition("variable_id", criteria.Variables)
	addCondition("attribute_id", criteria.Attributes)

	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", table, strings.Join(conditions, " AND "))
	tag, err := e.q.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete facts: %w", err)
	}

	e.logger.Debug("Deleted facts",
		zap.String("catalog", catalog),
		zap.Int64("count", tag.RowsAffected()))

	return tag.RowsAffected(), nil
}
