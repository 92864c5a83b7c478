// Package facts reads and writes the sparse observational fact table. Facts
// are keyed by (data set, individual, variable) and polymorphic over
// categorical, numerical and text variants; the engine aggregates rows into
// Individuals on read and flattens Individuals into rows on write.
package facts

import (
	"go.uber.org/zap"

	"github.com/davis-data/davis-storage/pkg/database"
)

const (
	factsTable     = "facts"
	variablesTable = "variables"
)

// Engine is the facts query/write engine for one backing handle. Bind it to
// a pool for standalone work or to a transaction scope's handle inside a
// coordinator-managed unit of work.
type Engine struct {
	q      database.Querier
	logger *zap.Logger
}

// NewEngine creates a facts engine bound to q.
func NewEngine(q database.Querier, logger *zap.Logger) *Engine {
	return &Engine{
		q:      q,
		logger: logger.Named("facts"),
	}
}
