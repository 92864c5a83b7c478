// Package transact coordinates transactional units of work. A scope pairs a
// backing transaction with exactly one terminal outcome (committed or rolled
// back); nested scopes share the outermost scope's transaction handle, so
// composing small transactional functions into a larger one is a structuring
// convenience, not independent atomicity.
package transact

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/davis-data/davis-storage/pkg/database"
	"github.com/davis-data/davis-storage/pkg/entities"
	"github.com/davis-data/davis-storage/pkg/metrics"
)

// WorkFn is a caller-supplied unit of work. It runs with a storage API bound
// to the scope's transaction. Returning nil commits and returning an error
// rolls back, unless the function already resolved the scope explicitly via
// Commit/Rollback; whichever terminal signal arrives first wins and all later
// signals are ignored.
type WorkFn func(scope *Scope) error

// Coordinator opens transaction scopes against one database.
type Coordinator struct {
	db             *database.DB
	registry       *entities.Registry
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// NewCoordinator creates a coordinator. defaultTimeout bounds scopes that
// specify no timeout of their own; zero falls back to 10 seconds.
func NewCoordinator(db *database.DB, registry *entities.Registry, defaultTimeout time.Duration, logger *zap.Logger) *Coordinator {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return &Coordinator{
		db:             db,
		registry:       registry,
		defaultTimeout: defaultTimeout,
		logger:         logger.Named("transact"),
	}
}

// Option adjusts one scope.
type Option func(*scopeOptions)

type scopeOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the coordinator's default timeout for one scope.
func WithTimeout(d time.Duration) Option {
	return func(o *scopeOptions) {
		o.timeout = d
	}
}

// Transact opens a transaction, runs fn inside a scope bound to it, and
// returns the scope's terminal outcome. If no commit or rollback signal has
// arrived when the timeout elapses, the scope is force-rolled-back and a
// timeout error is returned.
func (c *Coordinator) Transact(ctx context.Context, fn WorkFn, opts ...Option) error {
	options := scopeOptions{timeout: c.defaultTimeout}
	for _, opt := range opts {
		opt(&options)
	}

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	scope := newScope(ctx, tx, 0, options.timeout, &doomFlag{}, c.registry, c.logger)
	start := time.Now()
	err = scope.run(fn)
	metrics.Observe("transact", "scope", start, err)
	return err
}
