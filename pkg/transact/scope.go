package transact

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/davis-data/davis-storage/pkg/apperrors"
	"github.com/davis-data/davis-storage/pkg/entities"
	"github.com/davis-data/davis-storage/pkg/facts"
)

// ErrRolledBack is the outcome of a rollback signalled without a reason.
var ErrRolledBack = errors.New("transaction rolled back")

// doomFlag is shared by every scope in one nesting tree. Once any scope
// rolls back, the shared transaction is doomed: the outermost scope rolls
// back on resolution no matter what its own signal says. This is what makes
// inner-scope failures propagate without callers re-raising them.
type doomFlag struct {
	mu  sync.Mutex
	err error
	set bool
}

func (d *doomFlag) doom(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.set {
		d.set = true
		d.err = err
	}
}

func (d *doomFlag) doomed() (error, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err, d.set
}

// Scope is one transactional unit of work. Depth zero owns the real
// transaction; nested scopes pass through to it. A scope reaches exactly one
// terminal outcome, after which further commit/rollback signals are no-ops.
type Scope struct {
	ctx      context.Context
	tx       pgx.Tx
	depth    int
	id       uuid.UUID
	timeout  time.Duration
	doom     *doomFlag
	registry *entities.Registry
	logger   *zap.Logger

	mu       sync.Mutex
	finished bool
	timer    *time.Timer

	outcome error
	done    chan struct{}
}

func newScope(ctx context.Context, tx pgx.Tx, depth int, timeout time.Duration, doom *doomFlag, registry *entities.Registry, logger *zap.Logger) *Scope {
	id := uuid.New()
	return &Scope{
		ctx:      ctx,
		tx:       tx,
		depth:    depth,
		id:       id,
		timeout:  timeout,
		doom:     doom,
		registry: registry,
		logger:   logger.With(zap.String("scope_id", id.String()), zap.Int("depth", depth)),
		done:     make(chan struct{}),
	}
}

// Entities returns an entity storage service bound to this scope's
// transaction.
func (s *Scope) Entities() entities.Storage {
	return entities.NewStorage(s.tx, s.registry, s.logger)
}

// Facts returns a facts engine bound to this scope's transaction.
func (s *Scope) Facts() *facts.Engine {
	return facts.NewEngine(s.tx, s.logger)
}

// Transact opens a nested scope reusing this scope's transaction handle. The
// inner scope's own commit is a pass-through no-op at the database level;
// its rollback dooms the shared transaction so the failure propagates to the
// outermost scope automatically.
func (s *Scope) Transact(fn WorkFn, opts ...Option) error {
	options := scopeOptions{timeout: s.timeout}
	for _, opt := range opts {
		opt(&options)
	}
	inner := newScope(s.ctx, s.tx, s.depth+1, options.timeout, s.doom, s.registry, s.logger)
	return inner.run(fn)
}

// Commit signals success. The first terminal signal wins; later ones are
// ignored.
func (s *Scope) Commit() {
	s.resolve(true, nil)
}

// Rollback signals failure with an optional reason.
func (s *Scope) Rollback(err error) {
	if err == nil {
		err = ErrRolledBack
	}
	s.resolve(false, err)
}

// run executes fn and blocks until the scope reaches its terminal outcome,
// whether by fn's return value, an explicit Commit/Rollback call, or the
// timeout. fn keeps running after an explicit resolution; its eventual
// return is then a no-op signal.
func (s *Scope) run(fn WorkFn) error {
	s.mu.Lock()
	s.timer = time.AfterFunc(s.timeout, func() {
		s.logger.Warn("Transaction scope timed out", zap.Duration("timeout", s.timeout))
		s.resolve(false, &apperrors.TimeoutError{Duration: s.timeout})
	})
	s.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.resolve(false, fmt.Errorf("panic in transaction scope: %v", r))
			}
		}()
		err := fn(s)
		s.resolve(err == nil, err)
	}()

	<-s.done
	return s.outcome
}

// resolve drives the scope to its terminal state exactly once. Only the
// depth-zero scope touches the real transaction; inner scopes record their
// outcome and, on failure, doom the shared handle.
func (s *Scope) resolve(commit bool, cause error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	if !commit {
		s.doom.doom(cause)
	}

	if s.depth == 0 {
		s.outcome = s.settle(commit, cause)
	} else if !commit {
		s.outcome = cause
	}

	close(s.done)
}

// settle performs the real commit or rollback for the outermost scope.
func (s *Scope) settle(commit bool, cause error) error {
	if doomErr, doomed := s.doom.doomed(); doomed {
		if err := s.tx.Rollback(s.ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Error("Rollback failed", zap.Error(err))
		}
		return doomErr
	}

	if !commit {
		// Unreachable in practice: a non-commit signal dooms the scope
		// above. Kept as a guard against future resolve paths.
		if err := s.tx.Rollback(s.ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Error("Rollback failed", zap.Error(err))
		}
		return cause
	}

	if err := s.tx.Commit(s.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
