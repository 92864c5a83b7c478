// Package publish bulk-replaces a target catalog's rows with a source
// catalog's rows, either whole entity tables or facts scoped to a set of data
// sets. Publication runs raw SQL outside any transaction scope; it is a
// deliberate fire-and-forget copy, not a coordinated unit of work.
package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/davis-data/davis-storage/pkg/apperrors"
	"github.com/davis-data/davis-storage/pkg/database"
	"github.com/davis-data/davis-storage/pkg/entities"
	"github.com/davis-data/davis-storage/pkg/metrics"
	"github.com/davis-data/davis-storage/pkg/sqlutil"
)

const factsTable = "facts"

// Publisher copies catalog contents between schemas.
type Publisher struct {
	q        database.Querier
	registry *entities.Registry
	logger   *zap.Logger
}

// NewPublisher creates a publisher bound to q.
func NewPublisher(q database.Querier, registry *entities.Registry, logger *zap.Logger) *Publisher {
	return &Publisher{
		q:        q,
		registry: registry,
		logger:   logger.Named("publish"),
	}
}

// PublishEntities truncates the target catalog's tables for the given entity
// types and recopies them from the source catalog. Tables are processed in
// registration order regardless of the order given, so referenced rows land
// before the rows that point at them.
func (p *Publisher) PublishEntities(ctx context.Context, sourceCatalog, targetCatalog string, entityTypes []string) error {
	start := time.Now()
	err := p.publishEntities(ctx, sourceCatalog, targetCatalog, entityTypes)
	metrics.Observe("publish", "entities", start, err)
	return err
}

func (p *Publisher) publishEntities(ctx context.Context, sourceCatalog, targetCatalog string, entityTypes []string) error {
	if len(entityTypes) == 0 {
		return apperrors.Validation("no entity types provided to publish")
	}

	requested := make(map[string]bool, len(entityTypes))
	for _, entityType := range entityTypes {
		if _, err := p.registry.Descriptor(entityType); err != nil {
			return err
		}
		requested[entityType] = true
	}

	// Registration order puts referenced tables before their referents, so
	// copying forward keeps foreign keys satisfied.
	var tables []string
	for _, entityType := range p.registry.Types() {
		if requested[entityType] {
			desc, _ := p.registry.Descriptor(entityType)
			tables = append(tables, desc.Table)
		}
	}

	targetRefs := make([]string, len(tables))
	for i, table := range tables {
		ref, err := sqlutil.QualifiedTable(targetCatalog, table)
		if err != nil {
			return apperrors.Validation("bad publish target: %v", err)
		}
		targetRefs[i] = ref
	}

	// CASCADE clears rows in referencing tables that are not part of this
	// publication; they get repopulated by their own publish runs.
	stmt := fmt.Sprintf("TRUNCATE %s RESTART IDENTITY CASCADE", strings.Join(targetRefs, ", "))
	if _, err := p.q.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to truncate publish target: %w", err)
	}

	for i, table := range tables {
		sourceRef, err := sqlutil.QualifiedTable(sourceCatalog, table)
		if err != nil {
			return apperrors.Validation("bad publish source: %v", err)
		}
		copyStmt := fmt.Sprintf("INSERT INTO %s (SELECT * FROM %s)", targetRefs[i], sourceRef)
		if _, err := p.q.Exec(ctx, copyStmt); err != nil {
			return fmt.Errorf("failed to copy %s: %w", table, err)
		}
	}

	p.logger.Info("Published entity tables",
		zap.String("source", sourceCatalog),
		zap.String("target", targetCatalog),
		zap.Strings("entity_types", entityTypes))

	return nil
}

// PublishFacts deletes the target catalog's fact rows for the given data
// sets and recopies them from the source catalog.
func (p *Publisher) PublishFacts(ctx context.Context, sourceCatalog, targetCatalog string, dataSetIDs []int64) error {
	start := time.Now()
	err := p.publishFacts(ctx, sourceCatalog, targetCatalog, dataSetIDs)
	metrics.Observe("publish", "facts", start, err)
	return err
}

func (p *Publisher) publishFacts(ctx context.Context, sourceCatalog, targetCatalog string, dataSetIDs []int64) error {
	if len(dataSetIDs) == 0 {
		return apperrors.Validation("no data sets provided to publish")
	}

	targetRef, err := sqlutil.QualifiedTable(targetCatalog, factsTable)
	if err != nil {
		return apperrors.Validation("bad publish target: %v", err)
	}
	sourceRef, err := sqlutil.QualifiedTable(sourceCatalog, factsTable)
	if err != nil {
		return apperrors.Validation("bad publish source: %v", err)
	}

	deleteStmt := fmt.Sprintf("DELETE FROM %s WHERE data_set_id = ANY($1)", targetRef)
	if _, err := p.q.Exec(ctx, deleteStmt, dataSetIDs); err != nil {
		return fmt.Errorf("failed to clear publish target facts: %w", err)
	}

	copyStmt := fmt.Sprintf(
		"INSERT INTO %s (SELECT * FROM %s WHERE data_set_id = ANY($1))", targetRef, sourceRef)
	if _, err := p.q.Exec(ctx, copyStmt, dataSetIDs); err != nil {
		return fmt.Errorf("failed to copy facts: %w", err)
	}

	p.logger.Info("Published facts",
		zap.String("source", sourceCatalog),
		zap.String("target", targetCatalog),
		zap.Int64s("data_sets", dataSetIDs))

	return nil
}
