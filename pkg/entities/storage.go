package entities

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/davis-data/davis-storage/pkg/apperrors"
	"github.com/davis-data/davis-storage/pkg/database"
	"github.com/davis-data/davis-storage/pkg/logging"
	"github.com/davis-data/davis-storage/pkg/metrics"
	"github.com/davis-data/davis-storage/pkg/models"
	"github.com/davis-data/davis-storage/pkg/query"
	"github.com/davis-data/davis-storage/pkg/sqlutil"
)

// Storage is generic CRUD over any registered entity type. Every operation is
// catalog-scoped and validates the entity type before touching the database.
//
// Create and Update are all-or-nothing at the validation stage: one bad
// entity rejects the whole batch before any write. The writes themselves are
// only atomic when the caller runs inside a transaction scope.
type Storage interface {
	// Query returns the entities matching expr, or all rows when expr is
	// empty. Sort properties are mapped through the registry; take/skip
	// apply after sorting.
	Query(ctx context.Context, catalog, entityType string, expr models.Expression, opts *models.QueryOptions) ([]models.Entity, error)

	// QueryByIDs returns entities by id, in the order the ids were given.
	QueryByIDs(ctx context.Context, catalog, entityType string, ids []int64) ([]models.Entity, error)

	// Create inserts entities (which must have zero ids), partitioned by
	// entity type, and returns them re-read from the store in insertion
	// order so the result reflects exactly what was persisted.
	Create(ctx context.Context, catalog string, entities []models.Entity) ([]models.Entity, error)

	// Update rewrites entities by id (which must be set) and returns the
	// post-update state re-read from the store.
	Update(ctx context.Context, catalog string, entities []models.Entity) ([]models.Entity, error)

	// Delete removes rows by id. Entries in ids that are not usable ids are
	// silently dropped; deleting zero rows is not an error. Returns the
	// number of rows removed.
	Delete(ctx context.Context, catalog, entityType string, ids []any) (int64, error)
}

type storage struct {
	q        database.Querier
	registry *Registry
	logger   *zap.Logger
}

// NewStorage creates a Storage bound to q, which may be a pool or an open
// transaction.
func NewStorage(q database.Querier, registry *Registry, logger *zap.Logger) Storage {
	return &storage{
		q:        q,
		registry: registry,
		logger:   logger.Named("entity-storage"),
	}
}

var _ Storage = (*storage)(nil)

func (s *storage) Query(ctx context.Context, catalog, entityType string, expr models.Expression, opts *models.QueryOptions) ([]models.Entity, error) {
	start := time.Now()
	result, err := s.query(ctx, catalog, entityType, expr, opts)
	metrics.Observe("entities", "query", start, err)
	return result, err
}

func (s *storage) query(ctx context.Context, catalog, entityType string, expr models.Expression, opts *models.QueryOptions) ([]models.Entity, error) {
	desc, err := s.registry.Descriptor(entityType)
	if err != nil {
		return nil, err
	}

	table, err := sqlutil.QualifiedTable(catalog, desc.Table)
	if err != nil {
		return nil, apperrors.Validation("bad catalog %q: %v", catalog, err)
	}

	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb, "SELECT * FROM %s", table)

	if len(expr) > 0 {
		predicate, err := query.Compile(desc.PropertyMappings, expr)
		if err != nil {
			return nil, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(predicate.SQL)
		args = predicate.Args
	}

	if err := appendOptions(&sb, &args, desc, opts); err != nil {
		return nil, err
	}

	rows, err := s.q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", desc.Table, err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s rows: %w", desc.Table, err)
	}

	result := make([]models.Entity, 0, len(records))
	for _, record := range records {
		result = append(result, desc.BuildEntity(models.Record(record)))
	}
	return result, nil
}

// appendOptions renders ORDER BY / LIMIT / OFFSET. The sort property goes
// through the registry mapping first, like any query property.
func appendOptions(sb *strings.Builder, args *[]any, desc *Descriptor, opts *models.QueryOptions) error {
	if opts == nil {
		return nil
	}

	if opts.Sort != nil {
		column, err := sqlutil.QuoteColumn(query.MapProperty(desc.PropertyMappings, opts.Sort.Property))
		if err != nil {
			return apperrors.Validation("bad sort property %q", opts.Sort.Property)
		}
		direction := "ASC"
		if opts.Sort.Direction == models.SortDescending {
			direction = "DESC"
		}
		fmt.Fprintf(sb, " ORDER BY %s %s", column, direction)
	}
	if opts.Take > 0 {
		*args = append(*args, opts.Take)
		fmt.Fprintf(sb, " LIMIT $%d", len(*args))
	}
	if opts.Skip > 0 {
		*args = append(*args, opts.Skip)
		fmt.Fprintf(sb, " OFFSET $%d", len(*args))
	}
	return nil
}

func (s *storage) QueryByIDs(ctx context.Context, catalog, entityType string, ids []int64) ([]models.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	found, err := s.Query(ctx, catalog, entityType, models.InIDs("id", ids), nil)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]models.Entity, len(found))
	for _, e := range found {
		byID[e.EntityID()] = e
	}

	ordered := make([]models.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			ordered = append(ordered, e)
		}
	}
	return ordered, nil
}

func (s *storage) Create(ctx context.Context, catalog string, entities []models.Entity) ([]models.Entity, error) {
	start := time.Now()
	result, err := s.create(ctx, catalog, entities)
	metrics.Observe("entities", "create", start, err)
	return result, err
}

func (s *storage) create(ctx context.Context, catalog string, entities []models.Entity) ([]models.Entity, error) {
	for _, e := range entities {
		if e.EntityID() != 0 {
			return nil, apperrors.Validation(
				"database records must have empty id properties when inserting new records")
		}
	}

	groups, order, err := s.partition(entities)
	if err != nil {
		return nil, err
	}

	// Build every record up front so a validation failure in any entity
	// aborts the whole batch before the first insert.
	recordGroups := make(map[string][]models.Record, len(groups))
	for _, entityType := range order {
		desc := s.mustDescriptor(entityType)
		records := make([]models.Record, 0, len(groups[entityType]))
		for _, e := range groups[entityType] {
			record, err := desc.BuildRecord(e)
			if err != nil {
				return nil, err
			}
			records = append(records, record)
		}
		recordGroups[entityType] = records
	}

	var result []models.Entity
	for _, entityType := range order {
		inserted, err := s.insert(ctx, catalog, entityType, recordGroups[entityType])
		if err != nil {
			return nil, err
		}
		result = append(result, inserted...)
	}
	return result, nil
}

// partition groups entities by type, preserving first-appearance order, and
// validates every type against the registry before any work happens.
func (s *storage) partition(entities []models.Entity) (map[string][]models.Entity, []string, error) {
	groups := make(map[string][]models.Entity)
	var order []string
	for _, e := range entities {
		entityType := e.EntityType()
		if _, err := s.registry.Descriptor(entityType); err != nil {
			return nil, nil, err
		}
		if _, seen := groups[entityType]; !seen {
			order = append(order, entityType)
		}
		groups[entityType] = append(groups[entityType], e)
	}
	return groups, order, nil
}

func (s *storage) mustDescriptor(entityType string) *Descriptor {
	desc, err := s.registry.Descriptor(entityType)
	if err != nil {
		panic(err)
	}
	return desc
}

// insert writes one type's records in a single multi-row statement and
// re-queries the assigned ids so the returned entities are what the store
// actually holds, not an echo of the input.
func (s *storage) insert(ctx context.Context, catalog, entityType string, records []models.Record) ([]models.Entity, error) {
	if len(records) == 0 {
		return nil, nil
	}

	desc := s.mustDescriptor(entityType)
	table, err := sqlutil.QualifiedTable(catalog, desc.Table)
	if err != nil {
		return nil, apperrors.Validation("bad catalog %q: %v", catalog, err)
	}

	for _, record := range records {
		s.logger.Debug("Inserting entity record",
			zap.String("catalog", catalog),
			zap.String("entity_type", entityType),
			zap.Any("record", logging.RedactColumns(record)))
	}

	columns := recordColumns(records[0])
	quoted := make([]string, len(columns))
	for i, col := range columns {
		if quoted[i], err = sqlutil.QuoteColumn(col); err != nil {
			return nil, fmt.Errorf("bad record column: %w", err)
		}
	}

	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(quoted, ", "))
	for i, record := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, col := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			args = append(args, record[col])
			fmt.Fprintf(&sb, "$%d", len(args))
		}
		sb.WriteString(")")
	}
	sb.WriteString(" RETURNING id")

	rows, err := s.q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", desc.Table, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted ids for %s: %w", desc.Table, err)
	}

	s.logger.Debug("Inserted entities",
		zap.String("catalog", catalog),
		zap.String("entity_type", entityType),
		zap.Int("count", len(ids)))

	return s.QueryByIDs(ctx, catalog, entityType, ids)
}

// recordColumns returns the record's columns minus id, sorted so statement
// shape is deterministic.
func recordColumns(record models.Record) []string {
	columns := make([]string, 0, len(record))
	for col := range record {
		if col == "id" {
			continue
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}

func (s *storage) Update(ctx context.Context, catalog string, entities []models.Entity) ([]models.Entity, error) {
	start := time.Now()
	result, err := s.update(ctx, catalog, entities)
	metrics.Observe("entities", "update", start, err)
	return result, err
}

func (s *storage) update(ctx context.Context, catalog string, entities []models.Entity) ([]models.Entity, error) {
	// Validate and build all records first; one bad entity rejects the batch.
	type pending struct {
		entityType string
		id         int64
		record     models.Record
	}
	updates := make([]pending, 0, len(entities))
	for _, e := range entities {
		desc, err := s.registry.Descriptor(e.EntityType())
		if err != nil {
			return nil, err
		}
		if e.EntityID() == 0 {
			return nil, apperrors.Validation(
				"database records must not have empty id properties when updating records")
		}
		record, err := desc.BuildRecord(e)
		if err != nil {
			return nil, err
		}
		updates = append(updates, pending{entityType: e.EntityType(), id: e.EntityID(), record: record})
	}

	result := make([]models.Entity, 0, len(updates))
	for _, u := range updates {
		updated, err := s.updateOne(ctx, catalog, u.entityType, u.id, u.record)
		if err != nil {
			return nil, err
		}
		result = append(result, updated...)
	}
	return result, nil
}

func (s *storage) updateOne(ctx context.Context, catalog, entityType string, id int64, record models.Record) ([]models.Entity, error) {
	desc := s.mustDescriptor(entityType)
	table, err := sqlutil.QualifiedTable(catalog, desc.Table)
	if err != nil {
		return nil, apperrors.Validation("bad catalog %q: %v", catalog, err)
	}

	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb, "UPDATE %s SET ", table)
	for i, col := range recordColumns(record) {
		quoted, err := sqlutil.QuoteColumn(col)
		if err != nil {
			return nil, fmt.Errorf("bad record column: %w", err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		args = append(args, record[col])
		fmt.Fprintf(&sb, "%s = $%d", quoted, len(args))
	}
	args = append(args, id)
	fmt.Fprintf(&sb, " WHERE id = $%d", len(args))

	s.logger.Debug("Updating entity record",
		zap.String("catalog", catalog),
		zap.Int64("id", id),
		zap.Any("record", logging.RedactColumns(record)))

	if _, err := s.q.Exec(ctx, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("failed to update %s id %d: %w", desc.Table, id, err)
	}

	return s.QueryByIDs(ctx, catalog, entityType, []int64{id})
}

func (s *storage) Delete(ctx context.Context, catalog, entityType string, ids []any) (int64, error) {
	start := time.Now()
	count, err := s.delete(ctx, catalog, entityType, ids)
	metrics.Observe("entities", "delete", start, err)
	return count, err
}

func (s *storage) delete(ctx context.Context, catalog, entityType string, ids []any) (int64, error) {
	desc, err := s.registry.Descriptor(entityType)
	if err != nil {
		return 0, err
	}

	table, err := sqlutil.QualifiedTable(catalog, desc.Table)
	if err != nil {
		return 0, apperrors.Validation("bad catalog %q: %v", catalog, err)
	}

	// Junk entries in the id list are dropped, not errors: deleting zero
	// rows for a bad id is fine.
	valid := make([]int64, 0, len(ids))
	for _, raw := range ids {
		if id, ok := models.ValidID(raw); ok {
			valid = append(valid, id)
		}
	}

	tag, err := s.q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", table), valid)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", desc.Table, err)
	}

	s.logger.Debug("Deleted entities",
		zap.String("catalog", catalog),
		zap.String("entity_type", entityType),
		zap.Int64("count", tag.RowsAffected()))

	return tag.RowsAffected(), nil
}
