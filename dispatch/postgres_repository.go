package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/liamcoop/dispatch/chunk"
)

// deleteBatchSize bounds the number of ids per DELETE statement.
const deleteBatchSize = 100

// Querier is the subset of *sql.DB used by the Postgres repository.
// Narrowing the dependency lets tests count backing-store round trips.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresDetectorRepository implements DetectorRepository backed by
// PostgreSQL, plus the configuration CRUD that owns data sources and
// detectors.
type PostgresDetectorRepository struct {
	db Querier
}

// NewPostgresDetectorRepository creates a PostgreSQL-backed repository.
func NewPostgresDetectorRepository(db Querier) *PostgresDetectorRepository {
	return &PostgresDetectorRepository{db: db}
}

// BulkFetchEnabledDetectors resolves the whole batch in at most three
// queries: the detectors joined through the data-source link table,
// their condition groups, and those groups' conditions. The last two
// are skipped when no returned detector has a condition group, so the
// round-trip count never depends on the batch size.
func (r *PostgresDetectorRepository) BulkFetchEnabledDetectors(ctx context.Context, queryType string, sourceIDs []string) (map[string][]Detector, error) {
	result := make(map[string][]Detector)
	if len(sourceIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT ds.source_id, d.id, d.name, d.type, d.enabled, d.condition_group_id, d.created_at, d.updated_at
		FROM data_sources ds
		JOIN data_source_detectors dsd ON dsd.data_source_id = ds.id
		JOIN detectors d ON d.id = dsd.detector_id
		WHERE ds.type = $1 AND ds.source_id = ANY($2) AND d.enabled = true
		ORDER BY d.created_at ASC, d.id ASC
	`, queryType, pq.Array(sourceIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch detectors: %w", err)
	}
	defer rows.Close()

	type fetched struct {
		sourceID string
		detector Detector
		groupID  sql.NullString
	}

	var entries []fetched
	groupIDSet := make(map[string]struct{})
	for rows.Next() {
		var f fetched
		if err := rows.Scan(&f.sourceID, &f.detector.ID, &f.detector.Name, &f.detector.Type,
			&f.detector.Enabled, &f.groupID, &f.detector.CreatedAt, &f.detector.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan detector: %w", err)
		}
		if f.groupID.Valid {
			groupIDSet[f.groupID.String] = struct{}{}
		}
		entries = append(entries, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating detectors: %w", err)
	}

	groups, err := r.fetchConditionGroups(ctx, groupIDSet)
	if err != nil {
		return nil, err
	}

	for _, f := range entries {
		d := f.detector
		if f.groupID.Valid {
			d.WorkflowConditionGroup = groups[f.groupID.String]
		}
		result[f.sourceID] = append(result[f.sourceID], d)
	}

	return result, nil
}

// fetchConditionGroups loads condition groups and their conditions in
// two queries, keyed by group id.
func (r *PostgresDetectorRepository) fetchConditionGroups(ctx context.Context, groupIDSet map[string]struct{}) (map[string]*ConditionGroup, error) {
	groups := make(map[string]*ConditionGroup)
	if len(groupIDSet) == 0 {
		return groups, nil
	}

	groupIDs := make([]string, 0, len(groupIDSet))
	for id := range groupIDSet {
		groupIDs = append(groupIDs, id)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, logic_type
		FROM condition_groups
		WHERE id = ANY($1)
	`, pq.Array(groupIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch condition groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var g ConditionGroup
		if err := rows.Scan(&g.ID, &g.LogicType); err != nil {
			return nil, fmt.Errorf("failed to scan condition group: %w", err)
		}
		groups[g.ID] = &g
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating condition groups: %w", err)
	}

	condRows, err := r.db.QueryContext(ctx, `
		SELECT id, condition_group_id, type, comparison, condition_result
		FROM conditions
		WHERE condition_group_id = ANY($1)
		ORDER BY condition_group_id, position ASC
	`, pq.Array(groupIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conditions: %w", err)
	}
	defer condRows.Close()

	for condRows.Next() {
		var c Condition
		var groupID string
		var comparison []byte
		if err := condRows.Scan(&c.ID, &groupID, &c.Type, &comparison, &c.ConditionResult); err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}
		if len(comparison) > 0 {
			if err := json.Unmarshal(comparison, &c.Comparison); err != nil {
				return nil, fmt.Errorf("invalid comparison for condition %s: %w", c.ID, err)
			}
		}
		if g, ok := groups[groupID]; ok {
			g.Conditions = append(g.Conditions, c)
		}
	}
	if err := condRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conditions: %w", err)
	}

	return groups, nil
}

// CreateDataSource inserts a new data source.
func (r *PostgresDetectorRepository) CreateDataSource(ctx context.Context, ds *DataSource) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM data_sources WHERE source_id = $1 AND type = $2)
	`, ds.SourceID, ds.Type).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check data source existence: %w", err)
	}
	if exists {
		return fmt.Errorf("data source %s of type %s already exists", ds.SourceID, ds.Type)
	}

	now := time.Now()
	ds.CreatedAt = now
	ds.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO data_sources (id, source_id, type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ds.ID, ds.SourceID, ds.Type, ds.CreatedAt, ds.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert data source: %w", err)
	}

	return nil
}

// GetDataSource retrieves a data source by ID.
func (r *PostgresDetectorRepository) GetDataSource(ctx context.Context, id string) (*DataSource, error) {
	var ds DataSource
	err := r.db.QueryRowContext(ctx, `
		SELECT id, source_id, type, created_at, updated_at
		FROM data_sources
		WHERE id = $1
	`, id).Scan(&ds.ID, &ds.SourceID, &ds.Type, &ds.CreatedAt, &ds.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("data source %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data source: %w", err)
	}

	return &ds, nil
}

// ListDataSources returns all data sources ordered by creation time.
func (r *PostgresDetectorRepository) ListDataSources(ctx context.Context) ([]*DataSource, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, type, created_at, updated_at
		FROM data_sources
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	defer rows.Close()

	var sources []*DataSource
	for rows.Next() {
		var ds DataSource
		if err := rows.Scan(&ds.ID, &ds.SourceID, &ds.Type, &ds.CreatedAt, &ds.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan data source: %w", err)
		}
		sources = append(sources, &ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data sources: %w", err)
	}

	return sources, nil
}

// UpdateDataSource modifies the source id and type of a data source.
func (r *PostgresDetectorRepository) UpdateDataSource(ctx context.Context, ds *DataSource) error {
	ds.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, `
		UPDATE data_sources
		SET source_id = $1, type = $2, updated_at = $3
		WHERE id = $4
	`, ds.SourceID, ds.Type, ds.UpdatedAt, ds.ID)
	if err != nil {
		return fmt.Errorf("failed to update data source: %w", err)
	}

	return requireRowsAffected(result, fmt.Sprintf("data source %s", ds.ID))
}

// DeleteDataSource removes a data source; link rows cascade.
func (r *PostgresDetectorRepository) DeleteDataSource(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM data_sources WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete data source: %w", err)
	}

	return requireRowsAffected(result, fmt.Sprintf("data source %s", id))
}

// CreateDetector inserts a detector, along with its condition group
// and conditions when present.
func (r *PostgresDetectorRepository) CreateDetector(ctx context.Context, d *Detector) error {
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now

	var groupID sql.NullString
	if g := d.WorkflowConditionGroup; g != nil {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO condition_groups (id, logic_type, created_at)
			VALUES ($1, $2, $3)
		`, g.ID, g.LogicType, now); err != nil {
			return fmt.Errorf("failed to insert condition group: %w", err)
		}

		// The slice index becomes the persisted position so the group
		// round-trips in its authored order.
		for i, c := range g.Conditions {
			comparison, err := json.Marshal(c.Comparison)
			if err != nil {
				return fmt.Errorf("invalid comparison for condition %s: %w", c.ID, err)
			}
			if _, err := r.db.ExecContext(ctx, `
				INSERT INTO conditions (id, condition_group_id, position, type, comparison, condition_result, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, c.ID, g.ID, i, c.Type, comparison, c.ConditionResult, now); err != nil {
				return fmt.Errorf("failed to insert condition: %w", err)
			}
		}

		groupID = sql.NullString{String: g.ID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO detectors (id, name, type, enabled, condition_group_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID, d.Name, d.Type, d.Enabled, groupID, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert detector: %w", err)
	}

	return nil
}

// GetDetector retrieves a detector by ID with its condition group and
// conditions attached.
func (r *PostgresDetectorRepository) GetDetector(ctx context.Context, id string) (*Detector, error) {
	var d Detector
	var groupID sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, type, enabled, condition_group_id, created_at, updated_at
		FROM detectors
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Type, &d.Enabled, &groupID, &d.CreatedAt, &d.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("detector %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get detector: %w", err)
	}

	if groupID.Valid {
		groups, err := r.fetchConditionGroups(ctx, map[string]struct{}{groupID.String: {}})
		if err != nil {
			return nil, err
		}
		d.WorkflowConditionGroup = groups[groupID.String]
	}

	return &d, nil
}

// UpdateDetector modifies a detector's name, type and enabled flag.
func (r *PostgresDetectorRepository) UpdateDetector(ctx context.Context, d *Detector) error {
	d.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, `
		UPDATE detectors
		SET name = $1, type = $2, enabled = $3, updated_at = $4
		WHERE id = $5
	`, d.Name, d.Type, d.Enabled, d.UpdatedAt, d.ID)
	if err != nil {
		return fmt.Errorf("failed to update detector: %w", err)
	}

	return requireRowsAffected(result, fmt.Sprintf("detector %s", d.ID))
}

// AttachDetector links a detector to a data source.
func (r *PostgresDetectorRepository) AttachDetector(ctx context.Context, dataSourceID, detectorID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO data_source_detectors (data_source_id, detector_id)
		VALUES ($1, $2)
	`, dataSourceID, detectorID)
	if err != nil {
		return fmt.Errorf("failed to attach detector %s to data source %s: %w", detectorID, dataSourceID, err)
	}

	return nil
}

// DeleteDetectors removes detectors and their condition groups in
// batches of deleteBatchSize, keeping each statement's parameter count
// bounded no matter how many ids are passed.
func (r *PostgresDetectorRepository) DeleteDetectors(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	return chunk.Process(ids, deleteBatchSize, 0, func(batch []string) error {
		rows, err := r.db.QueryContext(ctx, `
			DELETE FROM detectors
			WHERE id = ANY($1)
			RETURNING condition_group_id
		`, pq.Array(batch))
		if err != nil {
			return fmt.Errorf("failed to delete detectors: %w", err)
		}
		defer rows.Close()

		var groupIDs []string
		for rows.Next() {
			var groupID sql.NullString
			if err := rows.Scan(&groupID); err != nil {
				return fmt.Errorf("failed to scan deleted detector: %w", err)
			}
			if groupID.Valid {
				groupIDs = append(groupIDs, groupID.String)
			}
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating deleted detectors: %w", err)
		}

		if len(groupIDs) == 0 {
			return nil
		}

		// Conditions cascade with their group.
		if _, err := r.db.ExecContext(ctx, `
			DELETE FROM condition_groups WHERE id = ANY($1)
		`, pq.Array(groupIDs)); err != nil {
			return fmt.Errorf("failed to delete condition groups: %w", err)
		}

		return nil
	})
}

func requireRowsAffected(result sql.Result, subject string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s not found", subject)
	}
	return nil
}
