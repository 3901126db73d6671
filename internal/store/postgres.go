package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enrich/internal/db"
	"github.com/sells-group/catalog-enrich/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"get_raw":      `SELECT payload FROM raw_products WHERE manufacturer = $1 AND part_number = $2`,
	"get_enriched": `SELECT payload FROM enriched_products WHERE manufacturer = $1 AND part_number = $2`,
	"check_enriched": `SELECT content_hash, version, created_at FROM enriched_products
	                   WHERE manufacturer = $1 AND part_number = $2`,
	"append_log": `INSERT INTO pipeline_logs (run_id, ts, level, context, message, data)
	               VALUES ($1, $2, $3, $4, $5, $6)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, mainly for tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., bulk import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS raw_products (
	manufacturer TEXT NOT NULL,
	part_number  TEXT NOT NULL,
	payload      JSONB NOT NULL,
	imported_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (manufacturer, part_number)
);

CREATE TABLE IF NOT EXISTS enriched_products (
	manufacturer   TEXT NOT NULL,
	part_number    TEXT NOT NULL,
	payload        JSONB NOT NULL,
	content_hash   TEXT NOT NULL,
	version        TEXT NOT NULL,
	quality_score  INTEGER NOT NULL DEFAULT 0,
	quality_bucket TEXT NOT NULL DEFAULT 'low',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (manufacturer, part_number)
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	report      JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_logs (
	seq     BIGSERIAL PRIMARY KEY,
	run_id  TEXT NOT NULL,
	ts      TIMESTAMPTZ NOT NULL,
	level   TEXT NOT NULL,
	context TEXT NOT NULL,
	message TEXT NOT NULL,
	data    JSONB
);

CREATE INDEX IF NOT EXISTS idx_raw_products_category ON raw_products((payload->>'category'));
CREATE INDEX IF NOT EXISTS idx_enriched_quality ON enriched_products(quality_bucket);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_pipeline_logs_run ON pipeline_logs(run_id, seq);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// rawProductColumns is the bulk-import column order.
var rawProductColumns = []string{"manufacturer", "part_number", "payload", "imported_at"}

func (s *PostgresStore) ImportRaw(ctx context.Context, records []model.RawProductRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		key := rec.Key()
		if key.Manufacturer == "" || key.PartNumber == "" {
			continue
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal raw %s", key)
		}
		rows = append(rows, []any{key.Manufacturer, key.PartNumber, payload, now})
	}

	if len(rows) == 0 {
		return 0, nil
	}

	// A first load into an empty table can stream straight through COPY.
	// Once rows exist, re-imports need conflict handling and go through
	// the temp-table upsert.
	var hasRows bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM raw_products)`).Scan(&hasRows); err != nil {
		return 0, eris.Wrap(err, "postgres: check raw products")
	}
	if !hasRows {
		n, err := db.CopyFrom(ctx, s.pool, "raw_products", rawProductColumns, rows)
		return n, eris.Wrap(err, "postgres: import raw copy")
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "raw_products",
		Columns:      rawProductColumns,
		ConflictKeys: []string{"manufacturer", "part_number"},
	}, rows)
	return n, eris.Wrap(err, "postgres: import raw")
}

func (s *PostgresStore) ListCandidates(ctx context.Context, filter CandidateFilter) ([]model.RawProductRecord, error) {
	query := `SELECT payload FROM raw_products WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Brand != "" {
		query += fmt.Sprintf(` AND manufacturer = $%d`, argIdx)
		args = append(args, model.NormalizeKeyPart(filter.Brand))
		argIdx++
	}
	if filter.Category != "" {
		query += fmt.Sprintf(` AND payload->>'category' = $%d`, argIdx)
		args = append(args, filter.Category)
		argIdx++
	}
	query += ` ORDER BY manufacturer, part_number`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
		argIdx++
		if filter.Offset > 0 {
			query += fmt.Sprintf(` OFFSET $%d`, argIdx)
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var records []model.RawProductRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		var rec model.RawProductRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal candidate")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list candidates iterate")
}

func (s *PostgresStore) GetRaw(ctx context.Context, key model.RecordKey) (*model.RawProductRecord, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM raw_products WHERE manufacturer = $1 AND part_number = $2`,
		key.Manufacturer, key.PartNumber,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get raw %s", key)
	}

	var rec model.RawProductRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal raw")
	}
	return &rec, nil
}

func (s *PostgresStore) GetEnriched(ctx context.Context, key model.RecordKey) (*model.EnrichedRecord, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM enriched_products WHERE manufacturer = $1 AND part_number = $2`,
		key.Manufacturer, key.PartNumber,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get enriched %s", key)
	}

	var rec model.EnrichedRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal enriched")
	}
	return &rec, nil
}

func (s *PostgresStore) UpsertEnriched(ctx context.Context, rec *model.EnrichedRecord) (bool, error) {
	key := rec.Key()

	var storedHash, storedVersion string
	var createdAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT content_hash, version, created_at FROM enriched_products WHERE manufacturer = $1 AND part_number = $2`,
		key.Manufacturer, key.PartNumber,
	).Scan(&storedHash, &storedVersion, &createdAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		rec.CreatedAt = time.Now().UTC()
	case err != nil:
		return false, eris.Wrapf(err, "postgres: check enriched %s", key)
	case storedHash == rec.Hash && storedVersion == rec.Version:
		return false, nil
	default:
		rec.CreatedAt = createdAt
	}

	rec.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: marshal enriched %s", key)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO enriched_products
		 (manufacturer, part_number, payload, content_hash, version, quality_score, quality_bucket, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (manufacturer, part_number) DO UPDATE SET
		   payload = $3, content_hash = $4, version = $5,
		   quality_score = $6, quality_bucket = $7, updated_at = $9`,
		key.Manufacturer, key.PartNumber, payload, rec.Hash, rec.Version,
		rec.QualityScore, string(rec.QualityBucket), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: upsert enriched %s", key)
	}
	return true, nil
}

func (s *PostgresStore) PurgeEnriched(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM enriched_products`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge enriched")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, report *model.RunReport) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run report")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, mode, report, started_at, finished_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET report = $3, finished_at = $5`,
		report.ID, string(report.Mode), reportJSON, report.StartedAt, report.FinishedAt,
	)
	return eris.Wrapf(err, "postgres: save run %s", report.ID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.RunReport, error) {
	var reportJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM runs WHERE id = $1`, runID,
	).Scan(&reportJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	var report model.RunReport
	if err := json.Unmarshal(reportJSON, &report); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal run report")
	}
	return &report, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunReport, error) {
	query := `SELECT report FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Mode != "" {
		query += fmt.Sprintf(` AND mode = $%d`, argIdx)
		args = append(args, string(filter.Mode))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var reports []model.RunReport
	for rows.Next() {
		var reportJSON []byte
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run report")
		}
		var report model.RunReport
		if err := json.Unmarshal(reportJSON, &report); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run report")
		}
		reports = append(reports, report)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) AppendLog(ctx context.Context, runID string, event model.RunEvent) error {
	var dataJSON []byte
	if event.Data != nil {
		raw, err := json.Marshal(event.Data)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal log data")
		}
		dataJSON = raw
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_logs (run_id, ts, level, context, message, data) VALUES ($1, $2, $3, $4, $5, $6)`,
		runID, event.Timestamp, event.Level, event.Context, event.Message, dataJSON,
	)
	return eris.Wrapf(err, "postgres: append log for run %s", runID)
}

func (s *PostgresStore) ListLogs(ctx context.Context, runID string) ([]model.RunEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ts, level, context, message, data FROM pipeline_logs WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list logs for run %s", runID)
	}
	defer rows.Close()

	var events []model.RunEvent
	for rows.Next() {
		var ev model.RunEvent
		var dataJSON []byte
		if err := rows.Scan(&ev.Timestamp, &ev.Level, &ev.Context, &ev.Message, &dataJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan log event")
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &ev.Data); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal log data")
			}
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list logs iterate")
}
