package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS raw_products (
	manufacturer TEXT NOT NULL,
	part_number  TEXT NOT NULL,
	payload      TEXT NOT NULL,
	imported_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (manufacturer, part_number)
);

CREATE TABLE IF NOT EXISTS enriched_products (
	manufacturer   TEXT NOT NULL,
	part_number    TEXT NOT NULL,
	payload        TEXT NOT NULL,
	content_hash   TEXT NOT NULL,
	version        TEXT NOT NULL,
	quality_score  INTEGER NOT NULL DEFAULT 0,
	quality_bucket TEXT NOT NULL DEFAULT 'low',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (manufacturer, part_number)
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	report      TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_logs (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id  TEXT NOT NULL,
	ts      DATETIME NOT NULL,
	level   TEXT NOT NULL,
	context TEXT NOT NULL,
	message TEXT NOT NULL,
	data    TEXT
);

CREATE INDEX IF NOT EXISTS idx_raw_products_category ON raw_products(json_extract(payload, '$.category'));
CREATE INDEX IF NOT EXISTS idx_enriched_quality ON enriched_products(quality_bucket);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_pipeline_logs_run ON pipeline_logs(run_id, ts);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ImportRaw(ctx context.Context, records []model.RawProductRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import begin tx")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var written int64
	for _, rec := range records {
		key := rec.Key()
		if key.Manufacturer == "" || key.PartNumber == "" {
			continue
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal raw %s", key)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO raw_products (manufacturer, part_number, payload, imported_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (manufacturer, part_number) DO UPDATE SET payload = excluded.payload, imported_at = excluded.imported_at`,
			key.Manufacturer, key.PartNumber, string(payload), now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import raw %s", key)
		}
		n, _ := res.RowsAffected()
		written += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import commit")
	}
	return written, nil
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, filter CandidateFilter) ([]model.RawProductRecord, error) {
	query := `SELECT payload FROM raw_products WHERE 1=1`
	var args []any

	if filter.Brand != "" {
		query += ` AND manufacturer = ?`
		args = append(args, model.NormalizeKeyPart(filter.Brand))
	}
	if filter.Category != "" {
		query += ` AND json_extract(payload, '$.category') = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY manufacturer, part_number`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close()

	var records []model.RawProductRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		var rec model.RawProductRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal candidate")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list candidates iterate")
}

func (s *SQLiteStore) GetRaw(ctx context.Context, key model.RecordKey) (*model.RawProductRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM raw_products WHERE manufacturer = ? AND part_number = ?`,
		key.Manufacturer, key.PartNumber,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get raw %s", key)
	}

	var rec model.RawProductRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal raw")
	}
	return &rec, nil
}

func (s *SQLiteStore) GetEnriched(ctx context.Context, key model.RecordKey) (*model.EnrichedRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM enriched_products WHERE manufacturer = ? AND part_number = ?`,
		key.Manufacturer, key.PartNumber,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get enriched %s", key)
	}

	var rec model.EnrichedRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal enriched")
	}
	return &rec, nil
}

func (s *SQLiteStore) UpsertEnriched(ctx context.Context, rec *model.EnrichedRecord) (bool, error) {
	key := rec.Key()

	var storedHash, storedVersion string
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash, version, created_at FROM enriched_products WHERE manufacturer = ? AND part_number = ?`,
		key.Manufacturer, key.PartNumber,
	).Scan(&storedHash, &storedVersion, &createdAt)
	switch {
	case err == sql.ErrNoRows:
		rec.CreatedAt = time.Now().UTC()
	case err != nil:
		return false, eris.Wrapf(err, "sqlite: check enriched %s", key)
	case storedHash == rec.Hash && storedVersion == rec.Version:
		return false, nil
	default:
		rec.CreatedAt = createdAt
	}

	rec.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: marshal enriched %s", key)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enriched_products
		 (manufacturer, part_number, payload, content_hash, version, quality_score, quality_bucket, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (manufacturer, part_number) DO UPDATE SET
		   payload = excluded.payload, content_hash = excluded.content_hash, version = excluded.version,
		   quality_score = excluded.quality_score, quality_bucket = excluded.quality_bucket,
		   updated_at = excluded.updated_at`,
		key.Manufacturer, key.PartNumber, string(payload), rec.Hash, rec.Version,
		rec.QualityScore, string(rec.QualityBucket), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert enriched %s", key)
	}
	return true, nil
}

func (s *SQLiteStore) PurgeEnriched(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM enriched_products`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge enriched")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) SaveRun(ctx context.Context, report *model.RunReport) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run report")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, report, started_at, finished_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET report = excluded.report, finished_at = excluded.finished_at`,
		report.ID, string(report.Mode), string(reportJSON), report.StartedAt, report.FinishedAt,
	)
	return eris.Wrapf(err, "sqlite: save run %s", report.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.RunReport, error) {
	var reportJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM runs WHERE id = ?`, runID,
	).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}

	var report model.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run report")
	}
	return &report, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunReport, error) {
	query := `SELECT report FROM runs WHERE 1=1`
	var args []any

	if filter.Mode != "" {
		query += ` AND mode = ?`
		args = append(args, string(filter.Mode))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var reports []model.RunReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run report")
		}
		var report model.RunReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run report")
		}
		reports = append(reports, report)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) AppendLog(ctx context.Context, runID string, event model.RunEvent) error {
	var dataJSON sql.NullString
	if event.Data != nil {
		raw, err := json.Marshal(event.Data)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal log data")
		}
		dataJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_logs (run_id, ts, level, context, message, data) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, event.Timestamp, event.Level, event.Context, event.Message, dataJSON,
	)
	return eris.Wrapf(err, "sqlite: append log for run %s", runID)
}

func (s *SQLiteStore) ListLogs(ctx context.Context, runID string) ([]model.RunEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, level, context, message, data FROM pipeline_logs WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list logs for run %s", runID)
	}
	defer rows.Close()

	var events []model.RunEvent
	for rows.Next() {
		var ev model.RunEvent
		var dataJSON sql.NullString
		if err := rows.Scan(&ev.Timestamp, &ev.Level, &ev.Context, &ev.Message, &dataJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan log event")
		}
		if dataJSON.Valid {
			if err := json.Unmarshal([]byte(dataJSON.String), &ev.Data); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal log data")
			}
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list logs iterate")
}
