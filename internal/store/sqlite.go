package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/worklog-cli/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS fields (
	id     TEXT PRIMARY KEY,
	name   TEXT NOT NULL,
	code   TEXT NOT NULL DEFAULT '',
	area   REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS crops (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	scientific_name TEXT NOT NULL DEFAULT '',
	aliases         TEXT NOT NULL DEFAULT '[]',
	status          TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS materials (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	brand_name         TEXT NOT NULL DEFAULT '',
	active_ingredients TEXT NOT NULL DEFAULT '[]',
	material_type      TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS work_logs (
	log_id        TEXT PRIMARY KEY,
	submitter_id  TEXT NOT NULL,
	work_date     TEXT NOT NULL,
	work_category TEXT NOT NULL DEFAULT '',
	field_id      TEXT NOT NULL DEFAULT '',
	field_name    TEXT NOT NULL DEFAULT '',
	crop_id       TEXT NOT NULL DEFAULT '',
	crop_name     TEXT NOT NULL DEFAULT '',
	materials     TEXT NOT NULL DEFAULT '[]',
	quantity      REAL,
	unit          TEXT NOT NULL DEFAULT '',
	work_count    INTEGER,
	notes         TEXT NOT NULL DEFAULT '',
	tags          TEXT NOT NULL DEFAULT '[]',
	status        TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	confidence    REAL NOT NULL DEFAULT 0,
	raw_message   TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_confirmations (
	id           TEXT PRIMARY KEY,
	submitter_id TEXT NOT NULL,
	payload      TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_work_logs_submitter ON work_logs(submitter_id, created_at);
CREATE INDEX IF NOT EXISTS idx_work_logs_date ON work_logs(work_date);
CREATE INDEX IF NOT EXISTS idx_pending_submitter ON pending_confirmations(submitter_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the handle so tests and fixtures can seed reference rows.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- Reference data ---

func (s *SQLiteStore) ListFields(ctx context.Context) ([]model.Field, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, code, area, status FROM fields WHERE status <> 'deleted' ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list fields")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Field
	for rows.Next() {
		var f model.Field
		if err := rows.Scan(&f.ID, &f.Name, &f.Code, &f.Area, &f.Status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan field")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate fields")
}

func (s *SQLiteStore) ListCrops(ctx context.Context) ([]model.Crop, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, scientific_name, aliases, status FROM crops WHERE status <> 'deleted' ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list crops")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Crop
	for rows.Next() {
		var c model.Crop
		var aliases string
		if err := rows.Scan(&c.ID, &c.Name, &c.ScientificName, &aliases, &c.Status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan crop")
		}
		if err := decodeStrings(aliases, &c.Aliases); err != nil {
			return nil, eris.Wrapf(err, "sqlite: crop %s aliases", c.ID)
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate crops")
}

func (s *SQLiteStore) ListMaterials(ctx context.Context) ([]model.Material, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, brand_name, active_ingredients, material_type, status FROM materials WHERE status <> 'deleted' ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list materials")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Material
	for rows.Next() {
		var m model.Material
		var ingredients string
		if err := rows.Scan(&m.ID, &m.Name, &m.BrandName, &ingredients, &m.MaterialType, &m.Status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan material")
		}
		if err := decodeStrings(ingredients, &m.ActiveIngredients); err != nil {
			return nil, eris.Wrapf(err, "sqlite: material %s ingredients", m.ID)
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate materials")
}

// --- Work logs ---

const workLogColumns = `log_id, submitter_id, work_date, work_category, field_id, field_name, crop_id, crop_name,
	materials, quantity, unit, work_count, notes, tags, status, strategy, confidence, raw_message, created_at`

func (s *SQLiteStore) SaveWorkLog(ctx context.Context, l *model.WorkLog) error {
	materials, err := json.Marshal(l.Materials)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal materials")
	}
	tags, err := json.Marshal(l.Tags)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tags")
	}
	var workCount sql.NullInt64
	if l.WorkCount != nil {
		workCount = sql.NullInt64{Int64: int64(*l.WorkCount), Valid: true}
	}
	var quantity sql.NullFloat64
	if l.Quantity != nil {
		quantity = sql.NullFloat64{Float64: *l.Quantity, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO work_logs (`+workLogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.LogID, l.SubmitterID, l.WorkDate.Format(dateLayout), string(l.WorkCategory),
		l.FieldID, l.FieldName, l.CropID, l.CropName,
		string(materials), quantity, l.Unit, workCount, l.Notes, string(tags),
		l.Status, l.Strategy, l.Confidence, l.RawMessage, l.CreatedAt.UTC().Format(timeLayout),
	)
	return eris.Wrapf(err, "sqlite: save work log %s", l.LogID)
}

func (s *SQLiteStore) GetWorkLog(ctx context.Context, logID string) (*model.WorkLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workLogColumns+` FROM work_logs WHERE log_id = ?`, logID)
	l, err := scanSQLiteWorkLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "work log %s", logID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get work log %s", logID)
	}
	return l, nil
}

func (s *SQLiteStore) ListWorkLogs(ctx context.Context, filter WorkLogFilter) ([]model.WorkLog, error) {
	var where []string
	var args []any
	if filter.SubmitterID != "" {
		where = append(where, "submitter_id = ?")
		args = append(args, filter.SubmitterID)
	}
	if filter.Category != "" {
		where = append(where, "work_category = ?")
		args = append(args, string(filter.Category))
	}
	if !filter.From.IsZero() {
		where = append(where, "work_date >= ?")
		args = append(args, filter.From.Format(dateLayout))
	}
	if !filter.To.IsZero() {
		where = append(where, "work_date <= ?")
		args = append(args, filter.To.Format(dateLayout))
	}

	query := `SELECT ` + workLogColumns + ` FROM work_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY work_date DESC, created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	return s.queryWorkLogs(ctx, query, args...)
}

func (s *SQLiteStore) RecentWorkLogs(ctx context.Context, submitterID string, limit int) ([]model.WorkLog, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.queryWorkLogs(ctx,
		`SELECT `+workLogColumns+` FROM work_logs WHERE submitter_id = ? ORDER BY created_at DESC LIMIT ?`,
		submitterID, limit)
}

func (s *SQLiteStore) queryWorkLogs(ctx context.Context, query string, args ...any) ([]model.WorkLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list work logs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.WorkLog
	for rows.Next() {
		l, err := scanSQLiteWorkLog(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan work log")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate work logs")
}

func scanSQLiteWorkLog(row scannable) (*model.WorkLog, error) {
	var l model.WorkLog
	var category, workDate, materials, tags, createdAt string
	var quantity sql.NullFloat64
	var workCount sql.NullInt64

	err := row.Scan(&l.LogID, &l.SubmitterID, &workDate, &category, &l.FieldID, &l.FieldName,
		&l.CropID, &l.CropName, &materials, &quantity, &l.Unit, &workCount, &l.Notes, &tags,
		&l.Status, &l.Strategy, &l.Confidence, &l.RawMessage, &createdAt)
	if err != nil {
		return nil, err
	}

	l.WorkCategory = model.WorkCategory(category)
	if quantity.Valid {
		l.Quantity = model.Float(quantity.Float64)
	}
	if workCount.Valid {
		l.WorkCount = model.Int(int(workCount.Int64))
	}
	if l.WorkDate, err = time.Parse(dateLayout, workDate); err != nil {
		return nil, eris.Wrap(err, "parse work_date")
	}
	if l.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, eris.Wrap(err, "parse created_at")
	}
	if err := json.Unmarshal([]byte(materials), &l.Materials); err != nil {
		return nil, eris.Wrap(err, "unmarshal materials")
	}
	if err := decodeStrings(tags, &l.Tags); err != nil {
		return nil, eris.Wrap(err, "unmarshal tags")
	}
	return &l, nil
}

// --- Pending confirmations ---

func (s *SQLiteStore) SavePendingConfirmation(ctx context.Context, c *model.Confirmation) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal confirmation")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_confirmations (id, submitter_id, payload, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET payload = excluded.payload`,
		c.ID, c.SubmitterID, string(payload), c.CreatedAt.UTC().Format(timeLayout),
	)
	return eris.Wrapf(err, "sqlite: save confirmation %s", c.ID)
}

func (s *SQLiteStore) GetPendingConfirmation(ctx context.Context, id string) (*model.Confirmation, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM pending_confirmations WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "confirmation %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get confirmation %s", id)
	}
	var c model.Confirmation
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal confirmation %s", id)
	}
	return &c, nil
}

// DeletePendingConfirmation is idempotent.
func (s *SQLiteStore) DeletePendingConfirmation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_confirmations WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: delete confirmation %s", id)
}

// helpers

func decodeStrings(raw string, dst *[]string) error {
	if raw == "" || raw == "null" {
		*dst = nil
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

var _ Store = (*SQLiteStore)(nil)
