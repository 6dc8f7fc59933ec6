package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/worklog-cli/internal/db"
	"github.com/sells-group/worklog-cli/internal/model"
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

	// PrepareStatements prepares the hot-path queries on every new
	// connection. Leave it off until the schema exists.
	PrepareStatements bool `yaml:"-" mapstructure:"-"`
}

// preparedStatements are prepared on each new connection. The hot path of a
// submission reads history and writes one row.
var preparedStatements = map[string]string{
	"insert_work_log":      `INSERT INTO work_logs (` + workLogColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
	"recent_work_logs":     `SELECT ` + workLogColumns + ` FROM work_logs WHERE submitter_id = $1 ORDER BY created_at DESC LIMIT $2`,
	"get_pending":          `SELECT payload FROM pending_confirmations WHERE id = $1`,
	"delete_pending":       `DELETE FROM pending_confirmations WHERE id = $1`,
	"upsert_pending":       upsertPendingSQL,
	"list_active_fields":   listFieldsSQL,
	"list_active_crops":    listCropsSQL,
	"list_active_material": listMaterialsSQL,
}

const (
	listFieldsSQL    = `SELECT id, name, code, area, status FROM fields WHERE status <> 'deleted' ORDER BY id`
	listCropsSQL     = `SELECT id, name, scientific_name, aliases, status FROM crops WHERE status <> 'deleted' ORDER BY id`
	listMaterialsSQL = `SELECT id, name, brand_name, active_ingredients, material_type, status FROM materials WHERE status <> 'deleted' ORDER BY id`
	upsertPendingSQL = `INSERT INTO pending_confirmations (id, submitter_id, payload, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

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

	if poolCfg != nil && poolCfg.PrepareStatements {
		pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			for name, sql := range preparedStatements {
				if _, err := conn.Prepare(ctx, name, sql); err != nil {
					return eris.Wrapf(err, "postgres: prepare %s", name)
				}
			}
			return nil
		}
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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS fields (
	id     TEXT PRIMARY KEY,
	name   TEXT NOT NULL,
	code   TEXT NOT NULL DEFAULT '',
	area   DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS crops (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	scientific_name TEXT NOT NULL DEFAULT '',
	aliases         JSONB NOT NULL DEFAULT '[]',
	status          TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS materials (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	brand_name         TEXT NOT NULL DEFAULT '',
	active_ingredients JSONB NOT NULL DEFAULT '[]',
	material_type      TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS work_logs (
	log_id        TEXT PRIMARY KEY,
	submitter_id  TEXT NOT NULL,
	work_date     DATE NOT NULL,
	work_category TEXT NOT NULL DEFAULT '',
	field_id      TEXT NOT NULL DEFAULT '',
	field_name    TEXT NOT NULL DEFAULT '',
	crop_id       TEXT NOT NULL DEFAULT '',
	crop_name     TEXT NOT NULL DEFAULT '',
	materials     JSONB NOT NULL DEFAULT '[]',
	quantity      DOUBLE PRECISION,
	unit          TEXT NOT NULL DEFAULT '',
	work_count    INTEGER,
	notes         TEXT NOT NULL DEFAULT '',
	tags          JSONB NOT NULL DEFAULT '[]',
	status        TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	raw_message   TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pending_confirmations (
	id           TEXT PRIMARY KEY,
	submitter_id TEXT NOT NULL,
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_work_logs_submitter ON work_logs(submitter_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_work_logs_date ON work_logs(work_date);
CREATE INDEX IF NOT EXISTS idx_pending_submitter ON pending_confirmations(submitter_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate applies the schema inside a transaction holding an advisory lock,
// so concurrent deploys do not race.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(48151623)"); err != nil {
			return eris.Wrap(err, "acquire migration lock")
		}
		_, err := tx.Exec(ctx, postgresMigration)
		return err
	})
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Reference data ---

func (s *PostgresStore) ListFields(ctx context.Context) ([]model.Field, error) {
	rows, err := s.pool.Query(ctx, listFieldsSQL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list fields")
	}
	defer rows.Close()

	var out []model.Field
	for rows.Next() {
		var f model.Field
		if err := rows.Scan(&f.ID, &f.Name, &f.Code, &f.Area, &f.Status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan field")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate fields")
}

func (s *PostgresStore) ListCrops(ctx context.Context) ([]model.Crop, error) {
	rows, err := s.pool.Query(ctx, listCropsSQL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list crops")
	}
	defer rows.Close()

	var out []model.Crop
	for rows.Next() {
		var c model.Crop
		var aliases []byte
		if err := rows.Scan(&c.ID, &c.Name, &c.ScientificName, &aliases, &c.Status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan crop")
		}
		if err := decodeStrings(string(aliases), &c.Aliases); err != nil {
			return nil, eris.Wrapf(err, "postgres: crop %s aliases", c.ID)
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate crops")
}

func (s *PostgresStore) ListMaterials(ctx context.Context) ([]model.Material, error) {
	rows, err := s.pool.Query(ctx, listMaterialsSQL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list materials")
	}
	defer rows.Close()

	var out []model.Material
	for rows.Next() {
		var m model.Material
		var ingredients []byte
		if err := rows.Scan(&m.ID, &m.Name, &m.BrandName, &ingredients, &m.MaterialType, &m.Status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan material")
		}
		if err := decodeStrings(string(ingredients), &m.ActiveIngredients); err != nil {
			return nil, eris.Wrapf(err, "postgres: material %s ingredients", m.ID)
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate materials")
}

// --- Work logs ---

func (s *PostgresStore) SaveWorkLog(ctx context.Context, l *model.WorkLog) error {
	materials, err := json.Marshal(l.Materials)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal materials")
	}
	tags, err := json.Marshal(l.Tags)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal tags")
	}

	_, err = s.pool.Exec(ctx, preparedStatements["insert_work_log"],
		l.LogID, l.SubmitterID, l.WorkDate, string(l.WorkCategory),
		l.FieldID, l.FieldName, l.CropID, l.CropName,
		materials, l.Quantity, l.Unit, l.WorkCount, l.Notes, tags,
		l.Status, l.Strategy, l.Confidence, l.RawMessage, l.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save work log %s", l.LogID)
}

func (s *PostgresStore) GetWorkLog(ctx context.Context, logID string) (*model.WorkLog, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+workLogColumns+` FROM work_logs WHERE log_id = $1`, logID)
	l, err := scanPostgresWorkLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "work log %s", logID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get work log %s", logID)
	}
	return l, nil
}

func (s *PostgresStore) ListWorkLogs(ctx context.Context, filter WorkLogFilter) ([]model.WorkLog, error) {
	var where []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.SubmitterID != "" {
		add("submitter_id = $%d", filter.SubmitterID)
	}
	if filter.Category != "" {
		add("work_category = $%d", string(filter.Category))
	}
	if !filter.From.IsZero() {
		add("work_date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("work_date <= $%d", filter.To)
	}

	query := `SELECT ` + workLogColumns + ` FROM work_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY work_date DESC, created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return s.queryWorkLogs(ctx, query, args...)
}

func (s *PostgresStore) RecentWorkLogs(ctx context.Context, submitterID string, limit int) ([]model.WorkLog, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.queryWorkLogs(ctx, preparedStatements["recent_work_logs"], submitterID, limit)
}

func (s *PostgresStore) queryWorkLogs(ctx context.Context, query string, args ...any) ([]model.WorkLog, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list work logs")
	}
	defer rows.Close()

	var out []model.WorkLog
	for rows.Next() {
		l, err := scanPostgresWorkLog(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan work log")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate work logs")
}

func scanPostgresWorkLog(row scannable) (*model.WorkLog, error) {
	var l model.WorkLog
	var category string
	var materials, tags []byte

	err := row.Scan(&l.LogID, &l.SubmitterID, &l.WorkDate, &category, &l.FieldID, &l.FieldName,
		&l.CropID, &l.CropName, &materials, &l.Quantity, &l.Unit, &l.WorkCount, &l.Notes, &tags,
		&l.Status, &l.Strategy, &l.Confidence, &l.RawMessage, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	l.WorkCategory = model.WorkCategory(category)
	if len(materials) > 0 {
		if err := json.Unmarshal(materials, &l.Materials); err != nil {
			return nil, eris.Wrap(err, "unmarshal materials")
		}
	}
	if err := decodeStrings(string(tags), &l.Tags); err != nil {
		return nil, eris.Wrap(err, "unmarshal tags")
	}
	return &l, nil
}

// --- Pending confirmations ---

func (s *PostgresStore) SavePendingConfirmation(ctx context.Context, c *model.Confirmation) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal confirmation")
	}
	_, err = s.pool.Exec(ctx, upsertPendingSQL, c.ID, c.SubmitterID, payload, c.CreatedAt)
	return eris.Wrapf(err, "postgres: save confirmation %s", c.ID)
}

func (s *PostgresStore) GetPendingConfirmation(ctx context.Context, id string) (*model.Confirmation, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, preparedStatements["get_pending"], id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "confirmation %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get confirmation %s", id)
	}
	var c model.Confirmation
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal confirmation %s", id)
	}
	return &c, nil
}

// DeletePendingConfirmation is idempotent.
func (s *PostgresStore) DeletePendingConfirmation(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, preparedStatements["delete_pending"], id)
	return eris.Wrapf(err, "postgres: delete confirmation %s", id)
}

var _ Store = (*PostgresStore)(nil)
