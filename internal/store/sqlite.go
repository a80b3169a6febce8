package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/shapefile"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const dateLayout = "2006-01-02"

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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Migrate applies the embedded migrations not yet recorded in
// schema_migrations, in file name order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL
	)`); err != nil {
		return eris.Wrap(err, "sqlite: ensure migration table")
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "sqlite: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "sqlite: read migration %s", name)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "sqlite: apply migration %s", name)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO schema_migrations (filename, applied_at) VALUES (?, ?)`,
			name, time.Now().UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: record migration %s", name)
		}
		log.Debug("migration applied", zap.String("file", name))
	}
	return nil
}

func (s *SQLiteStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query applied migrations")
	}
	defer rows.Close() //nolint:errcheck

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "sqlite: iterate migrations")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordTask inserts one task outcome. Missing IDs and timestamps are filled.
func (s *SQLiteStore) RecordTask(ctx context.Context, run model.TaskRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_runs (id, kind, name, source, destination, status, error_kind, error, bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.Name, run.Source, run.Destination, string(run.Status),
		run.ErrorKind, run.Error, run.Bytes, run.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert task run %s", run.ID)
	}
	return nil
}

// ListTasks returns task runs, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.TaskRun, error) {
	query := `SELECT id, kind, name, source, destination, status, error_kind, error, bytes, created_at
		FROM task_runs WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

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
		return nil, eris.Wrap(err, "sqlite: list task runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.TaskRun
	for rows.Next() {
		var r model.TaskRun
		var kind, status string
		if err := rows.Scan(&r.ID, &kind, &r.Name, &r.Source, &r.Destination, &status,
			&r.ErrorKind, &r.Error, &r.Bytes, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task run")
		}
		r.Kind = model.TaskKind(kind)
		r.Status = model.TaskStatus(status)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list task runs iterate")
}

// SaveSample stores rec, assigning its ID and timestamp when unset. The
// point is kept as EWKB and the values as JSON with null for no-data.
func (s *SQLiteStore) SaveSample(ctx context.Context, rec *SampleRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	geom, err := shapefile.EncodeEWKB(rec.Point.Orb())
	if err != nil {
		return eris.Wrap(err, "sqlite: encode sample point")
	}
	vals, err := json.Marshal(rec.Values)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sample values")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO samples (id, geom, place, region, start_date, end_date, max_cloud, images, scale, vals, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, geom, rec.Place, rec.Region,
		rec.Dates.Start.Format(dateLayout), rec.Dates.End.Format(dateLayout),
		rec.MaxCloud, rec.Images, rec.Scale, string(vals), rec.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert sample %s", rec.ID)
	}
	return nil
}

// ListSamples returns the most recent samples, newest first.
func (s *SQLiteStore) ListSamples(ctx context.Context, limit int) ([]SampleRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, geom, place, region, start_date, end_date, max_cloud, images, scale, vals, created_at
		 FROM samples ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list samples")
	}
	defer rows.Close() //nolint:errcheck

	var out []SampleRecord
	for rows.Next() {
		rec, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list samples iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSample(row scannable) (*SampleRecord, error) {
	var rec SampleRecord
	var geom []byte
	var start, end, vals string

	if err := row.Scan(&rec.ID, &geom, &rec.Place, &rec.Region, &start, &end,
		&rec.MaxCloud, &rec.Images, &rec.Scale, &vals, &rec.CreatedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan sample")
	}

	pt, err := shapefile.DecodePointEWKB(geom)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode sample %s point", rec.ID)
	}
	rec.Point = model.PointFromOrb(pt)

	dates, err := model.ParseDateRange(start, end)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: sample %s dates", rec.ID)
	}
	rec.Dates = dates

	if err := json.Unmarshal([]byte(vals), &rec.Values); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal sample %s values", rec.ID)
	}
	return &rec, nil
}
