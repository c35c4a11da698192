package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects the SQL driver and placeholder style for SQLAdapter.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// SQLAdapter is the durable tier of the storage chain: an embedded or
// client/server SQL database holding three JSON-blob tables: tasks,
// checkpoints and dead_letter_queue (the last is not spelled
// deadLetterQueue as in spec.md §6.4). Row values are opaque JSON so the schema itself never
// needs migration when TaskRecord grows a field; SchemaVersion inside the
// blob is what callers check.
type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL opens (and migrates) a SQL-backed adapter. dsn is driver-specific:
// a file path for sqlite3, a DSN string for mysql/postgres.
func OpenSQL(dialect Dialect, dsn string) (*SQLAdapter, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	a := &SQLAdapter{db: db, dialect: dialect}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLAdapter) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY, status TEXT, created_at TIMESTAMP, data TEXT)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY, task_id TEXT, updated_at TIMESTAMP, data TEXT)`,
		`CREATE TABLE IF NOT EXISTS dead_letter_queue (
			id TEXT PRIMARY KEY, expires_at TIMESTAMP, data TEXT)`,
	}
	for _, s := range stmts {
		if _, err := a.db.Exec(s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func checkSchemaVersion(v int) error {
	if v > SchemaVersion {
		return fmt.Errorf("record schema version %d is newer than supported %d", v, SchemaVersion)
	}
	if v != 0 && v < SchemaVersion {
		return fmt.Errorf("record schema version %d predates %d: explicit migration required", v, SchemaVersion)
	}
	return nil
}

func (a *SQLAdapter) SaveTask(ctx context.Context, t TaskRecord) error {
	t.SchemaVersion = SchemaVersion
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if _, err := a.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, t.ID); err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO tasks (id, status, created_at, data) VALUES ($1,$2,$3,$4)`,
		t.ID, t.Status, t.CreatedAt, string(data))
	return err
}

func (a *SQLAdapter) UpdateTask(ctx context.Context, t TaskRecord) error {
	return a.SaveTask(ctx, t)
}

func (a *SQLAdapter) LoadTask(ctx context.Context, id string) (TaskRecord, bool, error) {
	var data string
	err := a.db.QueryRowContext(ctx, `SELECT data FROM tasks WHERE id = $1`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return TaskRecord{}, false, nil
	}
	if err != nil {
		return TaskRecord{}, false, err
	}
	var t TaskRecord
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return TaskRecord{}, false, err
	}
	if err := checkSchemaVersion(t.SchemaVersion); err != nil {
		return TaskRecord{}, false, err
	}
	return t, true, nil
}

func (a *SQLAdapter) DeleteTask(ctx context.Context, id string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	return err
}

func (a *SQLAdapter) LoadPendingTasks(ctx context.Context) ([]TaskRecord, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT data FROM tasks WHERE status IN ('pending','queued','in_progress')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TaskRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var t TaskRecord
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (a *SQLAdapter) SaveCheckpoint(ctx context.Context, c CheckpointRecord) error {
	c.SchemaVersion = SchemaVersion
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if _, err := a.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = $1`, c.ID); err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, task_id, updated_at, data) VALUES ($1,$2,$3,$4)`,
		c.ID, c.TaskID, c.UpdatedAt, string(data))
	return err
}

func (a *SQLAdapter) LoadLatestCheckpoint(ctx context.Context, taskID string) (CheckpointRecord, bool, error) {
	var data string
	err := a.db.QueryRowContext(ctx,
		`SELECT data FROM checkpoints WHERE task_id = $1 ORDER BY updated_at DESC LIMIT 1`, taskID).Scan(&data)
	if err == sql.ErrNoRows {
		return CheckpointRecord{}, false, nil
	}
	if err != nil {
		return CheckpointRecord{}, false, err
	}
	var c CheckpointRecord
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return CheckpointRecord{}, false, err
	}
	return c, true, nil
}

func (a *SQLAdapter) ListCheckpoints(ctx context.Context, taskID string) ([]CheckpointRecord, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT data FROM checkpoints WHERE task_id = $1`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CheckpointRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var c CheckpointRecord
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (a *SQLAdapter) DeleteCheckpoint(ctx context.Context, id string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = $1`, id)
	return err
}

func (a *SQLAdapter) CleanupCheckpoints(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	res, err := a.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (a *SQLAdapter) SaveDeadLetter(ctx context.Context, d DeadLetterRecord) error {
	d.SchemaVersion = SchemaVersion
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if _, err := a.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, d.ID); err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue (id, expires_at, data) VALUES ($1,$2,$3)`,
		d.ID, d.ExpiresAt, string(data))
	return err
}

func (a *SQLAdapter) LoadDeadLetter(ctx context.Context, id string) (DeadLetterRecord, bool, error) {
	var data string
	err := a.db.QueryRowContext(ctx, `SELECT data FROM dead_letter_queue WHERE id = $1`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return DeadLetterRecord{}, false, nil
	}
	if err != nil {
		return DeadLetterRecord{}, false, err
	}
	var d DeadLetterRecord
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return DeadLetterRecord{}, false, err
	}
	return d, true, nil
}

func (a *SQLAdapter) ListDeadLetters(ctx context.Context) ([]DeadLetterRecord, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT data FROM dead_letter_queue`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DeadLetterRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var d DeadLetterRecord
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (a *SQLAdapter) DeleteDeadLetter(ctx context.Context, id string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return err
}

func (a *SQLAdapter) CleanupDeadLetters(ctx context.Context, now time.Time) (int, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (a *SQLAdapter) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: string(a.dialect)}
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&stats.TaskCount); err != nil {
		return stats, err
	}
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints`).Scan(&stats.CheckpointCount); err != nil {
		return stats, err
	}
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&stats.DeadLetterCount); err != nil {
		return stats, err
	}
	return stats, nil
}

func (a *SQLAdapter) Export(ctx context.Context) (Dataset, error) {
	ds := Dataset{}
	tasks, err := a.LoadPendingTasks(ctx)
	if err != nil {
		return ds, err
	}
	ds.Tasks = tasks
	return ds, nil
}

func (a *SQLAdapter) Import(ctx context.Context, ds Dataset) error {
	for _, t := range ds.Tasks {
		if err := a.SaveTask(ctx, t); err != nil {
			return err
		}
	}
	for _, c := range ds.Checkpoints {
		if err := a.SaveCheckpoint(ctx, c); err != nil {
			return err
		}
	}
	for _, d := range ds.DeadLetters {
		if err := a.SaveDeadLetter(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (a *SQLAdapter) Close() error { return a.db.Close() }
