package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// SQLiteStore keeps run records in a single table. The full record is
// stored as JSON; the other columns exist for querying.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewSQLite(path string, log zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{
		db:  db,
		log: log.With().Str("component", "sqlitestore").Str("path", path).Logger(),
	}, nil
}

func (j *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM runs WHERE idempotency_key = ?`, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query run record: %w", err)
	}
	return n > 0, nil
}

func (j *SQLiteStore) Load(ctx context.Context, key string) (RunRecord, error) {
	var raw string
	err := j.db.QueryRowContext(ctx, `SELECT record FROM runs WHERE idempotency_key = ?`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, fmt.Errorf("%w: %q", ErrNotFound, key)
		}
		return RunRecord{}, fmt.Errorf("query run record: %w", err)
	}
	return decodeRow(raw)
}

func decodeRow(raw string) (RunRecord, error) {
	var rec RunRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return RunRecord{}, fmt.Errorf("decode run record: %w", err)
	}
	return rec, nil
}

func rowArgs(rec RunRecord) ([]any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode run record: %w", err)
	}
	return []any{
		rec.IdempotencyKey,
		rec.Timestamp.UnixNano(),
		rec.DateKey,
		rec.PolicyName,
		rec.Outcome,
		rec.Executed,
		rec.Plan.PlannedSpendUSD,
		string(data),
	}, nil
}

const insertRun = `
	INSERT INTO runs
	(idempotency_key, timestamp_ns, date_key, policy_name, outcome, executed, planned_spend_usd, record)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (j *SQLiteStore) Save(ctx context.Context, rec RunRecord) error {
	if rec.IdempotencyKey == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	args, err := rowArgs(rec)
	if err != nil {
		return err
	}
	if _, err := j.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO runs
	(idempotency_key, timestamp_ns, date_key, policy_name, outcome, executed, planned_spend_usd, record)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
		return fmt.Errorf("save run record: %w", err)
	}
	j.log.Debug().Str("key", rec.IdempotencyKey).Msg("run record saved")
	return nil
}

// Create inserts only when the key is absent; the conflict check and the
// write happen in one statement.
func (j *SQLiteStore) Create(ctx context.Context, rec RunRecord) error {
	if rec.IdempotencyKey == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	args, err := rowArgs(rec)
	if err != nil {
		return err
	}
	res, err := j.db.ExecContext(ctx, insertRun+` ON CONFLICT(idempotency_key) DO NOTHING`, args...)
	if err != nil {
		return fmt.Errorf("create run record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create run record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrExists, rec.IdempotencyKey)
	}
	j.log.Debug().Str("key", rec.IdempotencyKey).Msg("run record created")
	return nil
}

func (j *SQLiteStore) List(ctx context.Context) ([]RunRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT record FROM runs
		ORDER BY timestamp_ns DESC, idempotency_key DESC`)
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}
	defer rows.Close()

	out := []RunRecord{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		rec, err := decodeRow(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *SQLiteStore) Close() error {
	return j.db.Close()
}
