package notifier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const Schema = `
CREATE TABLE IF NOT EXISTS observed_record (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	value TEXT NOT NULL,
	timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const lastSentKey = "last_sent"

// SqliteStore is a Store backed by a sqlite database opened with
// sqliteutil.OpenDB(Schema, path).
type SqliteStore struct {
	db *sql.DB
}

func NewSqliteStore(db *sql.DB) SqliteStore {
	return SqliteStore{db: db}
}

func (s SqliteStore) LoadRecords(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT value, timestamp FROM observed_record ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		err = rows.Scan(&r.Value, &r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s SqliteStore) SaveRecords(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "DELETE FROM observed_record")
	if err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	for _, r := range records {
		_, err = tx.ExecContext(
			ctx,
			"INSERT INTO observed_record (value, timestamp) VALUES (?, ?)",
			r.Value, r.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("save records: %w", err)
		}
	}
	return tx.Commit()
}

func (s SqliteStore) LoadLastSent(ctx context.Context) (string, error) {
	var message string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM notification_state WHERE key = ?", lastSentKey).Scan(&message)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return message, err
}

func (s SqliteStore) SaveLastSent(ctx context.Context, message string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO notification_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		lastSentKey, message,
	)
	return err
}
