package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/joeblew999/quakemap/internal/engine"
)

const schema = `
CREATE SEQUENCE IF NOT EXISTS hover_journal_seq;
CREATE TABLE IF NOT EXISTS hover_journal (
	id         BIGINT DEFAULT nextval('hover_journal_seq') PRIMARY KEY,
	widget_id  VARCHAR NOT NULL,
	source     VARCHAR NOT NULL,
	feature_id VARCHAR NOT NULL,
	hover      BOOLEAN NOT NULL,
	at         TIMESTAMP NOT NULL
);`

// Entry is one recorded hover write.
type Entry struct {
	WidgetID  string    `json:"widgetId" doc:"Widget ID"`
	Source    string    `json:"source" doc:"Source name"`
	FeatureID string    `json:"featureId" doc:"Feature ID"`
	Hover     bool      `json:"hover" doc:"Hover value written"`
	At        time.Time `json:"at" doc:"Write time"`
}

// Journal records hover feature-state writes in DuckDB.
type Journal struct {
	db    *sql.DB
	clock clockwork.Clock
}

// NewJournal wraps db. A nil clock uses the real clock.
func NewJournal(db *sql.DB, clock clockwork.Clock) *Journal {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Journal{db: db, clock: clock}
}

// Init creates the journal table.
func (j *Journal) Init(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create hover_journal: %w", err)
	}
	return nil
}

// Record appends a hover write for widgetID.
func (j *Journal) Record(ctx context.Context, widgetID string, ref engine.FeatureRef, hover bool) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO hover_journal (widget_id, source, feature_id, hover, at) VALUES (?, ?, ?, ?, ?)`,
		widgetID, ref.Source, ref.ID.String(), hover, j.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("record hover: %w", err)
	}
	return nil
}

// History returns up to limit writes for widgetID, newest first.
func (j *Journal) History(ctx context.Context, widgetID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT widget_id, source, feature_id, hover, at FROM hover_journal
		 WHERE widget_id = ? ORDER BY id DESC LIMIT ?`, widgetID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.WidgetID, &e.Source, &e.FeatureID, &e.Hover, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Tables lists the tables in the database.
func (j *Journal) Tables(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			tables = append(tables, name)
		}
	}
	return tables, rows.Err()
}
