// Package catalog keeps named recordings in a local SQLite database, so
// sequences survive restarts without the user managing files by hand.
package catalog

import (
	"database/sql"
	"encoding/json"
	"time"

	errors2 "errors"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // CGO-free SQLite

	"github.com/nikosalonen/macrod/log"
	"github.com/nikosalonen/macrod/macro"
)

// ErrNotFound is returned when a named recording does not exist.
var ErrNotFound = errors2.New("recording not found")

// Recording describes a stored sequence.
type Recording struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	EventCount int       `json:"event_count"`
}

// Catalog is a store of named recordings.
type Catalog struct {
	log log.Logger
	db  *sql.DB
}

// Open opens or creates the catalog database at the given path.
func Open(logger log.Logger, path string) (*Catalog, error) {
	if logger == nil {
		panic("nil logger given")
	}

	// WAL and a busy timeout to avoid "database is locked"; foreign keys
	// so deleting a recording takes its events with it.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, errors.Wrap(err, "opening catalog database")
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Catalog{log: logger, db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS recordings(
	  id          TEXT    PRIMARY KEY,
	  name        TEXT    NOT NULL UNIQUE,
	  created_at  TEXT    NOT NULL,
	  event_count INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS events(
	  recording_id TEXT    NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
	  seq          INTEGER NOT NULL,
	  type         TEXT    NOT NULL CHECK (type IN ('mouse_move','mouse_click','mouse_scroll','key_press','key_release')),
	  payload      TEXT    NOT NULL CHECK (json_valid(payload)),
	  PRIMARY KEY (recording_id, seq)
	);
	`)
	return errors.Wrap(err, "creating catalog tables")
}

// Close releases the database.
func (c *Catalog) Close() error {
	return errors.Wrap(c.db.Close(), "closing catalog database")
}

// Save stores the sequence under the given name, replacing any recording
// already using it. Control records are dropped on the way in.
func (c *Catalog) Save(name string, events []macro.Event) (Recording, error) {
	if name == "" {
		return Recording{}, errors.New("recording name cannot be empty")
	}
	events = macro.StripControl(events)

	rec := Recording{
		ID:         uuid.NewString(),
		Name:       name,
		CreatedAt:  time.Now().UTC(),
		EventCount: len(events),
	}

	tx, err := c.db.Begin()
	if err != nil {
		return Recording{}, errors.Wrap(err, "beginning transaction")
	}

	if _, err := tx.Exec(`DELETE FROM recordings WHERE name = ?`, name); err != nil {
		_ = tx.Rollback()
		return Recording{}, errors.Wrap(err, "replacing recording")
	}
	if _, err := tx.Exec(
		`INSERT INTO recordings(id, name, created_at, event_count) VALUES(?,?,?,?)`,
		rec.ID, rec.Name, rec.CreatedAt.Format(time.RFC3339Nano), rec.EventCount,
	); err != nil {
		_ = tx.Rollback()
		return Recording{}, errors.Wrap(err, "inserting recording")
	}

	stmt, err := tx.Prepare(`INSERT INTO events(recording_id, seq, type, payload) VALUES(?,?,?,json(?))`)
	if err != nil {
		_ = tx.Rollback()
		return Recording{}, errors.Wrap(err, "preparing event insert")
	}
	defer func() { _ = stmt.Close() }()

	for i, e := range events {
		if err := e.Validate(); err != nil {
			_ = tx.Rollback()
			return Recording{}, errors.Wrapf(err, "event %d", i)
		}
		payload, err := json.Marshal(e)
		if err != nil {
			_ = tx.Rollback()
			return Recording{}, errors.Wrapf(err, "serializing event %d", i)
		}
		if _, err := stmt.Exec(rec.ID, i, string(e.Type), string(payload)); err != nil {
			_ = tx.Rollback()
			return Recording{}, errors.Wrapf(err, "inserting event %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return Recording{}, errors.Wrap(err, "committing recording")
	}
	c.log.Debugf("saved recording %q with %d events", name, len(events))
	return rec, nil
}

// Load returns the sequence stored under the given name.
func (c *Catalog) Load(name string) ([]macro.Event, error) {
	var id string
	err := c.db.QueryRow(`SELECT id FROM recordings WHERE name = ?`, name).Scan(&id)
	if errors2.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "looking up recording")
	}

	rows, err := c.db.Query(`SELECT payload FROM events WHERE recording_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, errors.Wrap(err, "reading events")
	}
	defer func() { _ = rows.Close() }()

	var events []macro.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrap(err, "scanning event")
		}
		var e macro.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, errors.Wrap(err, "decoding event")
		}
		events = append(events, e)
	}
	return events, errors.Wrap(rows.Err(), "reading events")
}

// List returns all recordings, newest first.
func (c *Catalog) List() ([]Recording, error) {
	rows, err := c.db.Query(`SELECT id, name, created_at, event_count FROM recordings ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "listing recordings")
	}
	defer func() { _ = rows.Close() }()

	recordings := make([]Recording, 0)
	for rows.Next() {
		var rec Recording
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.Name, &createdAt, &rec.EventCount); err != nil {
			return nil, errors.Wrap(err, "scanning recording")
		}
		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, errors.Wrap(err, "parsing recording timestamp")
		}
		recordings = append(recordings, rec)
	}
	return recordings, errors.Wrap(rows.Err(), "listing recordings")
}

// Delete removes the named recording and its events.
func (c *Catalog) Delete(name string) error {
	res, err := c.db.Exec(`DELETE FROM recordings WHERE name = ?`, name)
	if err != nil {
		return errors.Wrap(err, "deleting recording")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting recording")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
