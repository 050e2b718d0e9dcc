package main

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Drafts older than this are treated as absent and removed.
const draftMaxAge = 7 * 24 * time.Hour

const draftKeyPrefix = "verificacion-form-"

// DraftKey builds the storage key for a record: the numeric id when the
// record has been persisted, or the "new" sentinel while composing.
func DraftKey(id int64) string {
	if id == 0 {
		return draftKeyPrefix + "new"
	}
	return draftKeyPrefix + strconv.FormatInt(id, 10)
}

func InitDraftDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS drafts (
		key      TEXT PRIMARY KEY,
		data     TEXT NOT NULL,
		saved_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_drafts_saved_at ON drafts(saved_at);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// SaveDraft overwrites the snapshot stored under key with data and the
// given timestamp (epoch millis, as the web client stored them).
func SaveDraft(db *sql.DB, key string, data []byte, ts time.Time) error {
	_, err := db.Exec(
		`INSERT INTO drafts (key, data, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		key, string(data), ts.UnixMilli(),
	)
	return err
}

// LoadFreshDraft returns the snapshot stored under key if it is at most
// draftMaxAge old. A stale snapshot is deleted and reported as absent.
func LoadFreshDraft(db *sql.DB, key string, now time.Time) ([]byte, time.Time, bool, error) {
	var data string
	var savedAt int64
	err := db.QueryRow(`SELECT data, saved_at FROM drafts WHERE key = ?`, key).Scan(&data, &savedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}

	ts := time.UnixMilli(savedAt)
	if now.Sub(ts) > draftMaxAge {
		_, _ = db.Exec(`DELETE FROM drafts WHERE key = ?`, key)
		return nil, time.Time{}, false, nil
	}
	return []byte(data), ts, true, nil
}

func DeleteDraft(db *sql.DB, key string) error {
	_, err := db.Exec(`DELETE FROM drafts WHERE key = ?`, key)
	return err
}

type DraftInfo struct {
	Key     string
	Data    []byte
	SavedAt time.Time
	Type    string
}

// ListDrafts enumerates all stored form drafts that are still fresh,
// newest first, with a type label inferred from the key.
func ListDrafts(db *sql.DB, now time.Time) ([]DraftInfo, error) {
	cutoff := now.Add(-draftMaxAge).UnixMilli()
	rows, err := db.Query(
		`SELECT key, data, saved_at FROM drafts
		 WHERE (key LIKE '%-form-draft%' OR key LIKE '%-form-%') AND saved_at >= ?
		 ORDER BY saved_at DESC`,
		cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []DraftInfo
	for rows.Next() {
		var d DraftInfo
		var data string
		var savedAt int64
		if err := rows.Scan(&d.Key, &data, &savedAt); err != nil {
			return nil, err
		}
		d.Data = []byte(data)
		d.SavedAt = time.UnixMilli(savedAt)
		d.Type = draftType(d.Key)
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

func draftType(key string) string {
	switch {
	case strings.Contains(key, "orden-form"):
		return "Recepción"
	case strings.Contains(key, "ot-form"):
		return "Orden de Trabajo"
	case strings.Contains(key, "control-form"):
		return "Control de Concreto"
	case strings.Contains(key, "verificacion-form"):
		return "Verificación de Muestras"
	}
	return "Desconocido"
}

// PurgeExpiredDrafts removes every snapshot older than draftMaxAge and
// returns how many were deleted.
func PurgeExpiredDrafts(db *sql.DB, now time.Time) (int, error) {
	cutoff := now.Add(-draftMaxAge).UnixMilli()
	res, err := db.Exec(`DELETE FROM drafts WHERE saved_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
