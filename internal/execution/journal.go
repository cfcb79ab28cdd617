package execution

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists confirmed deals to SQLite for audit. It sits outside
// the engine contract — trading works identically without it.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Entry is one journaled deal leg.
type Entry struct {
	DealID    string
	Epic      string
	Action    string // OPEN, CLOSE
	Direction string
	Size      float64
	Price     float64
	Reason    string
	At        time.Time
}

// NewJournal opens (or creates) the SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS deals (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		deal_id     TEXT NOT NULL,
		epic        TEXT,
		action      TEXT NOT NULL,
		direction   TEXT NOT NULL,
		size        REAL NOT NULL,
		price       REAL NOT NULL,
		reason      TEXT,
		executed_at DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_deals_deal_id ON deals(deal_id);
	CREATE INDEX IF NOT EXISTS idx_deals_executed_at ON deals(executed_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("opened deal journal", slog.String("path", dbPath))
	return &Journal{db: db}, nil
}

// Record persists one deal leg.
func (j *Journal) Record(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO deals (deal_id, epic, action, direction, size, price, reason, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.DealID, e.Epic, e.Action, e.Direction, e.Size, e.Price, e.Reason,
		e.At.Format(time.RFC3339),
	)
	return err
}

// DealRecord is a row from the deals table.
type DealRecord struct {
	ID         int64   `json:"id"`
	DealID     string  `json:"deal_id"`
	Epic       string  `json:"epic"`
	Action     string  `json:"action"`
	Direction  string  `json:"direction"`
	Size       float64 `json:"size"`
	Price      float64 `json:"price"`
	Reason     string  `json:"reason"`
	ExecutedAt string  `json:"executed_at"`
}

// Recent returns the last N deal legs, newest first.
func (j *Journal) Recent(limit int) ([]DealRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, deal_id, epic, action, direction, size, price, reason, executed_at
		 FROM deals ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []DealRecord
	for rows.Next() {
		var d DealRecord
		if err := rows.Scan(&d.ID, &d.DealID, &d.Epic, &d.Action, &d.Direction,
			&d.Size, &d.Price, &d.Reason, &d.ExecutedAt); err != nil {
			continue
		}
		deals = append(deals, d)
	}
	return deals, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
