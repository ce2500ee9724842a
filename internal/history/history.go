// ABOUTME: Local packet history log backed by SQLite via modernc.org/sqlite
// ABOUTME: Records sent and received packets with automatic schema creation

package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/keep-protocol/keep-go/pkg/wire"
)

// Direction of a logged packet relative to this client.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Entry is one logged packet.
type Entry struct {
	Direction  string
	MsgID      string
	Src        string
	Dst        string
	Typ        int32
	Body       string
	Fee        int64
	RecordedAt time.Time
}

// Log persists packet history in a local SQLite database.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the history database at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func Open(path string) (*Log, error) {
	logger := slog.Default().With("component", "history")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	l := &Log{db: db, logger: logger}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("history log opened", "path", path)
	return l, nil
}

// createSchema creates the packets table if it doesn't exist
func (l *Log) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS packets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			direction TEXT NOT NULL,
			msg_id TEXT NOT NULL,
			src TEXT NOT NULL,
			dst TEXT NOT NULL,
			typ INTEGER NOT NULL,
			body TEXT NOT NULL,
			fee INTEGER NOT NULL,
			recorded_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_packets_recorded_at
			ON packets(recorded_at);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Record logs one packet in the given direction.
func (l *Log) Record(direction string, p *wire.Packet) error {
	_, err := l.db.Exec(
		`INSERT INTO packets (direction, msg_id, src, dst, typ, body, fee, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		direction, p.ID, p.Src, p.Dst, p.Typ, p.Body, p.Fee, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording packet: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(limit int) ([]Entry, error) {
	rows, err := l.db.Query(
		`SELECT direction, msg_id, src, dst, typ, body, fee, recorded_at
		 FROM packets ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Direction, &e.MsgID, &e.Src, &e.Dst, &e.Typ, &e.Body, &e.Fee, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database handle.
func (l *Log) Close() error {
	return l.db.Close()
}
