// Package store persists the ledger event stream in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"crowdfund-ledger/core/model"
	"crowdfund-ledger/metrics"
)

// Migrations returns the journal schema statements, one statement each.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ledger_events (
			id          TEXT PRIMARY KEY,
			height      INTEGER NOT NULL,
			log_index   INTEGER NOT NULL,
			op          TEXT NOT NULL,
			event       TEXT NOT NULL,
			sender      TEXT NOT NULL,
			timestamp   INTEGER NOT NULL,
			topics      TEXT NOT NULL,
			data        TEXT NOT NULL,
			fields_json TEXT NOT NULL DEFAULT '{}',
			UNIQUE(height, log_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_events_op ON ledger_events(op)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_events_event ON ledger_events(event)`,
	}
}

// Entry is one persisted event log.
type Entry struct {
	ID        string            `json:"id"`
	Height    uint64            `json:"height"`
	Index     uint              `json:"index"`
	Op        string            `json:"op"`
	Event     string            `json:"event"`
	Sender    common.Address    `json:"sender"`
	Timestamp uint64            `json:"timestamp"`
	Topics    []common.Hash     `json:"topics"`
	Data      hexutil.Bytes     `json:"data"`
	Fields    map[string]string `json:"fields"`
}

// Filter selects journal entries. Zero values match everything.
type Filter struct {
	FromHeight uint64
	ToHeight   uint64
	Op         string
	Event      string
	Limit      int
}

// Journal is an event sink writing every committed receipt to SQLite.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal at path and applies the migrations.
// Use ":memory:" for a throwaway journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// One connection: writes are serialized and an in-memory database
	// stays the same database.
	db.SetMaxOpenConns(1)

	stmts := append([]string{`PRAGMA busy_timeout = 5000`}, Migrations()...)
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate journal: %w", err)
		}
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Emit writes all logs of the receipt in one transaction. Failures are logged
// and counted; the ledger does not wait on the journal.
func (j *Journal) Emit(receipt *model.Receipt) {
	if err := j.write(receipt); err != nil {
		metrics.JournalWrites.WithLabelValues("error").Inc()
		logrus.WithFields(logrus.Fields{"height": receipt.Height, "op": receipt.Op}).Errorf("journal write err: %v", err)
		return
	}
	metrics.JournalWrites.WithLabelValues("ok").Inc()
}

func (j *Journal) write(receipt *model.Receipt) error {
	if len(receipt.Logs) == 0 {
		return nil
	}
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO ledger_events (id, height, log_index, op, event, sender, timestamp, topics, data, fields_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, log := range receipt.Logs {
		name := "unknown"
		var fields map[string]string
		if ev, err := model.DecodeLog(log); err == nil {
			name = ev.Name
			fields = stringFields(ev.Fields)
		} else {
			logrus.Warnf("journal: undecodable log %d at height %d: %v", i, receipt.Height, err)
		}
		fieldsJSON, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		_, err = stmt.Exec(
			uuid.NewString(),
			receipt.Height,
			i,
			receipt.Op,
			name,
			receipt.Sender.Hex(),
			receipt.Timestamp,
			joinTopics(log.Topics),
			hexutil.Encode(log.Data),
			string(fieldsJSON),
		)
		if err != nil {
			return fmt.Errorf("insert log %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// List returns the entries matching f in commit order.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.FromHeight > 0 {
		where = append(where, "height >= ?")
		args = append(args, f.FromHeight)
	}
	if f.ToHeight > 0 {
		where = append(where, "height <= ?")
		args = append(args, f.ToHeight)
	}
	if f.Op != "" {
		where = append(where, "op = ?")
		args = append(args, f.Op)
	}
	if f.Event != "" {
		where = append(where, "event = ?")
		args = append(args, f.Event)
	}

	query := `SELECT id, height, log_index, op, event, sender, timestamp, topics, data, fields_json FROM ledger_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY height, log_index"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var sender, topics, data, raw string
		if err := rows.Scan(&e.ID, &e.Height, &e.Index, &e.Op, &e.Event, &sender, &e.Timestamp, &topics, &data, &raw); err != nil {
			return nil, err
		}
		e.Sender = common.HexToAddress(sender)
		e.Topics = splitTopics(topics)
		if e.Data, err = hexutil.Decode(data); err != nil {
			return nil, fmt.Errorf("entry %s data: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Fields); err != nil {
			return nil, fmt.Errorf("entry %s fields: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LatestHeight returns the height of the newest journaled receipt, 0 when empty.
func (j *Journal) LatestHeight(ctx context.Context) (uint64, error) {
	var height sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT MAX(height) FROM ledger_events`).Scan(&height); err != nil {
		return 0, err
	}
	return uint64(height.Int64), nil
}

func stringFields(fields map[string]interface{}) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		switch v := v.(type) {
		case *big.Int:
			out[k] = v.String()
		case common.Address:
			out[k] = v.Hex()
		case common.Hash:
			out[k] = v.Hex()
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

func joinTopics(topics []common.Hash) string {
	hexes := make([]string, len(topics))
	for i, t := range topics {
		hexes[i] = t.Hex()
	}
	return strings.Join(hexes, ",")
}

func splitTopics(s string) []common.Hash {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	topics := make([]common.Hash, len(parts))
	for i, p := range parts {
		topics[i] = common.HexToHash(p)
	}
	return topics
}
