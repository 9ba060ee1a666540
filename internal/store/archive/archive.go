// Package archive keeps a per-symbol SQLite copy of downloaded trades so
// overlapping event windows accumulate into one history.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"pumpscope/internal/trade"
)

// ErrNotArchived is returned by reads for a symbol that has no archive yet.
var ErrNotArchived = errors.New("archive: symbol not archived")

// Manifest summarises the trades held for one exchange and symbol.
type Manifest struct {
	Exchange   string `json:"exchange"`
	Symbol     string `json:"symbol"`
	MinTime    int64  `json:"min_time"`
	MaxTime    int64  `json:"max_time"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
	Path       string `json:"path"`
}

type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("archive: root dir is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

// db opens (and caches) the archive of one symbol. With create false a
// missing file yields ErrNotArchived instead of an empty database.
func (s *Store) db(exchange, symbol string, create bool) (*sql.DB, string, error) {
	exchange = strings.ToLower(strings.TrimSpace(exchange))
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if exchange == "" || symbol == "" {
		return nil, "", fmt.Errorf("archive: exchange and symbol are required")
	}
	key := exchange + "|" + symbol
	path := s.dbPath(exchange, symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[key]; ok && db != nil {
		return db, path, nil
	}
	if !create {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s %s", ErrNotArchived, exchange, symbol)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db, exchange, symbol); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	s.dbs[key] = db
	return db, path, nil
}

func (s *Store) dbPath(exchange, symbol string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(symbol)
	return filepath.Join(s.root, exchange, name+".db")
}

// InsertTrades upserts trades by id and refreshes the manifest.
func (s *Store) InsertTrades(ctx context.Context, exchange, symbol string, trades []trade.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	db, _, err := s.db(exchange, symbol, true)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (id, id_kind, ts, side, price, amount, btc_volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    id_kind=excluded.id_kind,
		    ts=excluded.ts,
		    side=excluded.side,
		    price=excluded.price,
		    amount=excluded.amount,
		    btc_volume=excluded.btc_volume`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx, t.ID.Value, t.ID.Kind.String(), t.Timestamp, string(t.Side), t.Price.String(), t.Amount.String(), t.BTCVolume); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if err := refreshManifest(ctx, db); err != nil {
		return count, err
	}
	return count, nil
}

// RangeTrades returns archived trades with start <= ts < end in timestamp order.
func (s *Store) RangeTrades(ctx context.Context, exchange, symbol string, start, end int64) ([]trade.Trade, error) {
	db, _, err := s.db(exchange, symbol, false)
	if err != nil {
		return nil, err
	}
	if end < start {
		start, end = end, start
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, id_kind, ts, side, price, amount, btc_volume
		FROM trades WHERE ts >= ? AND ts < ?
		ORDER BY ts ASC, id ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	internal := strings.ToUpper(strings.TrimSpace(symbol))
	var list []trade.Trade
	for rows.Next() {
		var (
			t             trade.Trade
			kind, side    string
			price, amount string
		)
		if err := rows.Scan(&t.ID.Value, &kind, &t.Timestamp, &side, &price, &amount, &t.BTCVolume); err != nil {
			return nil, err
		}
		t.Symbol = internal
		t.ID.Kind = trade.KindExchange
		if kind == trade.KindOrder.String() {
			t.ID.Kind = trade.KindOrder
		}
		t.Side = trade.Side(side)
		t.Datetime = trade.FormatDatetime(t.Timestamp)
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("archive: trade %d price: %w", t.ID.Value, err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("archive: trade %d amount: %w", t.ID.Value, err)
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func (s *Store) Manifest(ctx context.Context, exchange, symbol string) (Manifest, error) {
	db, path, err := s.db(exchange, symbol, false)
	if err != nil {
		return Manifest{}, err
	}
	row := db.QueryRowContext(ctx, `SELECT exchange,symbol,COALESCE(min_time,0),COALESCE(max_time,0),rows,COALESCE(last_sync_at,0) FROM manifest WHERE id=1`)
	var m Manifest
	if err := row.Scan(&m.Exchange, &m.Symbol, &m.MinTime, &m.MaxTime, &m.Rows, &m.LastSyncAt); err != nil {
		return Manifest{}, err
	}
	m.Path = path
	return m, nil
}

func refreshManifest(ctx context.Context, db *sql.DB) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE manifest
		SET min_time = (SELECT COALESCE(MIN(ts), 0) FROM trades),
		    max_time = (SELECT COALESCE(MAX(ts), 0) FROM trades),
		    rows = (SELECT COUNT(1) FROM trades),
		    last_sync_at = ?
		WHERE id = 1`, now)
	return err
}

func ensureSchema(db *sql.DB, exchange, symbol string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id         INTEGER PRIMARY KEY,
			id_kind    TEXT NOT NULL,
			ts         INTEGER NOT NULL,
			side       TEXT NOT NULL,
			price      TEXT NOT NULL,
			amount     TEXT NOT NULL,
			btc_volume REAL NOT NULL,
			inserted_at INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			id INTEGER PRIMARY KEY CHECK (id=1),
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			min_time INTEGER,
			max_time INTEGER,
			rows INTEGER DEFAULT 0,
			last_sync_at INTEGER
		);`,
		`INSERT INTO manifest (id, exchange, symbol) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET exchange=excluded.exchange, symbol=excluded.symbol;`,
	}
	for i, stmt := range stmts {
		var err error
		if i == len(stmts)-1 {
			_, err = db.Exec(stmt, exchange, symbol)
		} else {
			_, err = db.Exec(stmt)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
