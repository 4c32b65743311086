// Package ledger stores per-user trade transactions and daily analysis
// counters in SQLite, and derives open positions from the transaction log.
package ledger

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory ledger.
const MemoryPath = ":memory:"

// Side is the direction of a transaction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide accepts buy/sell in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	default:
		return "", fmt.Errorf("invalid side %q: want BUY or SELL", s)
	}
}

// Transaction is one recorded trade.
type Transaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Side      Side      `json:"type"`
	Ticker    string    `json:"ticker"`
	Quantity  int64     `json:"quantity"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks a transaction before it is stored.
func (t Transaction) Validate() error {
	if t.UserID == "" {
		return errors.New("user id is required")
	}
	if t.Side != Buy && t.Side != Sell {
		return fmt.Errorf("invalid side %q", t.Side)
	}
	if t.Ticker == "" {
		return errors.New("ticker is required")
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", t.Quantity)
	}
	if t.Price <= 0 {
		return fmt.Errorf("price must be positive, got %v", t.Price)
	}
	return nil
}

// Store is a SQLite-backed ledger.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the ledger database at path.
func Open(path string) (*Store, error) {
	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Every in-memory connection is its own database; writes are serialized anyway
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS transactions (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		type        TEXT NOT NULL,
		ticker      TEXT NOT NULL,
		quantity    INTEGER NOT NULL,
		price       REAL NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at);

	CREATE TABLE IF NOT EXISTS daily_usage (
		user_id  TEXT NOT NULL,
		day      TEXT NOT NULL,
		count    INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, day)
	);
	`
	_, err := s.db.Exec(ddl)
	return err
}

func newTransactionID(t time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// AppendTransaction validates and stores tx, assigning its ID and timestamp.
func (s *Store) AppendTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	tx.Ticker = strings.ToUpper(strings.TrimSpace(tx.Ticker))
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx.CreatedAt = s.now().UTC()
	id, err := newTransactionID(tx.CreatedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("generate id: %w", err)
	}
	tx.ID = id

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, type, ticker, quantity, price, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, string(tx.Side), tx.Ticker, tx.Quantity, tx.Price, tx.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return tx, nil
}

// Transactions returns a user's transactions, oldest first.
func (s *Store) Transactions(ctx context.Context, userID string) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, ticker, quantity, price, created_at FROM transactions WHERE user_id = ? ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var tx Transaction
		var side, createdAt string
		if err := rows.Scan(&tx.ID, &tx.UserID, &side, &tx.Ticker, &tx.Quantity, &tx.Price, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Side = Side(side)
		if tx.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Positions returns a user's open positions.
func (s *Store) Positions(ctx context.Context, userID string) ([]Position, error) {
	txs, err := s.Transactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return CalculatePositions(txs), nil
}

// CheckAndIncrement counts one analysis for userID on day and reports
// whether it fits within limit. A refused call does not increment. A
// non-positive limit disables the check.
func (s *Store) CheckAndIncrement(ctx context.Context, userID string, day time.Time, limit int) (allowed bool, count int, err error) {
	key := day.UTC().Format("2006-01-02")

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `SELECT count FROM daily_usage WHERE user_id = ? AND day = ?`, userID, key).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, 0, fmt.Errorf("read usage: %w", err)
	}
	if limit > 0 && count >= limit {
		return false, count, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO daily_usage (user_id, day, count) VALUES (?, ?, 1)
		 ON CONFLICT(user_id, day) DO UPDATE SET count = count + 1`,
		userID, key,
	)
	if err != nil {
		return false, count, fmt.Errorf("increment usage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, count, fmt.Errorf("commit: %w", err)
	}
	return true, count + 1, nil
}
