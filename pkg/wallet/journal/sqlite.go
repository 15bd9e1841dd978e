// Package journal persists the wallet mirror in a local SQLite database so a
// later CLI invocation can restore it.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/xrpracing/racegarage/pkg/model"
)

type (
	Store struct {
		db *sql.DB
	}

	// State is the replayed mirror of an address.
	State struct {
		Balance      decimal.Decimal
		Transactions []model.Transaction
	}
)

var ErrDuplicateOp = errors.New("operation already journaled")

// Open opens (and creates) the journal at path. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// one connection keeps :memory: databases intact and serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := migrateDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores tx for address. A second append of the same op id fails
// with ErrDuplicateOp.
func (s *Store) Append(ctx context.Context, address string, tx model.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, address, op_id, kind, amount, destination, status, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, address, tx.OpID, string(tx.Kind), tx.Amount.String(),
		tx.Destination, tx.Status, tx.Hash, tx.Timestamp.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", tx.OpID, ErrDuplicateOp)
		}
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// SetBaseline records an absolute balance read from the ledger. Entries
// journaled before are already contained in it.
func (s *Store) SetBaseline(ctx context.Context, address string, balance decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO baselines (address, balance, after_seq, updated_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) FROM entries), ?)
		ON CONFLICT (address) DO UPDATE SET
			balance = excluded.balance,
			after_seq = excluded.after_seq,
			updated_at = excluded.updated_at`,
		address, balance.String(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set baseline: %w", err)
	}
	return nil
}

// Load replays the journal of address: baseline plus all later entries.
func (s *Store) Load(ctx context.Context, address string) (*State, error) {
	ret := &State{Balance: decimal.Zero, Transactions: []model.Transaction{}}
	var afterSeq int64
	var baseline string
	err := s.db.QueryRowContext(ctx,
		`SELECT balance, after_seq FROM baselines WHERE address = ?`, address).
		Scan(&baseline, &afterSeq)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to read baseline: %w", err)
	default:
		if ret.Balance, err = decimal.NewFromString(baseline); err != nil {
			return nil, fmt.Errorf("invalid baseline %q: %w", baseline, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, op_id, kind, amount, COALESCE(destination, ''), status, COALESCE(hash, ''), created_at
		FROM entries WHERE address = ? ORDER BY seq`, address)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			seq, created int64
			tx           model.Transaction
			kind, amount string
		)
		if err := rows.Scan(&seq, &tx.ID, &tx.OpID, &kind, &amount,
			&tx.Destination, &tx.Status, &tx.Hash, &created); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		tx.Kind = model.TxKind(kind)
		tx.Timestamp = time.UnixMilli(created)
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid amount %q in entry %s: %w", amount, tx.ID, err)
		}
		if seq > afterSeq {
			ret.Balance = ret.Balance.Add(tx.Amount)
		}
		ret.Transactions = append(ret.Transactions, tx)
	}
	return ret, rows.Err()
}

// Forget removes all journal data of address.
func (s *Store) Forget(ctx context.Context, address string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, q := range []string{
		`DELETE FROM entries WHERE address = ?`,
		`DELETE FROM baselines WHERE address = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, address); err != nil {
			return fmt.Errorf("failed to forget %s: %w", address, err)
		}
	}
	return tx.Commit()
}

// Get returns the session value of key or "" if unset.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM session WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// Set stores a session value. An empty value removes the key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	var err error
	if value == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM session WHERE key = ?`, key)
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO session (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	}
	if err != nil {
		return fmt.Errorf("failed to store session key %s: %w", key, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
