// Package persist provides durable storage for listings and escrow
// balances. The SQLite driver is the production store; the memory driver
// backs tests and ephemeral setups.
package persist

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zooml/survmarket/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// listingRecord is the opaque blob stored in the listings.data column.
// The durable id lives in the id column, not in the blob.
type listingRecord struct {
	OwnerID string      `json:"owner_id"`
	Price   int64       `json:"price"`
	Item    domain.Item `json:"item"`
}

// SQLiteStore is a durable store backed by a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path and applies the
// schema. Idempotent: safe to call on an existing database.
//
// The database is configured with WAL mode for concurrent reads, NORMAL
// synchronous mode, and a 5-second busy timeout. SQLite supports a single
// writer, so the connection pool is limited to one connection.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadAll returns every stored listing in insertion order. Used once at
// startup to replay listings through the normal board insertion path.
func (s *SQLiteStore) LoadAll() ([]*domain.Listing, error) {
	rows, err := s.db.Query("SELECT id, data FROM listings ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	defer rows.Close()

	var out []*domain.Listing
	for rows.Next() {
		var id int64
		var data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		var rec listingRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decode listing %d: %w", id, err)
		}
		out = append(out, &domain.Listing{
			ID:      id,
			OwnerID: rec.OwnerID,
			Price:   rec.Price,
			Item:    rec.Item,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	return out, nil
}

// InsertListing stores a new listing record and returns its durable id.
// The listing is only considered backed once this returns.
func (s *SQLiteStore) InsertListing(l *domain.Listing) (int64, error) {
	data, err := json.Marshal(listingRecord{OwnerID: l.OwnerID, Price: l.Price, Item: l.Item})
	if err != nil {
		return domain.UnassignedID, fmt.Errorf("encode listing: %w", err)
	}
	res, err := s.db.Exec("INSERT INTO listings (data) VALUES (?)", string(data))
	if err != nil {
		return domain.UnassignedID, fmt.Errorf("insert listing: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.UnassignedID, fmt.Errorf("insert listing: %w", err)
	}
	return id, nil
}

// DeleteListing removes a durable record. Deleting an unknown id or
// domain.UnassignedID is a no-op, not an error.
func (s *SQLiteStore) DeleteListing(id int64) error {
	if id == domain.UnassignedID {
		return nil
	}
	if _, err := s.db.Exec("DELETE FROM listings WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete listing %d: %w", id, err)
	}
	return nil
}

// Balance returns a seller's escrow balance and whether the account
// exists.
func (s *SQLiteStore) Balance(ownerID string) (int64, bool, error) {
	var balance int64
	err := s.db.QueryRow("SELECT balance FROM escrow WHERE owner_id = ?", ownerID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read balance for %s: %w", ownerID, err)
	}
	return balance, true, nil
}

// SetBalance writes a seller's escrow balance. With create set, a missing
// account is created; otherwise a missing account fails with
// domain.ErrEscrowNotFound.
func (s *SQLiteStore) SetBalance(ownerID string, balance int64, create bool) error {
	if create {
		_, err := s.db.Exec(
			"INSERT INTO escrow (owner_id, balance) VALUES (?, ?) ON CONFLICT(owner_id) DO UPDATE SET balance = excluded.balance",
			ownerID, balance)
		if err != nil {
			return fmt.Errorf("upsert balance for %s: %w", ownerID, err)
		}
		return nil
	}
	res, err := s.db.Exec("UPDATE escrow SET balance = ? WHERE owner_id = ?", balance, ownerID)
	if err != nil {
		return fmt.Errorf("update balance for %s: %w", ownerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update balance for %s: %w", ownerID, err)
	}
	if n == 0 {
		return domain.ErrEscrowNotFound
	}
	return nil
}

// Settle atomically deletes a sold listing and credits the seller's
// escrow account, creating it on first credit. Either both writes land or
// neither does.
func (s *SQLiteStore) Settle(listingID int64, ownerID string, credit int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("settle listing %d: %w", listingID, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM listings WHERE id = ?", listingID); err != nil {
		return fmt.Errorf("settle listing %d: %w", listingID, err)
	}
	_, err = tx.Exec(
		"INSERT INTO escrow (owner_id, balance) VALUES (?, ?) ON CONFLICT(owner_id) DO UPDATE SET balance = balance + excluded.balance",
		ownerID, credit)
	if err != nil {
		return fmt.Errorf("settle listing %d: %w", listingID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("settle listing %d: %w", listingID, err)
	}
	return nil
}

// Wipe deletes every listing and every escrow account.
func (s *SQLiteStore) Wipe() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("wipe: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM listings"); err != nil {
		return fmt.Errorf("wipe listings: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM escrow"); err != nil {
		return fmt.Errorf("wipe escrow: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("wipe: %w", err)
	}
	return nil
}
