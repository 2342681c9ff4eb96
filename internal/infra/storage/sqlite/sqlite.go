// Package sqlite persists the active chain in a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/gabapcia/powchain/internal/chain"
	"github.com/gabapcia/powchain/internal/ledger"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS blocks (
	height INTEGER PRIMARY KEY,
	hash   TEXT NOT NULL,
	data   BLOB NOT NULL
);`

type storage struct {
	db *sql.DB
}

// Open opens the database at path and creates the schema if needed.
func Open(ctx context.Context, path string) (*storage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}

	// One connection keeps writes serialized and makes ":memory:" usable.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &storage{db: db}, nil
}

func (s *storage) Close() error {
	return s.db.Close()
}

func (s *storage) LoadChain(ctx context.Context) ([]ledger.Block, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT height, data FROM blocks ORDER BY height")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []ledger.Block
	for rows.Next() {
		var (
			height uint64
			data   []byte
			b      ledger.Block
		)
		if err := rows.Scan(&height, &data); err != nil {
			return nil, err
		}

		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("decode block %d: %w", height, err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(blocks) == 0 {
		return nil, chain.ErrNoChainFound
	}
	return blocks, nil
}

func (s *storage) AppendBlock(ctx context.Context, block ledger.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO blocks (height, hash, data) VALUES (?, ?, ?)",
		block.Index, block.Hash.String(), data,
	)
	return err
}

// ReplaceChain rewrites the table inside a single SQL transaction.
func (s *storage) ReplaceChain(ctx context.Context, blocks []ledger.Block) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM blocks"); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO blocks (height, hash, data) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range blocks {
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encode block %d: %w", b.Index, err)
		}

		if _, err := stmt.ExecContext(ctx, b.Index, b.Hash.String(), data); err != nil {
			return fmt.Errorf("insert block %d: %w", b.Index, err)
		}
	}

	return tx.Commit()
}

var _ chain.Storage = (*storage)(nil)
