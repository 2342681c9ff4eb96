// Package leveldb persists the active chain in an embedded LevelDB database.
// Blocks live under 'b' ‖ index (big endian) so iteration yields chain order.
package leveldb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/gabapcia/powchain/internal/chain"
	"github.com/gabapcia/powchain/internal/ledger"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const blockKeyPrefix = 'b'

func blockKey(index uint64) []byte {
	key := make([]byte, 0, 9)
	key = append(key, blockKeyPrefix)
	return binary.BigEndian.AppendUint64(key, index)
}

type storage struct {
	db *leveldb.DB
}

// Open opens or creates the database at path.
func Open(path string) (*storage, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		ErrorIfMissing: false,
	})
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}

	return &storage{db: db}, nil
}

func (s *storage) Close() error {
	return s.db.Close()
}

func (s *storage) LoadChain(ctx context.Context) ([]ledger.Block, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{blockKeyPrefix}), nil)
	defer iter.Release()

	var blocks []ledger.Block
	for iter.Next() {
		var b ledger.Block
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			return nil, fmt.Errorf("decode block %x: %w", iter.Key(), err)
		}

		if b.Index != uint64(len(blocks)) {
			return nil, fmt.Errorf("stored chain has a gap at index %d", len(blocks))
		}
		blocks = append(blocks, b)
	}
	if err := iter.Error(); err != nil {
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

	return s.db.Put(blockKey(block.Index), data, nil)
}

// ReplaceChain deletes every stored block and writes blocks in one batch.
func (s *storage) ReplaceChain(ctx context.Context, blocks []ledger.Block) error {
	batch := new(leveldb.Batch)

	iter := s.db.NewIterator(util.BytesPrefix([]byte{blockKeyPrefix}), nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}

	for _, b := range blocks {
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encode block %d: %w", b.Index, err)
		}
		batch.Put(blockKey(b.Index), data)
	}

	return s.db.Write(batch, &opt.WriteOptions{Sync: true})
}

var _ chain.Storage = (*storage)(nil)
