package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gabapcia/powchain/internal/chain"
	"github.com/gabapcia/powchain/internal/ledger"

	redis "github.com/redis/go-redis/v9"
)

// chainBlocksKey returns the list holding the active chain, one JSON block per
// element in index order.
//
// Format: "{prefix}:chain:blocks"
func chainBlocksKey(prefix string) string {
	return fmt.Sprintf("%s:chain:blocks", prefix)
}

func (c *client) LoadChain(ctx context.Context) ([]ledger.Block, error) {
	values, err := c.conn.LRange(ctx, chainBlocksKey(c.keyPrefix), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	if len(values) == 0 {
		return nil, chain.ErrNoChainFound
	}

	blocks := make([]ledger.Block, len(values))
	for i, v := range values {
		if err := json.Unmarshal([]byte(v), &blocks[i]); err != nil {
			return nil, fmt.Errorf("decode block %d: %w", i, err)
		}
	}

	return blocks, nil
}

func (c *client) AppendBlock(ctx context.Context, block ledger.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}

	return c.conn.RPush(ctx, chainBlocksKey(c.keyPrefix), data).Err()
}

// ReplaceChain swaps the whole list inside a MULTI/EXEC so readers never see
// a partial chain.
func (c *client) ReplaceChain(ctx context.Context, blocks []ledger.Block) error {
	values, err := encodeBlocks(blocks)
	if err != nil {
		return err
	}

	key := chainBlocksKey(c.keyPrefix)
	_, err = c.conn.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
		}
		return nil
	})
	return err
}

func encodeBlocks(blocks []ledger.Block) ([]any, error) {
	values := make([]any, len(blocks))
	for i, b := range blocks {
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode block %d: %w", b.Index, err)
		}
		values[i] = data
	}
	return values, nil
}

var _ chain.Storage = new(client)
