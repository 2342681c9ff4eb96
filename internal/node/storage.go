package node

import (
	"context"
	"fmt"
	"io"

	"github.com/gabapcia/powchain/internal/chain"
	"github.com/gabapcia/powchain/internal/config"
	"github.com/gabapcia/powchain/internal/infra/storage/leveldb"
	"github.com/gabapcia/powchain/internal/infra/storage/redis"
	"github.com/gabapcia/powchain/internal/infra/storage/sqlite"
)

type chainStorage interface {
	chain.Storage
	io.Closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStorage returns the chain backend selected by cfg.StorageDriver. The
// memory driver returns a nil Storage and keeps nothing across restarts. Redis
// keys are namespaced by the service name.
func openStorage(ctx context.Context, cfg config.Server) (chain.Storage, io.Closer, error) {
	var (
		s   chainStorage
		err error
	)

	switch cfg.StorageDriver {
	case config.StorageMemory, "":
		return nil, nopCloser{}, nil
	case config.StorageRedis:
		s, err = redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisDB,
			redis.WithKeyPrefix(cfg.ServiceName),
		)
	case config.StorageLevelDB:
		s, err = leveldb.Open(cfg.LevelDBPath)
	case config.StorageSQLite:
		s, err = sqlite.Open(ctx, cfg.SQLitePath)
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	if err != nil {
		return nil, nil, fmt.Errorf("open %s storage: %w", cfg.StorageDriver, err)
	}
	return s, s, nil
}
