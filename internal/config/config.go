// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/gabapcia/powchain/internal/pkg/validator"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
)

const (
	serverPrefix = "POWCHAIN"
	clientPrefix = "POWCHAIN_CLIENT"
)

// Storage drivers accepted by Server.StorageDriver.
const (
	StorageMemory  = "memory"
	StorageRedis   = "redis"
	StorageLevelDB = "leveldb"
	StorageSQLite  = "sqlite"
)

// Server configures a node, read from POWCHAIN_* variables.
type Server struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	NodeID   string `envconfig:"NODE_ID"`

	P2PAddr           string        `envconfig:"P2P_ADDR" default:":7000" validate:"required,hostname_port"`
	RPCAddr           string        `envconfig:"RPC_ADDR" default:":8545" validate:"required,hostname_port"`
	Peers             []string      `envconfig:"PEERS" validate:"dive,hostname_port"`
	DiscoveryInterval time.Duration `envconfig:"DISCOVERY_INTERVAL" default:"10s" validate:"gt=0"`
	DialTimeout       time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s" validate:"gt=0"`
	MaxPeers          int           `envconfig:"MAX_PEERS" default:"16" validate:"gt=0"`
	SeenWindow        time.Duration `envconfig:"SEEN_WINDOW" default:"10m" validate:"gt=0"`
	PeerRateLimit     float64       `envconfig:"PEER_RATE_LIMIT" default:"100" validate:"gt=0"`
	PeerRateBurst     int           `envconfig:"PEER_RATE_BURST" default:"200" validate:"gt=0"`

	Difficulty           uint8  `envconfig:"DIFFICULTY" default:"16" validate:"lte=64"`
	MaxBlockTransactions int    `envconfig:"MAX_BLOCK_TRANSACTIONS" default:"100" validate:"gt=0"`
	MiningReward         uint64 `envconfig:"MINING_REWARD" default:"100"`
	MinerAddress         string `envconfig:"MINER_ADDRESS" validate:"omitempty,hexadecimal,len=66"`
	Mine                 bool   `envconfig:"MINE" default:"true"`
	MineEmptyBlocks      bool   `envconfig:"MINE_EMPTY_BLOCKS" default:"false"`

	MempoolCapacity int           `envconfig:"MEMPOOL_CAPACITY" default:"5000" validate:"gt=0"`
	MempoolTTL      time.Duration `envconfig:"MEMPOOL_TTL" default:"1h" validate:"gte=0"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"memory" validate:"oneof=memory redis leveldb sqlite"`
	RedisAddr     string `envconfig:"REDIS_ADDR" validate:"required_if=StorageDriver redis"`
	RedisUsername string `envconfig:"REDIS_USERNAME"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`
	LevelDBPath   string `envconfig:"LEVELDB_PATH" validate:"required_if=StorageDriver leveldb"`
	SQLitePath    string `envconfig:"SQLITE_PATH" validate:"required_if=StorageDriver sqlite"`

	TelemetryEnabled bool   `envconfig:"TELEMETRY_ENABLED" default:"false"`
	ServiceName      string `envconfig:"SERVICE_NAME" default:"powchain-server" validate:"required"`
}

// LoadServer reads and validates the node configuration. A missing NodeID is
// replaced by a random UUID.
func LoadServer() (Server, error) {
	var cfg Server
	if err := envconfig.Process(serverPrefix, &cfg); err != nil {
		return Server{}, fmt.Errorf("load server config: %w", err)
	}

	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}

	if err := validator.Validate(cfg); err != nil {
		return Server{}, err
	}

	return cfg, nil
}

// Client configures the wallet CLI, read from POWCHAIN_CLIENT_* variables.
type Client struct {
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"warn" validate:"oneof=debug info warn error"`
	NodeURL      string        `envconfig:"NODE_URL" default:"http://127.0.0.1:8545/rpc" validate:"required,url"`
	WalletDir    string        `envconfig:"WALLET_DIR" default:".powchain/wallets" validate:"required"`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"30s" validate:"gt=0"`
	RetryMax     int           `envconfig:"RETRY_MAX" default:"3" validate:"gte=0"`
	RetryWaitMin time.Duration `envconfig:"RETRY_WAIT_MIN" default:"200ms" validate:"gte=0"`
	RetryWaitMax time.Duration `envconfig:"RETRY_WAIT_MAX" default:"2s" validate:"gtefield=RetryWaitMin"`
}

// LoadClient reads and validates the client configuration.
func LoadClient() (Client, error) {
	var cfg Client
	if err := envconfig.Process(clientPrefix, &cfg); err != nil {
		return Client{}, fmt.Errorf("load client config: %w", err)
	}

	if err := validator.Validate(cfg); err != nil {
		return Client{}, err
	}

	return cfg, nil
}
