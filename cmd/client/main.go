package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gabapcia/powchain/internal/config"
	"github.com/gabapcia/powchain/internal/handlers/cli"
	"github.com/gabapcia/powchain/internal/infra/storage/keystore"
	"github.com/gabapcia/powchain/internal/nodeclient"
	"github.com/gabapcia/powchain/internal/pkg/logger"
	transporthttp "github.com/gabapcia/powchain/internal/pkg/transport/http"
	"github.com/gabapcia/powchain/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/powchain/internal/wallet"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}

	if err := logger.Init(logger.WithLevel(cfg.LogLevel)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	httpClient := transporthttp.NewClient(
		transporthttp.WithTimeout(cfg.Timeout),
		transporthttp.WithRetryMax(cfg.RetryMax),
		transporthttp.WithRetryWaitMin(cfg.RetryWaitMin),
		transporthttp.WithRetryWaitMax(cfg.RetryWaitMax),
	)
	nc := nodeclient.New(jsonrpc.NewClient(httpClient.StandardClient(), cfg.NodeURL))

	wallets := func(passphrase string) wallet.Storage {
		return keystore.New(cfg.WalletDir, passphrase)
	}

	return cli.RunClient(ctx, nc, wallets)
}
