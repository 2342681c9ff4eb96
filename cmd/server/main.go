package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gabapcia/powchain/internal/config"
	"github.com/gabapcia/powchain/internal/handlers/cli"
	"github.com/gabapcia/powchain/internal/node"
	"github.com/gabapcia/powchain/internal/pkg/logger"
	"github.com/gabapcia/powchain/internal/pkg/telemetry"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}

	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.Init(ctx, cfg.ServiceName)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	if err := logger.Init(logger.WithLevel(cfg.LogLevel)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	n, err := node.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer n.Close()

	return cli.RunServer(ctx, n)
}
