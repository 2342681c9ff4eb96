package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gabapcia/powchain/internal/node"

	"github.com/urfave/cli/v3"
)

// startNodeCommand returns a CLI command that starts the node and blocks
// until the process receives an interrupt (SIGINT or SIGTERM).
//
// Usage example:
//
//	powchain-server start
func startNodeCommand(n node.Service) *cli.Command {
	return &cli.Command{
		Name:        "start",
		Description: "Starts the node: peer network, JSON-RPC API and, when enabled, the miner.",
		Usage:       "Runs the node. Terminates gracefully on Ctrl+C or termination signals.",
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := n.Start(ctx); err != nil {
				return err
			}
			defer n.Close()

			<-ctx.Done()
			return nil
		},
	}
}
