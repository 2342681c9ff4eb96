package cli

import (
	"context"
	"os"

	"github.com/gabapcia/powchain/internal/node"
	"github.com/gabapcia/powchain/internal/nodeclient"

	"github.com/urfave/cli/v3"
)

// RunServer executes the powchain-server CLI.
//
// It registers:
//
//   - `start`: Runs the node until SIGINT or SIGTERM.
func RunServer(ctx context.Context, n node.Service) error {
	return newServerCommand(n).Run(ctx, os.Args)
}

func newServerCommand(n node.Service) *cli.Command {
	return &cli.Command{
		EnableShellCompletion: true,
		Name:                  "powchain-server",
		Description:           "Runs a powchain node: chain store, mempool, miner, peer network and JSON-RPC API.",
		Usage:                 "powchain-server [command] [flags]",
		Commands: []*cli.Command{
			startNodeCommand(n),
		},
	}
}

// RunClient executes the powchain wallet CLI.
//
// It registers:
//
//   - `wallet new` / `wallet show`: Manage local encrypted wallets.
//   - `send`: Signs a transfer locally and submits it to the node.
//   - `balance`, `chain`, `status`: Query the node.
//   - `mine`: Asks the node to seal one block.
//
// Private keys never leave this process; only signed transactions are sent.
func RunClient(ctx context.Context, nc nodeclient.Client, wallets WalletStore) error {
	return newClientCommand(nc, wallets).Run(ctx, os.Args)
}

func newClientCommand(nc nodeclient.Client, wallets WalletStore) *cli.Command {
	return &cli.Command{
		EnableShellCompletion: true,
		Name:                  "powchain",
		Description:           "Wallet client for a powchain node.",
		Usage:                 "powchain [command] [flags]",
		Commands: []*cli.Command{
			walletCommand(wallets),
			sendCommand(nc, wallets),
			balanceCommand(nc),
			chainCommand(nc),
			statusCommand(nc),
			mineCommand(nc),
		},
	}
}
