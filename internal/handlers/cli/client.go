package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gabapcia/powchain/internal/nodeclient"
	"github.com/gabapcia/powchain/internal/wallet"

	"github.com/urfave/cli/v3"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// sendCommand signs a transfer with a local wallet and submits it. The
// command returns once the node has accepted or rejected the transaction.
//
// Usage example:
//
//	powchain send --wallet alice --passphrase secret --to 02ab... --amount 10
func sendCommand(nc nodeclient.Client, wallets WalletStore) *cli.Command {
	return &cli.Command{
		Name:        "send",
		Description: "Sign a value transfer locally and submit it to the node's mempool.",
		Usage:       "Sends coins from a local wallet to an address.",
		Flags: []cli.Flag{
			walletNameFlag("wallet"),
			passphraseFlag(),
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Recipient address (hex compressed public key)",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:     "amount",
				Usage:    "Amount to transfer",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			recipient, err := wallet.ParseAddress(c.String("to"))
			if err != nil {
				return fmt.Errorf("recipient: %w", err)
			}

			w, err := wallets(c.String("passphrase")).LoadWallet(ctx, c.String("wallet"))
			if err != nil {
				return err
			}

			tx, err := w.NewTransaction(recipient, c.Uint64("amount"), time.Now().Unix())
			if err != nil {
				return err
			}

			id, err := nc.SubmitTransaction(ctx, tx)
			if err != nil {
				return fmt.Errorf("transaction rejected: %w", err)
			}

			_, err = fmt.Fprintln(c.Root().Writer, id)
			return err
		},
	}
}

// balanceCommand prints the confirmed balance of an address.
//
// Usage example:
//
//	powchain balance --address 02ab...
func balanceCommand(nc nodeclient.Client) *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Prints the confirmed balance of an address.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Usage:    "Address to query",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			address, err := wallet.ParseAddress(c.String("address"))
			if err != nil {
				return err
			}

			balance, err := nc.Balance(ctx, address)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(c.Root().Writer, balance)
			return err
		},
	}
}

func chainCommand(nc nodeclient.Client) *cli.Command {
	return &cli.Command{
		Name:  "chain",
		Usage: "Prints the node's active chain and its accumulated work.",
		Action: func(ctx context.Context, c *cli.Command) error {
			blocks, work, err := nc.Chain(ctx)
			if err != nil {
				return err
			}

			return printJSON(c.Root().Writer, map[string]any{
				"blocks": blocks,
				"work":   work.String(),
			})
		},
	}
}

func statusCommand(nc nodeclient.Client) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Prints the node's tip, mempool size, miner state and peers.",
		Action: func(ctx context.Context, c *cli.Command) error {
			status, err := nc.Status(ctx)
			if err != nil {
				return err
			}

			return printJSON(c.Root().Writer, status)
		},
	}
}

// mineCommand asks the node to seal one block from its mempool and prints it.
func mineCommand(nc nodeclient.Client) *cli.Command {
	return &cli.Command{
		Name:  "mine",
		Usage: "Asks the node to mine one block.",
		Action: func(ctx context.Context, c *cli.Command) error {
			block, err := nc.MineBlock(ctx)
			if err != nil {
				return err
			}

			return printJSON(c.Root().Writer, block)
		},
	}
}
