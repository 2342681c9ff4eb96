package cli

import (
	"context"
	"fmt"

	"github.com/gabapcia/powchain/internal/wallet"

	"github.com/urfave/cli/v3"
)

// WalletStore opens the local wallet storage sealed with passphrase.
type WalletStore func(passphrase string) wallet.Storage

func walletNameFlag(name string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     name,
		Usage:    "Name of the local wallet",
		Required: true,
	}
}

func passphraseFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "passphrase",
		Usage:    "Passphrase that encrypts the wallet file",
		Sources:  cli.EnvVars("POWCHAIN_CLIENT_PASSPHRASE"),
		Required: true,
	}
}

// walletCommand groups the local wallet subcommands.
//
// Usage example:
//
//	powchain wallet new --name alice --passphrase secret
//	powchain wallet show --name alice --passphrase secret
func walletCommand(wallets WalletStore) *cli.Command {
	return &cli.Command{
		Name:        "wallet",
		Description: "Create and inspect local wallets.",
		Usage:       "Manages encrypted wallet files.",
		Commands: []*cli.Command{
			{
				Name:  "new",
				Usage: "Generates a key pair and stores it encrypted under a name.",
				Flags: []cli.Flag{walletNameFlag("name"), passphraseFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					w, err := wallet.Generate()
					if err != nil {
						return err
					}

					if err := wallets(c.String("passphrase")).SaveWallet(ctx, c.String("name"), w); err != nil {
						return err
					}

					_, err = fmt.Fprintln(c.Root().Writer, w.Address())
					return err
				},
			},
			{
				Name:  "show",
				Usage: "Prints the address of a stored wallet.",
				Flags: []cli.Flag{walletNameFlag("name"), passphraseFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					w, err := wallets(c.String("passphrase")).LoadWallet(ctx, c.String("name"))
					if err != nil {
						return err
					}

					_, err = fmt.Fprintln(c.Root().Writer, w.Address())
					return err
				},
			},
		},
	}
}
