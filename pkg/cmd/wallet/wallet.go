//nolint:funlen // cobra commands
package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/xrpracing/racegarage/log"
	"github.com/xrpracing/racegarage/pkg/cmd/app"
	"github.com/xrpracing/racegarage/pkg/model"
)

func NewWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "manage the wallet session",
	}
	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newConnectCmd())
	cmd.AddCommand(newBalanceCmd())
	cmd.AddCommand(newPayCmd())
	cmd.AddCommand(newLogoutCmd())
	return cmd
}

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "creates a new testnet wallet funded by the faucet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd, func(ctx context.Context, a *app.App) error {
				sess, err := a.Wallet.Create(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "address: %s\n", sess.Address())
				fmt.Fprintf(out, "seed:    %s (keep it secret)\n", sess.Seed())
				fmt.Fprintf(out, "balance: %s XRP\n", sess.Mirror().Balance())
				return nil
			})
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [seed]",
		Short: "imports a wallet from its seed (read from stdin if omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed := ""
			if len(args) == 1 {
				seed = args[0]
			} else {
				var err error
				if seed, err = readLine(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			return app.Run(cmd, func(ctx context.Context, a *app.App) error {
				sess, err := a.Wallet.Import(ctx, seed)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "address: %s\nbalance: %s XRP\n",
					sess.Address(), sess.Mirror().Balance())
				return nil
			})
		},
	}
}

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "connects the wallet of the signer extension",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd, func(ctx context.Context, a *app.App) error {
				sess, err := a.Wallet.ConnectExtension(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "address: %s\nbalance: %s XRP\n",
					sess.Address(), sess.Mirror().Balance())
				return nil
			})
		},
	}
}

func newBalanceCmd() *cobra.Command {
	var refresh, showTx bool
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "shows the mirrored balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd, func(ctx context.Context, a *app.App) error {
				sess, err := a.RequireSession()
				if err != nil {
					return err
				}
				balance := sess.Mirror().Balance()
				if refresh {
					log.Warn("the ledger balance may differ from the game balance")
					if balance, err = a.Wallet.RefreshBalance(ctx); err != nil {
						return err
					}
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s): %s XRP\n", sess.Address(), sess.ConnectionType(), balance)
				if showTx {
					printTransactions(out, sess.Mirror().Transactions())
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "read the balance from the ledger")
	cmd.Flags().BoolVar(&showTx, "tx", false, "list recorded transactions")
	return cmd
}

func newPayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pay <destination> <amount>",
		Short: "sends a payment in XRP",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[1], err)
			}
			return app.Run(cmd, func(ctx context.Context, a *app.App) error {
				tx, err := a.Wallet.SendPayment(ctx, args[0], amount)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent %s XRP to %s (%s)\n",
					amount, tx.Destination, tx.Hash)
				return nil
			})
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "forgets the wallet session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd, func(ctx context.Context, a *app.App) error {
				return a.Wallet.Logout(ctx)
			})
		},
	}
}

func printTransactions(w io.Writer, txs []model.Transaction) {
	for _, tx := range txs {
		fmt.Fprintf(w, "%s  %-12s %10s  %-9s %s\n",
			tx.Timestamp.Format("2006-01-02 15:04:05"),
			tx.Kind, tx.Amount.StringFixed(2), tx.Status, tx.Destination)
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
