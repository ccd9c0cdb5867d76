package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vault-zap/pkg/configuration"
	"vault-zap/pkg/parser"
	"vault-zap/pkg/solver"
)

var (
	withdrawReceive   string
	withdrawNoConfirm bool
)

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <shares> <vault> [--receive <token>]",
	Short: "Withdraw vault shares into any token of the vault chain",
	Long: `Withdraw shares from a vault. Without --receive the vault token is returned
directly; any other token of the vault chain is reached through a Portals swap.

Examples:
  vault-zap withdraw 10 yvUSDC
  vault-zap withdraw 10 yvUSDC --receive USDT
  vault-zap withdraw 0.5 0x00000000000000000000000000000000000000f1 --receive WETH --yes`,
	Args: cobra.ExactArgs(2),
	RunE: runWithdraw,
}

func init() {
	rootCmd.AddCommand(withdrawCmd)

	withdrawCmd.Flags().StringVar(&withdrawReceive, "receive", "", "Token to receive (defaults to the vault token)")
	withdrawCmd.Flags().BoolVarP(&withdrawNoConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runWithdraw(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	jsonOutput, _ := cmd.Flags().GetBool("json")

	sess, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	vault, err := sess.cfg.FindVault(args[1])
	if err != nil {
		return err
	}
	shares, err := parser.ParseAmount(args[0], vault.Decimals)
	if err != nil {
		return err
	}
	if shares.IsZero() {
		return fmt.Errorf("amount must be greater than zero")
	}

	receive := vault.Token
	if withdrawReceive != "" {
		receive, err = sess.cfg.FindToken(withdrawReceive, vault.ChainID)
		if err != nil {
			return err
		}
	}

	form := configuration.NewWithdrawForm()
	solver.BindWithdraw(form, sess.selector)
	form.Dispatch(configuration.SetVault{Vault: &vault})
	form.Dispatch(configuration.SetTokenToReceive{Token: &receive})
	form.Dispatch(configuration.SetAsset{Patch: assetPatch(vault.AsToken(), shares)})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := transfer{
		Action: solver.Withdraw,
		From:   fmt.Sprintf("%s %s on chain %d", shares.Display, vault.Symbol, vault.ChainID),
		To:     fmt.Sprintf("%s on chain %d", receive.Symbol, receive.ChainID),
	}
	err = run(ctx, sess, t, receive.Decimals, receive.Symbol, jsonOutput, withdrawNoConfirm)

	form.BeginReset()
	form.CompleteReset()
	sess.pushMetrics("withdraw")

	return err
}
