package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"vault-zap/pkg/configuration"
	"vault-zap/pkg/parser"
	"vault-zap/pkg/solver"
	"vault-zap/pkg/types"
)

var (
	depositVault     string
	depositNoConfirm bool
)

var depositCmd = &cobra.Command{
	Use:   "deposit <amount> <token>[@chain] --vault <vault>",
	Short: "Deposit any token into a vault",
	Long: `Deposit into a vault from the vault token, from another token on the vault
chain (swapped through Portals) or from a token on another chain (bridged
through LiFi). The route is chosen automatically.

When a Safe address is configured, the approval and the deposit are proposed
to the Safe as one batch.

Examples:
  # Direct deposit
  vault-zap deposit 100 USDC@137 --vault yvUSDC

  # Swap then deposit
  vault-zap deposit 100 USDT@137 --vault yvUSDC

  # Bridge from Base then deposit
  vault-zap deposit 0.05 ETH@8453 --vault yvUSDC --yes`,
	Args: cobra.MinimumNArgs(2),
	RunE: runDeposit,
}

func init() {
	rootCmd.AddCommand(depositCmd)

	depositCmd.Flags().StringVar(&depositVault, "vault", "", "Vault symbol, name or address (REQUIRED)")
	depositCmd.Flags().BoolVarP(&depositNoConfirm, "yes", "y", false, "Skip confirmation prompt")
	_ = depositCmd.MarkFlagRequired("vault")
}

func runDeposit(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	jsonOutput, _ := cmd.Flags().GetBool("json")

	command, err := parser.ParseTransferCommand(strings.Join(args, " "))
	if err != nil {
		return err
	}

	sess, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	vault, err := sess.cfg.FindVault(depositVault)
	if err != nil {
		return err
	}

	chainID := command.ChainID
	if chainID == 0 {
		chainID = vault.ChainID
	}
	token, err := sess.cfg.FindToken(command.Asset, chainID)
	if err != nil {
		return err
	}
	amount, err := parser.ParseAmount(command.Amount, token.Decimals)
	if err != nil {
		return err
	}
	if amount.IsZero() {
		return fmt.Errorf("amount must be greater than zero")
	}

	form := configuration.NewDepositForm()
	solver.BindDeposit(form, sess.selector)
	form.Dispatch(configuration.SetOpportunity{Vault: &vault})
	form.Dispatch(configuration.SetAsset{Patch: assetPatch(token, amount)})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := transfer{
		Action: solver.Deposit,
		From:   fmt.Sprintf("%s %s on chain %d", amount.Display, token.Symbol, token.ChainID),
		To:     fmt.Sprintf("%s (%s) on chain %d", vault.Symbol, vault.Address.Hex(), vault.ChainID),
	}
	err = run(ctx, sess, t, vault.Decimals, vault.Symbol, jsonOutput, depositNoConfirm)

	form.BeginReset()
	form.CompleteReset()
	sess.pushMetrics("deposit")

	return err
}

func assetPatch(token types.Token, amount types.NormalizedBN) configuration.AssetPatch {
	display := amount.Display
	valid := types.Valid
	return configuration.AssetPatch{
		Token:            &token,
		Amount:           &display,
		NormalizedAmount: &amount,
		Validity:         &valid,
	}
}
