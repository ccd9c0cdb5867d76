package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"vault-zap/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "vault-zap",
	Short: "Deposit into and withdraw from yield vaults from any token on any chain",
	Long: `vault-zap moves funds into and out of ERC-4626 style yield vaults. It picks
the cheapest route on its own: a direct vault call when you already hold the
vault token, a same chain swap through Portals when you hold another token,
or a cross chain bridge through LiFi when your funds live on another chain.

Examples:
  vault-zap deposit 100 USDC@137 --vault yvUSDC
  vault-zap deposit 0.5 ETH@8453 --vault yvUSDC-1
  vault-zap withdraw 10 yvUSDC --receive USDT
  vault-zap vaults
  vault-zap notifications watch`,
	Version:       "0.1.0",
	SilenceErrors: true,
}

// Execute runs the root command and prints the error it ends with
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func newLogger(cmd *cobra.Command) zerolog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return logging.New(verbose, jsonOutput)
}

func printError(err error) {
	color.Red("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
