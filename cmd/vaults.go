package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vault-zap/config"
	"vault-zap/pkg/types"
)

var vaultsChain uint64

var vaultsCmd = &cobra.Command{
	Use:   "vaults",
	Short: "List the configured vaults",
	Long: `List the vaults declared under "vaults" in .vault-zap.yaml.

Examples:
  vault-zap vaults
  vault-zap vaults --chain 137`,
	RunE: runVaults,
}

func init() {
	rootCmd.AddCommand(vaultsCmd)

	vaultsCmd.Flags().Uint64Var(&vaultsChain, "chain", 0, "Filter by chain ID")
}

func runVaults(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var vaults []types.Vault
	for _, v := range cfg.Vaults {
		if vaultsChain == 0 || v.ChainID == vaultsChain {
			vaults = append(vaults, v)
		}
	}

	if jsonOutput {
		output, _ := json.MarshalIndent(vaults, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(vaults) == 0 {
		color.Yellow("No vaults configured.\n")
		fmt.Println("\nDeclare vaults in .vault-zap.yaml:")
		color.Cyan("  vaults:\n    - address: 0x...\n      chain_id: 137\n      symbol: yvUSDC\n      token: {address: 0x..., symbol: USDC, decimals: 6}\n")
		return nil
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	color.Green("                                            VAULTS")
	fmt.Println(strings.Repeat("=", 100))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nSYMBOL\tNAME\tCHAIN\tTOKEN\tVERSION\tADDRESS")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, v := range vaults {
		chainName := fmt.Sprintf("%d", v.ChainID)
		if chain, ok := cfg.Chains[v.ChainID]; ok && chain.Name != "" {
			chainName = chain.Name
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			color.CyanString(v.Symbol), v.Name, chainName, v.Token.Symbol, v.Version, v.Address.Hex())
	}

	w.Flush()
	fmt.Println("\n" + strings.Repeat("=", 100) + "\n")
	return nil
}
