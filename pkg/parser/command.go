package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"vault-zap/pkg/types"
)

// TransferCommand is a parsed "<amount> <asset>[@chain]" command
type TransferCommand struct {
	Amount  string
	Asset   string
	ChainID uint64
}

var transferPattern = regexp.MustCompile(`^(\d+\.?\d*)\s+([A-Za-z0-9.]+|0x[0-9a-fA-F]{40})(?:@(\d+))?$`)

// ParseTransferCommand parses a transfer command
// Examples:
//   - "100 USDC"
//   - "1.5 WETH@8453"
//   - "250 0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359@137"
func ParseTransferCommand(command string) (*TransferCommand, error) {
	command = strings.TrimSpace(command)
	command = strings.TrimPrefix(command, "deposit ")
	command = strings.TrimPrefix(command, "withdraw ")

	matches := transferPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid command format. Expected: '<amount> <token>[@chain]' (e.g., '100 USDC@137')")
	}

	cmd := &TransferCommand{
		Amount: matches[1],
		Asset:  matches[2],
	}
	if matches[3] != "" {
		chainID, err := strconv.ParseUint(matches[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id: %w", err)
		}
		cmd.ChainID = chainID
	}
	return cmd, nil
}

// IsAddress returns true if the asset is referenced by contract address
func (c *TransferCommand) IsAddress() bool {
	return common.IsHexAddress(c.Asset)
}

// ParseAmount converts a decimal amount string into base units for the given decimals
func ParseAmount(amount string, decimals int32) (types.NormalizedBN, error) {
	if strings.TrimSpace(amount) == "" {
		return types.ZeroNormalizedBN(), fmt.Errorf("amount cannot be empty")
	}

	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return types.ZeroNormalizedBN(), fmt.Errorf("invalid amount format: %w", err)
	}
	if value.IsNegative() {
		return types.ZeroNormalizedBN(), fmt.Errorf("amount must not be negative")
	}
	if value.Exponent() < -decimals {
		return types.ZeroNormalizedBN(), fmt.Errorf("amount %s has more than %d decimals", amount, decimals)
	}

	return types.ToNormalizedBN(value.Shift(decimals).BigInt(), decimals), nil
}

// NormalizeTokenSymbol normalizes token symbols to standard format
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	aliases := map[string]string{
		"USDC.E": "USDC",
		"MATIC":  "POL",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}
