package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTransferCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		amount  string
		asset   string
		chainID uint64
		wantErr bool
	}{
		{name: "symbol", input: "100 USDC", amount: "100", asset: "USDC"},
		{name: "symbol with chain", input: "1.5 WETH@8453", amount: "1.5", asset: "WETH", chainID: 8453},
		{name: "prefixed", input: "deposit 3 DAI@1", amount: "3", asset: "DAI", chainID: 1},
		{
			name:    "address",
			input:   "250 0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359@137",
			amount:  "250",
			asset:   "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
			chainID: 137,
		},
		{name: "missing amount", input: "USDC", wantErr: true},
		{name: "garbage", input: "a lot of USDC", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseTransferCommand(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.amount, cmd.Amount)
			require.Equal(t, tt.asset, cmd.Asset)
			require.Equal(t, tt.chainID, cmd.ChainID)
		})
	}
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount("100.5", 6)
	require.NoError(t, err)
	require.Equal(t, "100500000", amount.Raw.String())
	require.Equal(t, 100.5, amount.Normalized)
	require.Equal(t, "100.5", amount.Display)

	_, err = ParseAmount("1.0000001", 6)
	require.Error(t, err)

	_, err = ParseAmount("-1", 18)
	require.Error(t, err)

	_, err = ParseAmount("", 18)
	require.Error(t, err)
}

func TestNormalizeTokenSymbol(t *testing.T) {
	require.Equal(t, "USDC", NormalizeTokenSymbol(" usdc.e "))
	require.Equal(t, "WETH", NormalizeTokenSymbol("weth"))
}
