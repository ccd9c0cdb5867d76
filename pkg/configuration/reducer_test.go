package configuration

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"vault-zap/pkg/types"
)

func usdc() *types.Token {
	return &types.Token{
		Address:  common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		ChainID:  1,
		Symbol:   "USDC",
		Decimals: 6,
	}
}

func vault() *types.Vault {
	return &types.Vault{
		Address: common.HexToAddress("0xBe53A109B494E5c9f97b9Cd39Fe969BE68BF6204"),
		ChainID: 1,
		Version: "3.0.2",
		Token:   *usdc(),
	}
}

func TestReduceDepositSetAssetMerges(t *testing.T) {
	state := NewDepositConfiguration()
	token := usdc()
	state = ReduceDeposit(state, SetAsset{Patch: AssetPatch{Token: token}})

	amount := "100"
	normalized := types.ToNormalizedBN(big.NewInt(100_000_000), 6)
	state = ReduceDeposit(state, SetAsset{Patch: AssetPatch{Amount: &amount, NormalizedAmount: &normalized}})

	require.NotNil(t, state.Asset.Token)
	require.Equal(t, token.Address, state.Asset.Token.Address)
	require.Equal(t, "100", state.Asset.Amount)
	require.Equal(t, "100", state.Asset.NormalizedAmount.Display)
	require.Equal(t, types.Undetermined, state.Asset.Validity)
}

func TestReduceDepositDoesNotMutatePrevious(t *testing.T) {
	before := NewDepositConfiguration()
	after := ReduceDeposit(before, SetOpportunity{Vault: vault()})

	require.Nil(t, before.Opportunity)
	require.NotNil(t, after.Opportunity)
}

func TestReduceDepositReset(t *testing.T) {
	state := NewDepositConfiguration()
	previousID := state.Asset.RequestID
	amount := "5"
	state = ReduceDeposit(state, SetAsset{Patch: AssetPatch{Token: usdc(), Amount: &amount}})
	state = ReduceDeposit(state, SetOpportunity{Vault: vault()})

	state = ReduceDeposit(state, Reset{})
	require.Nil(t, state.Asset.Token)
	require.Empty(t, state.Asset.Amount)
	require.True(t, state.Asset.NormalizedAmount.IsZero())
	require.Nil(t, state.Opportunity)
	require.NotEqual(t, previousID, state.Asset.RequestID)
}

func TestReduceWithdraw(t *testing.T) {
	state := NewWithdrawConfiguration()
	state = ReduceWithdraw(state, SetVault{Vault: vault()})
	state = ReduceWithdraw(state, SetTokenToReceive{Token: usdc()})
	require.NotNil(t, state.Vault)
	require.Equal(t, "USDC", state.TokenToReceive.Symbol)

	state = ReduceWithdraw(state, SetTokenToReceive{Token: nil})
	require.Nil(t, state.TokenToReceive)

	replaced := WithdrawConfiguration{Asset: types.NewInput(), TokenToReceive: usdc()}
	state = ReduceWithdraw(state, SetConfiguration{Configuration: replaced})
	require.Nil(t, state.Vault)
	require.NotNil(t, state.TokenToReceive)

	state = ReduceWithdraw(state, Reset{})
	require.Nil(t, state.Vault)
	require.Nil(t, state.TokenToReceive)
}

func TestFormTwoPhaseReset(t *testing.T) {
	form := NewDepositForm()
	var seen []DepositConfiguration
	form.Subscribe(func(c DepositConfiguration) { seen = append(seen, c) })

	form.Dispatch(SetOpportunity{Vault: vault()})
	require.Len(t, seen, 1)
	require.Equal(t, Editing, form.Phase())

	form.BeginReset()
	require.True(t, form.IsClosing())
	require.NotNil(t, form.State().Opportunity)

	state := form.CompleteReset()
	require.Nil(t, state.Opportunity)
	require.False(t, form.IsClosing())
	require.Len(t, seen, 2)
}
