package solver

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"vault-zap/pkg/classifier"
	"vault-zap/pkg/configuration"
	"vault-zap/pkg/types"
)

func TestSelectorPicksExactlyOneSolver(t *testing.T) {
	tests := []struct {
		name   string
		zap    bool
		bridge bool
		want   classifier.Kind
	}{
		{name: "same asset same chain", want: classifier.Vanilla},
		{name: "zap", zap: true, want: classifier.Portals},
		{name: "bridge", bridge: true, want: classifier.Lifi},
		{name: "zap and bridge", zap: true, bridge: true, want: classifier.Lifi},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSelector(testDeps(newFakeWallet(137)))
			req := vanillaDeposit(100)
			req.IsZapNeeded = tt.zap
			req.IsBridgeNeeded = tt.bridge
			s.Update(req)

			require.Equal(t, tt.want, s.Kind())
			require.Equal(t, tt.want, s.Snapshot().Kind)
			require.Same(t, s.Solver(tt.want), s.Active())
		})
	}
}

func TestIdleSolversMakeNoCalls(t *testing.T) {
	wallet := newFakeWallet(137)
	deps := testDeps(wallet)
	portalsAPI := &fakePortals{allowance: "0"}
	lifiAPI := &fakeLiFi{}
	deps.Portals = portalsAPI
	deps.LiFi = lifiAPI

	s := NewSelector(deps)
	s.Update(vanillaDeposit(100))
	for _, kind := range []classifier.Kind{classifier.Vanilla, classifier.Portals, classifier.Lifi} {
		s.Solver(kind).Refresh(context.Background())
	}

	require.Empty(t, portalsAPI.estimates)
	require.Zero(t, portalsAPI.approvals)
	require.Zero(t, lifiAPI.quotes)
}

func TestSelectorDelegatesActions(t *testing.T) {
	wallet := newFakeWallet(137)
	s := NewSelector(testDeps(wallet))
	s.Update(vanillaDeposit(100))

	require.NoError(t, s.OnApprove(context.Background(), nil))
	require.NoError(t, s.OnExecuteDeposit(context.Background(), nil))
	require.Len(t, wallet.sentTxs(), 2)
	require.Equal(t, types.TxSuccess, s.Snapshot().DepositStatus)
}

func TestDepositRequest(t *testing.T) {
	vault := usdcVault

	req := DepositRequest(configuration.DepositConfiguration{Asset: input(usdc, 100), Opportunity: &vault})
	require.False(t, req.IsZapNeeded)
	require.False(t, req.IsBridgeNeeded)

	req = DepositRequest(configuration.DepositConfiguration{Asset: input(usdt, 100), Opportunity: &vault})
	require.True(t, req.IsZapNeeded)
	require.False(t, req.IsBridgeNeeded)

	req = DepositRequest(configuration.DepositConfiguration{Asset: input(baseETH, 100), Opportunity: &vault})
	require.True(t, req.IsZapNeeded)
	require.True(t, req.IsBridgeNeeded)

	req = DepositRequest(configuration.DepositConfiguration{Asset: input(usdt, 100)})
	require.False(t, req.IsZapNeeded)
	require.False(t, req.IsBridgeNeeded)
}

func TestWithdrawRequest(t *testing.T) {
	vault := usdcVault
	shares := types.NewInput()
	shares.Amount = "10"
	shares.NormalizedAmount = types.ToNormalizedBN(big.NewInt(10_000_000), 6)

	req := WithdrawRequest(configuration.WithdrawConfiguration{Asset: shares, Vault: &vault, TokenToReceive: &usdc})
	require.Equal(t, Withdraw, req.Action)
	require.False(t, req.IsZapNeeded)
	require.NotNil(t, req.Input.Token)
	require.Equal(t, vault.Address, req.Input.Token.Address)

	req = WithdrawRequest(configuration.WithdrawConfiguration{Asset: shares, Vault: &vault, TokenToReceive: &usdt})
	require.True(t, req.IsZapNeeded)
	require.Equal(t, usdt.Address, *req.OutputAddress())

	// withdrawals never bridge, even to a token on another chain
	req = WithdrawRequest(configuration.WithdrawConfiguration{Asset: shares, Vault: &vault, TokenToReceive: &baseETH})
	require.False(t, req.IsBridgeNeeded)
}

func TestBindDepositFollowsForm(t *testing.T) {
	s := NewSelector(testDeps(newFakeWallet(137)))
	form := configuration.NewDepositForm()
	BindDeposit(form, s)
	require.Equal(t, classifier.Vanilla, s.Kind())

	vault := usdcVault
	form.Dispatch(configuration.SetOpportunity{Vault: &vault})
	token := usdt
	form.Dispatch(configuration.SetAsset{Patch: configuration.AssetPatch{Token: &token}})
	require.Equal(t, classifier.Portals, s.Kind())

	token = baseETH
	form.Dispatch(configuration.SetAsset{Patch: configuration.AssetPatch{Token: &token}})
	require.Equal(t, classifier.Lifi, s.Kind())

	form.BeginReset()
	form.CompleteReset()
	require.Equal(t, classifier.Vanilla, s.Kind())
}

func TestBindWithdrawFollowsForm(t *testing.T) {
	s := NewSelector(testDeps(newFakeWallet(137)))
	form := configuration.NewWithdrawForm()
	BindWithdraw(form, s)

	vault := usdcVault
	form.Dispatch(configuration.SetVault{Vault: &vault})
	token := usdt
	form.Dispatch(configuration.SetTokenToReceive{Token: &token})
	require.Equal(t, classifier.Portals, s.Kind())

	token = usdc
	form.Dispatch(configuration.SetTokenToReceive{Token: &token})
	require.Equal(t, classifier.Vanilla, s.Kind())
}
