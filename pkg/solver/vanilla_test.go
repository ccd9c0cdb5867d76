package solver

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"vault-zap/pkg/client"
	"vault-zap/pkg/types"
)

func vanillaDeposit(raw int64) Request {
	vault := usdcVault
	return Request{Action: Deposit, Input: input(usdc, raw), Vault: &vault}
}

func TestVanillaRefreshReadsVaultAllowance(t *testing.T) {
	wallet := newFakeWallet(137)
	wallet.allowances[usdcVault.Address] = big.NewInt(500)

	v := NewVanilla(testDeps(wallet))
	v.Update(vanillaDeposit(1000))
	v.Refresh(context.Background())

	s := v.Snapshot()
	require.Equal(t, int64(500), s.Allowance.Raw.Int64())
	require.False(t, s.IsApproved)
	require.False(t, s.IsFetchingAllowance)
	require.Nil(t, s.Quote)
}

func TestVanillaIdleWhenZapNeeded(t *testing.T) {
	wallet := newFakeWallet(137)
	wallet.allowances[usdcVault.Address] = big.NewInt(500)

	v := NewVanilla(testDeps(wallet))
	req := vanillaDeposit(1000)
	req.IsZapNeeded = true
	v.Update(req)
	v.Refresh(context.Background())

	require.True(t, v.Snapshot().Allowance.IsZero())
}

func TestVanillaWithdrawNeedsNoAllowance(t *testing.T) {
	wallet := newFakeWallet(137)
	wallet.allowances[usdcVault.Address] = big.NewInt(500)

	v := NewVanilla(testDeps(wallet))
	vault := usdcVault
	v.Update(Request{Action: Withdraw, Input: input(vault.AsToken(), 10), Vault: &vault})
	v.Refresh(context.Background())

	require.True(t, v.Snapshot().Allowance.IsZero())
}

func TestVanillaApproveRefetchesAllowance(t *testing.T) {
	cache, err := NewAllowanceCache()
	require.NoError(t, err)
	defer cache.Close()

	wallet := newFakeWallet(137)
	deps := testDeps(wallet)
	deps.Cache = cache

	v := NewVanilla(deps)
	v.Update(vanillaDeposit(1000))
	v.Refresh(context.Background())
	require.True(t, v.Snapshot().Allowance.IsZero())

	var called bool
	require.NoError(t, v.OnApprove(context.Background(), func() { called = true }))
	require.True(t, called)

	sent := wallet.sentTxs()
	require.Len(t, sent, 1)
	require.Equal(t, usdc.Address, sent[0].To)
	require.Equal(t, "095ea7b3", hex.EncodeToString(sent[0].Data[:4]))

	s := v.Snapshot()
	require.Equal(t, int64(1000), s.Allowance.Raw.Int64())
	require.True(t, s.IsApproved)
	require.True(t, s.IsDisabled)
	require.Equal(t, types.TxSuccess, s.ApprovalStatus)

	// the cached pre-approval value must not come back
	v.Refresh(context.Background())
	require.Equal(t, int64(1000), v.Snapshot().Allowance.Raw.Int64())
}

func TestVanillaPermitDeposit(t *testing.T) {
	wallet := newFakeWallet(137)
	deps := testDeps(wallet)
	permits := &fakePermits{supported: true}
	deps.Permits = permits

	v := NewVanilla(deps)
	v.Update(vanillaDeposit(1000))

	require.NoError(t, v.OnApprove(context.Background(), nil))
	require.Empty(t, wallet.sentTxs())
	require.Len(t, permits.requests, 1)
	require.Equal(t, routerV3, permits.requests[0].Spender)
	require.Equal(t, int64(1000), permits.requests[0].Value.Int64())
	require.Equal(t, fixedNow.Unix()+3600, permits.requests[0].Deadline.Int64())

	s := v.Snapshot()
	require.True(t, s.HasPermit)
	require.True(t, s.IsApproved)

	require.NoError(t, v.OnExecuteDeposit(context.Background(), nil))
	sent := wallet.sentTxs()
	require.Len(t, sent, 1)
	require.Equal(t, routerV3, sent[0].To)

	s = v.Snapshot()
	require.False(t, s.HasPermit)
	require.True(t, s.Allowance.IsZero())
	require.Equal(t, types.TxSuccess, s.DepositStatus)
}

func TestVanillaPermitClearedOnFailure(t *testing.T) {
	wallet := newFakeWallet(137)
	deps := testDeps(wallet)
	deps.Permits = &fakePermits{supported: true}
	alerter := &fakeAlerter{}
	deps.Alerter = alerter

	v := NewVanilla(deps)
	v.Update(vanillaDeposit(1000))
	require.NoError(t, v.OnApprove(context.Background(), nil))
	require.True(t, v.Snapshot().HasPermit)

	wallet.sendErr = errors.New("rejected")
	err := v.OnExecuteDeposit(context.Background(), func() { t.Fatal("onSuccess called") })
	require.Error(t, err)

	s := v.Snapshot()
	require.False(t, s.HasPermit)
	require.True(t, s.Allowance.IsZero())
	require.Equal(t, types.TxError, s.DepositStatus)
	require.Equal(t, []string{GenericErrorMessage}, alerter.messages)
}

func TestVanillaPermitSkippedForLegacyVault(t *testing.T) {
	wallet := newFakeWallet(137)
	deps := testDeps(wallet)
	permits := &fakePermits{supported: true}
	deps.Permits = permits

	v := NewVanilla(deps)
	req := vanillaDeposit(1000)
	req.Vault.Version = "0.4.6"
	v.Update(req)

	require.NoError(t, v.OnApprove(context.Background(), nil))
	require.Empty(t, permits.requests)
	require.Len(t, wallet.sentTxs(), 1)
}

func TestVanillaDirectDeposit(t *testing.T) {
	wallet := newFakeWallet(137)
	v := NewVanilla(testDeps(wallet))
	v.Update(vanillaDeposit(1000))

	require.NoError(t, v.OnExecuteDeposit(context.Background(), nil))
	sent := wallet.sentTxs()
	require.Len(t, sent, 1)
	require.Equal(t, usdcVault.Address, sent[0].To)
	require.Equal(t, "6e553f65", hex.EncodeToString(sent[0].Data[:4]))
	require.Equal(t, types.TxSuccess, v.Snapshot().DepositStatus)
}

func TestVanillaDepositReverted(t *testing.T) {
	wallet := newFakeWallet(137)
	wallet.receiptStatus = 0
	deps := testDeps(wallet)
	alerter := &fakeAlerter{}
	deps.Alerter = alerter

	v := NewVanilla(deps)
	v.Update(vanillaDeposit(1000))

	err := v.OnExecuteDeposit(context.Background(), nil)
	require.ErrorIs(t, err, ErrReverted)
	require.Len(t, alerter.messages, 1)
	require.Contains(t, alerter.messages[0], "transaction reverted")
}

func TestVanillaWithdraw(t *testing.T) {
	tests := []struct {
		name    string
		version string
		dataLen int
	}{
		{name: "v3 redeem", version: "3.0.2", dataLen: 4 + 32*4},
		{name: "legacy withdraw", version: "0.4.6", dataLen: 4 + 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wallet := newFakeWallet(137)
			v := NewVanilla(testDeps(wallet))
			vault := usdcVault
			vault.Version = tt.version
			v.Update(Request{Action: Withdraw, Input: input(vault.AsToken(), 10), Vault: &vault, Output: &usdc})

			require.NoError(t, v.OnExecuteWithdraw(context.Background(), nil))
			sent := wallet.sentTxs()
			require.Len(t, sent, 1)
			require.Equal(t, vault.Address, sent[0].To)
			require.Len(t, sent[0].Data, tt.dataLen)
			require.Equal(t, types.TxSuccess, v.Snapshot().WithdrawStatus)
		})
	}
}

func TestVanillaWithdrawSkipsApproval(t *testing.T) {
	wallet := newFakeWallet(137)
	deps := testDeps(wallet)
	permits := &fakePermits{supported: true}
	deps.Permits = permits

	v := NewVanilla(deps)
	vault := usdcVault
	v.Update(Request{Action: Withdraw, Input: input(vault.AsToken(), 10), Vault: &vault, Output: &usdc})
	v.Refresh(context.Background())
	require.True(t, v.Snapshot().IsApproved)

	require.NoError(t, v.OnApprove(context.Background(), nil))
	require.Empty(t, wallet.sentTxs())
	require.Empty(t, permits.requests)

	s := v.Snapshot()
	require.False(t, s.HasPermit)
	require.Equal(t, types.TxSuccess, s.ApprovalStatus)
}

func TestVanillaWithdrawDropsStoredPermit(t *testing.T) {
	wallet := newFakeWallet(137)
	v := NewVanilla(testDeps(wallet))
	vault := usdcVault
	shares := input(vault.AsToken(), 10)
	v.Update(Request{Action: Withdraw, Input: shares, Vault: &vault, Output: &usdc})

	v.storePermit(&types.PermitSignature{V: 27, Signature: make([]byte, 65)}, shares.NormalizedAmount)
	require.True(t, v.Snapshot().HasPermit)

	require.NoError(t, v.OnExecuteWithdraw(context.Background(), nil))
	require.Len(t, wallet.sentTxs(), 1)
	require.False(t, v.Snapshot().HasPermit)
}

func TestVanillaPreconditions(t *testing.T) {
	wallet := newFakeWallet(137)
	deps := testDeps(wallet)
	alerter := &fakeAlerter{}
	deps.Alerter = alerter

	v := NewVanilla(deps)
	v.Update(Request{Action: Deposit, Input: input(usdc, 10)})

	require.ErrorIs(t, v.OnExecuteDeposit(context.Background(), nil), ErrPrecondition)
	require.ErrorIs(t, v.OnApprove(context.Background(), nil), ErrPrecondition)
	require.Empty(t, alerter.messages)
	require.Empty(t, wallet.sentTxs())
}

func TestVanillaGnosisBatch(t *testing.T) {
	wallet := newFakeWallet(137)
	wallet.safe = true
	deps := testDeps(wallet)
	batcher := &fakeBatcher{states: []client.BatchState{client.BatchPending, client.BatchSuccess}}
	deps.Batcher = batcher

	v := NewVanilla(deps)
	v.Update(vanillaDeposit(1000))

	require.NoError(t, v.OnExecuteForGnosis(context.Background(), nil))
	require.Empty(t, wallet.sentTxs())
	require.Len(t, batcher.sent, 1)
	calls := batcher.sent[0]
	require.Len(t, calls, 2)
	require.Equal(t, usdc.Address, calls[0].To)
	require.Equal(t, "095ea7b3", hex.EncodeToString(calls[0].Data[:4]))
	require.Equal(t, usdcVault.Address, calls[1].To)
	require.Equal(t, 2, batcher.polls)
	require.Equal(t, types.TxSuccess, v.Snapshot().DepositStatus)
}

func TestVanillaGnosisBatchCancelled(t *testing.T) {
	wallet := newFakeWallet(137)
	wallet.safe = true
	deps := testDeps(wallet)
	deps.Batcher = &fakeBatcher{states: []client.BatchState{client.BatchPending, client.BatchCancelled}}
	alerter := &fakeAlerter{}
	deps.Alerter = alerter

	v := NewVanilla(deps)
	v.Update(vanillaDeposit(1000))

	err := v.OnExecuteForGnosis(context.Background(), nil)
	require.ErrorIs(t, err, ErrBatchFailed)
	require.Equal(t, types.TxError, v.Snapshot().DepositStatus)
	require.Equal(t, []string{err.Error()}, alerter.messages)
}

func TestVanillaUpdateResetsState(t *testing.T) {
	wallet := newFakeWallet(137)
	deps := testDeps(wallet)
	deps.Permits = &fakePermits{supported: true}

	v := NewVanilla(deps)
	v.Update(vanillaDeposit(1000))
	require.NoError(t, v.OnApprove(context.Background(), nil))
	require.True(t, v.Snapshot().HasPermit)

	// same inputs keep the permit
	v.Update(vanillaDeposit(1000))
	require.True(t, v.Snapshot().HasPermit)

	v.Update(vanillaDeposit(2000))
	s := v.Snapshot()
	require.False(t, s.HasPermit)
	require.True(t, s.Allowance.IsZero())
	require.Equal(t, types.TxNone, s.ApprovalStatus)
	require.False(t, s.IsDisabled)
}
