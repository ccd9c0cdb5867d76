package solver

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"vault-zap/pkg/chain"
	"vault-zap/pkg/classifier"
	"vault-zap/pkg/types"
)

// vanillaPermitValidity is how long router permits stay valid
const vanillaPermitValidity = 60 * 60

// Vanilla deposits into and withdraws from a vault directly. V3 vaults can be
// entered through the router with a permit instead of an approval.
type Vanilla struct {
	base
}

// NewVanilla creates the direct vault solver
func NewVanilla(deps Deps) *Vanilla {
	return &Vanilla{base: newBase(classifier.Vanilla, deps)}
}

func (v *Vanilla) Update(req Request) {
	v.update(req, nil)
}

// Snapshot reports withdrawals as approved: burning shares needs no allowance
func (v *Vanilla) Snapshot() Snapshot {
	s := v.snapshot(nil)
	if v.request().Action == Withdraw {
		s.IsApproved = true
	}
	return s
}

func (v *Vanilla) isIdle(req Request) bool {
	return req.Input.Amount == "" || req.Vault == nil || req.Input.Token == nil || req.IsZapNeeded || req.IsBridgeNeeded
}

// Refresh reads the vault allowance. Withdrawals burn shares and need none.
func (v *Vanilla) Refresh(ctx context.Context) {
	req := v.request()
	if req.Action == Withdraw || v.isIdle(req) {
		return
	}
	v.refreshAllowance(ctx, false)
}

func (v *Vanilla) allowanceKey(req Request) string {
	return AllowanceKey(req.Input.Token.ChainID, req.Input.Token.Address, req.Vault.Address, v.deps.Wallet.Address())
}

// refreshAllowance reads the allowance of the vault over the input token,
// from the cache unless force is set
func (v *Vanilla) refreshAllowance(ctx context.Context, force bool) {
	req, gen := v.begin(&v.allowanceGen, nil)
	if req.Action == Withdraw || req.Input.Token == nil || req.Vault == nil || req.Input.Token.IsNative() {
		v.commitAllowance(gen, types.ZeroNormalizedBN())
		return
	}

	key := v.allowanceKey(req)
	if force {
		v.deps.Cache.Invalidate(key)
	} else if cached, ok := v.deps.Cache.Get(key); ok {
		v.commitAllowance(gen, cached)
		return
	}

	v.setFetchingAllowance(true)
	allowance, err := v.readAllowance(ctx, *req.Input.Token, req.Vault.Address)
	if err != nil {
		v.logger.Warn().Err(err).Msg("failed to read allowance")
		v.commitAllowance(gen, types.ZeroNormalizedBN())
		return
	}
	if v.commitAllowance(gen, allowance) {
		v.deps.Cache.Set(key, allowance)
	}
}

func (v *Vanilla) canUsePermit(ctx context.Context, req Request) (common.Address, bool) {
	if !v.deps.Settings.WithPermit || v.deps.Wallet.IsSafe() || v.deps.Permits == nil || v.deps.Routers == nil {
		return common.Address{}, false
	}
	if !req.Vault.IsV3() {
		return common.Address{}, false
	}
	router, ok := v.deps.Routers.RouterAddress(req.Input.Token.ChainID)
	if !ok || router == (common.Address{}) {
		return common.Address{}, false
	}
	if !v.deps.Permits.IsPermitSupported(ctx, req.Input.Token.ChainID, req.Input.Token.Address) {
		return common.Address{}, false
	}
	return router, true
}

// OnApprove signs a router permit when the token and vault allow it, and
// sends an approve for the exact amount otherwise. Withdrawals have nothing
// to approve.
func (v *Vanilla) OnApprove(ctx context.Context, onSuccess func()) error {
	req := v.request()
	if req.Input.Token == nil {
		return preconditionf("input token is not set")
	}
	if req.Vault == nil {
		return preconditionf("vault is not set")
	}
	if req.Action == Withdraw {
		v.setApprovalStatus(types.TxSuccess)
		call(onSuccess)
		return nil
	}
	token := *req.Input.Token
	amount := req.SpendAmount()

	if router, ok := v.canUsePermit(ctx, req); ok {
		v.setApprovalStatus(types.TxPending)
		if err := v.ensureChain(ctx, token.ChainID); err != nil {
			v.setApprovalStatus(types.TxError)
			return v.fail(err)
		}
		permit, err := v.deps.Permits.SignPermit(ctx, chain.PermitRequest{
			ChainID:  token.ChainID,
			Token:    token.Address,
			Owner:    v.deps.Wallet.Address(),
			Spender:  router,
			Value:    amount,
			Deadline: big.NewInt(v.deps.Now().Unix() + vanillaPermitValidity),
		})
		if err != nil || permit == nil || len(permit.Signature) == 0 {
			v.consumePermit()
			v.setApprovalStatus(types.TxError)
			return v.fail(fmt.Errorf("%w: %v", ErrPermitRejected, err))
		}
		v.storePermit(permit, req.Input.NormalizedAmount)
		v.deps.Cache.Invalidate(v.allowanceKey(req))
		v.setApprovalStatus(types.TxSuccess)
		call(onSuccess)
		return nil
	}

	v.setApprovalStatus(types.TxPending)
	if err := v.approve(ctx, token.ChainID, token.Address, req.Vault.Address, amount); err != nil {
		v.setApprovalStatus(types.TxError)
		return v.fail(err)
	}
	v.refreshAllowance(ctx, true)
	v.setApprovalStatus(types.TxSuccess)
	call(onSuccess)
	return nil
}

// OnExecuteDeposit deposits through the router when a permit is stored and
// straight into the vault otherwise
func (v *Vanilla) OnExecuteDeposit(ctx context.Context, onSuccess func()) error {
	req := v.request()
	if req.Vault == nil {
		return preconditionf("vault is not set")
	}
	if req.Input.Token == nil {
		return preconditionf("input token is not set")
	}
	token := *req.Input.Token
	amount := req.SpendAmount()

	v.setDepositStatus(types.TxPending)
	defer v.consumePermit()

	var (
		tx  types.TxRequest
		err error
	)
	permit := v.currentPermit()
	if permit != nil {
		router, ok := v.deps.Routers.RouterAddress(token.ChainID)
		if !ok {
			v.setDepositStatus(types.TxError)
			return v.fail(preconditionf("no router on chain %d", token.ChainID))
		}
		tx = types.TxRequest{ChainID: token.ChainID, To: router}
		tx.Data, err = chain.PackRouterPermitDeposit(token.Address, req.Vault.Address, v.deps.Wallet.Address(), amount, *permit)
	} else {
		tx = types.TxRequest{ChainID: token.ChainID, To: req.Vault.Address}
		tx.Data, err = chain.PackVaultDeposit(*req.Vault, amount, v.deps.Wallet.Address())
	}
	if err != nil {
		v.setDepositStatus(types.TxError)
		return v.fail(err)
	}

	hash, _, err := v.sendAndWait(ctx, tx, v.deps.ReceiptTimeout)
	if permit == nil {
		v.refreshAllowance(ctx, true)
	}
	if err != nil {
		v.setDepositStatus(types.TxError)
		return v.fail(err)
	}

	v.logger.Info().Str("hash", hash.Hex()).Bool("permit", permit != nil).Msg("deposit executed")
	v.setDepositStatus(types.TxSuccess)
	call(onSuccess)
	return nil
}

// OnExecuteWithdraw redeems shares. V3 vaults accept a loss of at most 1 basis point.
func (v *Vanilla) OnExecuteWithdraw(ctx context.Context, onSuccess func()) error {
	req := v.request()
	if req.Input.Token == nil {
		return preconditionf("input token is not set")
	}
	if req.Input.Amount == "" {
		return preconditionf("input amount is not set")
	}
	if req.Vault == nil {
		return preconditionf("vault not found")
	}

	v.setWithdrawStatus(types.TxPending)
	defer v.consumePermit()
	tx, err := v.withdrawTx(req)
	if err != nil {
		v.setWithdrawStatus(types.TxError)
		return v.fail(err)
	}

	hash, _, err := v.sendAndWait(ctx, tx, v.deps.ReceiptTimeout)
	if err != nil {
		v.setWithdrawStatus(types.TxError)
		return v.fail(err)
	}

	v.logger.Info().Str("hash", hash.Hex()).Msg("withdraw executed")
	v.setWithdrawStatus(types.TxSuccess)
	call(onSuccess)
	return nil
}

func (v *Vanilla) withdrawTx(req Request) (types.TxRequest, error) {
	owner := v.deps.Wallet.Address()
	tx := types.TxRequest{ChainID: req.Vault.ChainID, To: req.Vault.Address}

	var err error
	if req.Vault.IsV3() {
		tx.Data, err = chain.PackRedeem(req.SpendAmount(), owner, owner, big.NewInt(1))
	} else {
		tx.Data, err = chain.PackWithdrawShares(req.SpendAmount())
	}
	return tx, err
}

// OnExecuteForGnosis submits approve and deposit as one Safe batch, or the
// withdraw call alone, and waits for the batch to execute
func (v *Vanilla) OnExecuteForGnosis(ctx context.Context, onSuccess func()) error {
	req := v.request()
	if req.Vault == nil {
		return preconditionf("vault is not set")
	}
	if req.Input.Token == nil {
		return preconditionf("input token is not set")
	}

	setStatus := v.setDepositStatus
	if req.Action == Withdraw {
		setStatus = v.setWithdrawStatus
	}
	setStatus(types.TxPending)
	defer v.consumePermit()

	calls, err := v.gnosisCalls(req)
	if err != nil {
		setStatus(types.TxError)
		return v.fail(err)
	}

	safeTxHash, status, err := v.sendBatch(ctx, req.Vault.ChainID, calls)
	if err != nil {
		setStatus(types.TxError)
		return v.fail(err)
	}

	v.logger.Info().Str("safeTxHash", safeTxHash).Str("txHash", status.TxHash).Msg("batch executed")
	setStatus(types.TxSuccess)
	call(onSuccess)
	return nil
}

func (v *Vanilla) gnosisCalls(req Request) ([]types.BatchCall, error) {
	if req.Action == Withdraw {
		tx, err := v.withdrawTx(req)
		if err != nil {
			return nil, err
		}
		return []types.BatchCall{{To: tx.To, Data: tx.Data}}, nil
	}

	amount := req.SpendAmount()
	approveData, err := chain.PackApprove(req.Vault.Address, amount)
	if err != nil {
		return nil, err
	}
	depositData, err := chain.PackVaultDeposit(*req.Vault, amount, v.deps.Wallet.Address())
	if err != nil {
		return nil, err
	}
	return []types.BatchCall{
		{To: req.Input.Token.Address, Data: approveData},
		{To: req.Vault.Address, Data: depositData},
	}, nil
}
