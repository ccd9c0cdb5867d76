package solver

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"vault-zap/pkg/chain"
	"vault-zap/pkg/classifier"
	"vault-zap/pkg/client"
	"vault-zap/pkg/metrics"
	"vault-zap/pkg/types"
)

const (
	stableSlippage   = "0.1"
	volatileSlippage = "0.5"
)

// Portals swaps the input token into the vault (or out of it) on a single
// chain through the Portals router.
type Portals struct {
	base

	quote    *client.PortalsEstimate
	approval *client.PortalsApproval
}

// NewPortals creates the same chain zap solver
func NewPortals(deps Deps) *Portals {
	return &Portals{base: newBase(classifier.Portals, deps)}
}

func (p *Portals) Update(req Request) {
	p.update(req, func() {
		p.quote = nil
		p.approval = nil
	})
}

func (p *Portals) Snapshot() Snapshot {
	p.mu.Lock()
	quote := p.quote
	p.mu.Unlock()

	s := p.snapshot(quote)
	s.WithdrawStatus = s.DepositStatus
	return s
}

// Quote returns the last committed estimate
func (p *Portals) Quote() *client.PortalsEstimate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quote
}

func (p *Portals) isIdle(req Request) bool {
	return !req.IsZapNeeded || req.IsBridgeNeeded || req.Input.Token == nil || req.OutputAddress() == nil || req.SpendAmount().Sign() == 0
}

// Refresh fetches an estimate and then the allowance of the Portals spender
func (p *Portals) Refresh(ctx context.Context) {
	if p.isIdle(p.request()) {
		return
	}
	p.refreshQuote(ctx)
	p.refreshAllowance(ctx, false)
}

// slippage is tighter when the swap ends in a stablecoin
func (p *Portals) slippage(req Request) string {
	if p.deps.Stablecoins == nil {
		return volatileSlippage
	}
	target := req.Output
	if req.Action == Deposit && req.Vault != nil {
		target = &req.Vault.Token
	}
	if target != nil && p.deps.Stablecoins.IsStablecoin(target.ChainID, target.Address) {
		return stableSlippage
	}
	return volatileSlippage
}

func (p *Portals) refreshQuote(ctx context.Context) {
	req, gen := p.begin(&p.quoteGen, func() { p.isFetchingQuote = true })
	if p.isIdle(req) {
		p.commit(&p.quoteGen, gen, func() { p.isFetchingQuote = false })
		return
	}

	start := time.Now()
	estimate, err := p.deps.Portals.Estimate(ctx, client.PortalsQuoteRequest{
		ChainID:     req.Input.Token.ChainID,
		Sender:      p.deps.Wallet.Address(),
		InputToken:  req.Input.Token.Address,
		OutputToken: *req.OutputAddress(),
		InputAmount: req.SpendAmount(),
		Slippage:    p.slippage(req),
	})
	metrics.QuoteDuration.WithLabelValues(string(p.kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.QuoteRequests.WithLabelValues(string(p.kind), "error").Inc()
		p.logger.Warn().Err(err).Msg("failed to fetch estimate")
		estimate = nil
	} else {
		metrics.QuoteRequests.WithLabelValues(string(p.kind), "success").Inc()
	}

	p.commit(&p.quoteGen, gen, func() {
		p.quote = estimate
		p.isFetchingQuote = false
	})
}

func (p *Portals) allowanceKey(req Request) string {
	return AllowanceKey(req.Input.Token.ChainID, req.Input.Token.Address, *req.OutputAddress(), p.deps.Wallet.Address())
}

// refreshAllowance asks Portals for the approval context of the swap. The
// spender is a Portals contract, so the vault allowance says nothing here.
func (p *Portals) refreshAllowance(ctx context.Context, force bool) {
	req, gen := p.begin(&p.allowanceGen, nil)
	if req.Input.Token == nil || req.OutputAddress() == nil || req.SpendAmount().Sign() == 0 ||
		req.Input.Token.Address == (common.Address{}) || *req.OutputAddress() == (common.Address{}) {
		p.commitAllowance(gen, types.ZeroNormalizedBN())
		return
	}
	if req.Input.Token.IsNative() {
		p.commitAllowance(gen, maxAllowance())
		return
	}

	key := p.allowanceKey(req)
	if force {
		p.deps.Cache.Invalidate(key)
	} else if cached, ok := p.deps.Cache.Get(key); ok {
		p.commitAllowance(gen, cached)
		return
	}

	p.setFetchingAllowance(true)
	approval, err := p.deps.Portals.Approval(ctx, req.Input.Token.ChainID, p.deps.Wallet.Address(), req.Input.Token.Address, req.SpendAmount())
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to fetch approval context")
		p.commitAllowance(gen, types.ZeroNormalizedBN())
		return
	}
	raw, err := approval.AllowanceAmount()
	if err != nil {
		p.logger.Warn().Err(err).Msg("invalid allowance in approval context")
		p.commitAllowance(gen, types.ZeroNormalizedBN())
		return
	}

	allowance := types.ToNormalizedBN(raw, req.Input.Token.Decimals)
	committed := p.commit(&p.allowanceGen, gen, func() {
		p.approval = approval
		p.allowance = allowance
		p.isFetchingAllowance = false
	})
	if committed {
		p.deps.Cache.Set(key, allowance)
	}
}

// approvalContext returns the stored approval context, fetching it if the
// allowance was served from the cache
func (p *Portals) approvalContext(ctx context.Context, req Request) (*client.PortalsApproval, error) {
	p.mu.Lock()
	approval := p.approval
	p.mu.Unlock()
	if approval != nil {
		return approval, nil
	}
	return p.deps.Portals.Approval(ctx, req.Input.Token.ChainID, p.deps.Wallet.Address(), req.Input.Token.Address, req.SpendAmount())
}

// OnApprove signs a permit for the Portals spender when the token and the
// router allow it, and approves the spender on chain otherwise
func (p *Portals) OnApprove(ctx context.Context, onSuccess func()) error {
	req := p.request()
	if req.Input.Token == nil {
		return preconditionf("input token is not set")
	}
	if req.OutputAddress() == nil {
		return preconditionf("output token is not set")
	}
	if req.SpendAmount().Sign() == 0 {
		return preconditionf("input amount is not set")
	}
	token := *req.Input.Token
	amount := req.SpendAmount()

	p.setApprovalStatus(types.TxPending)
	err := p.approveOrPermit(ctx, req, token, amount)
	if err != nil {
		p.consumePermit()
		p.setAllowance(types.ZeroNormalizedBN())
		p.setApprovalStatus(types.TxError)
		return p.fail(err)
	}

	p.setApprovalStatus(types.TxSuccess)
	call(onSuccess)
	return nil
}

func (p *Portals) approveOrPermit(ctx context.Context, req Request, token types.Token, amount *big.Int) error {
	if token.IsNative() {
		return nil
	}
	approval, err := p.approvalContext(ctx, req)
	if err != nil {
		return err
	}
	spender := approval.SpenderAddress()

	if p.deps.Settings.WithPermit && approval.Context.CanPermit && !p.deps.Wallet.IsSafe() && p.deps.Permits != nil &&
		p.deps.Permits.IsPermitSupported(ctx, token.ChainID, token.Address) {
		if err := p.ensureChain(ctx, token.ChainID); err != nil {
			return err
		}
		deadline := p.deps.Now().Unix() + int64(p.deps.Settings.DeadlineMinutes)*60
		permit, err := p.deps.Permits.SignPermit(ctx, chain.PermitRequest{
			ChainID:  token.ChainID,
			Token:    token.Address,
			Owner:    p.deps.Wallet.Address(),
			Spender:  spender,
			Value:    amount,
			Deadline: big.NewInt(deadline),
		})
		if err != nil || permit == nil || len(permit.Signature) == 0 {
			return fmt.Errorf("%w: %v", ErrPermitRejected, err)
		}
		p.storePermit(permit, req.Input.NormalizedAmount)
		p.deps.Cache.Invalidate(p.allowanceKey(req))
		return nil
	}

	current, err := p.readAllowance(ctx, token, spender)
	if err != nil {
		return err
	}
	if !current.Covers(amount) {
		if err := p.approve(ctx, token.ChainID, token.Address, spender, amount); err != nil {
			return err
		}
	}
	p.refreshAllowance(ctx, true)
	return nil
}

func (p *Portals) transaction(ctx context.Context, req Request, validate bool, permit *types.PermitSignature) (*client.PortalsTx, error) {
	txReq := client.PortalsTxRequest{
		PortalsQuoteRequest: client.PortalsQuoteRequest{
			ChainID:     req.Input.Token.ChainID,
			Sender:      p.deps.Wallet.Address(),
			InputToken:  req.Input.Token.Address,
			OutputToken: *req.OutputAddress(),
			InputAmount: req.SpendAmount(),
			Slippage:    p.deps.Settings.Slippage,
		},
		Validate: validate,
	}
	if permit != nil {
		txReq.PermitSignature = hexutil.Encode(permit.Signature)
		txReq.PermitDeadline = permit.Deadline
	}
	return p.deps.Portals.Transaction(ctx, txReq)
}

func (p *Portals) checkExecute(req Request) error {
	if req.Input.Token == nil {
		return preconditionf("input token is not set")
	}
	if req.OutputAddress() == nil {
		return preconditionf("output token is not set")
	}
	if req.SpendAmount().Sign() == 0 {
		return preconditionf("input amount is not set")
	}
	if p.Quote() == nil {
		return preconditionf("no quote available")
	}
	return nil
}

// OnExecuteDeposit builds the swap with Portals, sends it and records a
// successful notification once mined. A stored permit is consumed either way.
func (p *Portals) OnExecuteDeposit(ctx context.Context, onSuccess func()) error {
	req := p.request()
	if err := p.checkExecute(req); err != nil {
		return err
	}

	p.setDepositStatus(types.TxPending)
	defer p.consumePermit()

	tx, err := p.transaction(ctx, req, !p.deps.Wallet.IsSafe(), p.currentPermit())
	if err != nil {
		p.setDepositStatus(types.TxError)
		return p.fail(err)
	}
	txReq, err := tx.TxRequest(req.Input.Token.ChainID)
	if err != nil {
		p.setDepositStatus(types.TxError)
		return p.fail(err)
	}

	hash, block, err := p.sendAndWait(ctx, txReq, p.deps.ReceiptTimeout)
	if err != nil {
		p.setDepositStatus(types.TxError)
		return p.fail(err)
	}

	n := p.notification(req, types.NotificationPortals, types.NotificationSuccess)
	n.TxHash = hash.Hex()
	n.BlockNumber = block
	n.TimeFinished = p.deps.Now().Unix()
	p.record(n)

	p.deps.Cache.Invalidate(p.allowanceKey(req))
	p.logger.Info().Str("hash", hash.Hex()).Msg("swap executed")
	p.setDepositStatus(types.TxSuccess)
	call(onSuccess)
	return nil
}

// OnExecuteWithdraw is a swap out of the vault token and runs the deposit path
func (p *Portals) OnExecuteWithdraw(ctx context.Context, onSuccess func()) error {
	return p.OnExecuteDeposit(ctx, onSuccess)
}

// OnExecuteForGnosis submits approve and swap as one Safe batch and records a
// pending notification tracked by its Safe transaction hash
func (p *Portals) OnExecuteForGnosis(ctx context.Context, onSuccess func()) error {
	req := p.request()
	if err := p.checkExecute(req); err != nil {
		return err
	}
	token := *req.Input.Token

	p.setDepositStatus(types.TxPending)
	defer p.consumePermit()

	tx, err := p.transaction(ctx, req, false, nil)
	if err != nil {
		p.setDepositStatus(types.TxError)
		return p.fail(err)
	}
	txReq, err := tx.TxRequest(token.ChainID)
	if err != nil {
		p.setDepositStatus(types.TxError)
		return p.fail(err)
	}

	var calls []types.BatchCall
	if !token.IsNative() {
		approveData, err := chain.PackApprove(txReq.To, req.SpendAmount())
		if err != nil {
			p.setDepositStatus(types.TxError)
			return p.fail(err)
		}
		calls = append(calls, types.BatchCall{To: token.Address, Data: approveData})
	}
	calls = append(calls, types.BatchCall{To: txReq.To, Value: txReq.Value, Data: txReq.Data})

	if p.deps.Batcher == nil {
		p.setDepositStatus(types.TxError)
		return p.fail(preconditionf("no batch submitter configured"))
	}
	safeTxHash, err := p.deps.Batcher.Send(ctx, token.ChainID, calls)
	if err != nil {
		p.setDepositStatus(types.TxError)
		return p.fail(err)
	}

	n := p.notification(req, types.NotificationPortalsGnosis, types.NotificationPending)
	n.SafeTxHash = safeTxHash
	if block, err := p.deps.Wallet.BlockNumber(ctx, token.ChainID); err == nil {
		n.BlockNumber = block
	} else {
		p.logger.Warn().Err(err).Msg("failed to read block number")
	}
	p.record(n)

	p.logger.Info().Str("safeTxHash", safeTxHash).Int("calls", len(calls)).Msg("batch submitted")
	p.setDepositStatus(types.TxSuccess)
	call(onSuccess)
	return nil
}
