package solver

import (
	"context"
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

// depositGasLimit is the gas forwarded to the vault deposit on the destination chain
const depositGasLimit = "1000000"

// quoteSteps are the percentages of the route minimum tried, in order, as
// the amount to deposit on arrival
var quoteSteps = []int64{100, 99, 98, 97, 95}

// LiFi bridges the input token to the vault chain and deposits it on arrival
// in a single transaction.
type LiFi struct {
	base

	quote *client.LiFiStep
}

// NewLiFi creates the cross chain solver
func NewLiFi(deps Deps) *LiFi {
	return &LiFi{base: newBase(classifier.Lifi, deps)}
}

func (l *LiFi) Update(req Request) {
	l.update(req, func() {
		l.quote = nil
	})
}

func (l *LiFi) Snapshot() Snapshot {
	s := l.snapshot(l.Quote())
	s.WithdrawStatus = s.DepositStatus
	return s
}

// Quote returns the last committed contract calls quote
func (l *LiFi) Quote() *client.LiFiStep {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quote
}

func (l *LiFi) isIdle(req Request) bool {
	return !req.IsBridgeNeeded || req.Input.Token == nil || req.Input.Amount == "" || req.OutputAddress() == nil
}

// Refresh searches a contract calls quote and reads the allowance of its
// approval address
func (l *LiFi) Refresh(ctx context.Context) {
	if l.isIdle(l.request()) {
		return
	}
	l.refreshQuote(ctx)
	l.refreshAllowance(ctx, false)
}

func (l *LiFi) refreshQuote(ctx context.Context) {
	req, gen := l.begin(&l.quoteGen, func() { l.isFetchingQuote = true })
	spend := req.SpendAmount()
	if l.isIdle(req) || req.Vault == nil || spend.Sign() == 0 {
		l.commit(&l.quoteGen, gen, func() { l.isFetchingQuote = false })
		return
	}

	start := time.Now()
	step := l.searchQuote(ctx, req, gen)
	metrics.QuoteDuration.WithLabelValues(string(l.kind)).Observe(time.Since(start).Seconds())

	result := "success"
	if step == nil {
		result = "error"
	}
	// a newer request owns the fetching flag and the quote
	if l.commit(&l.quoteGen, gen, func() {
		l.quote = step
		l.isFetchingQuote = false
	}) {
		metrics.QuoteRequests.WithLabelValues(string(l.kind), result).Inc()
	}
}

// searchQuote asks for the best route, then for contract calls quotes that
// deposit a decreasing share of the route minimum until one fits the spend
// amount. It returns nil when nothing fits or the request went stale.
func (l *LiFi) searchQuote(ctx context.Context, req Request, gen Token) *client.LiFiStep {
	token := *req.Input.Token
	vault := *req.Vault
	owner := l.deps.Wallet.Address()
	spend := req.SpendAmount()

	if l.isStale(&l.quoteGen, gen) {
		return nil
	}
	route, err := l.deps.LiFi.Quote(ctx, client.LiFiQuoteRequest{
		FromChain:   token.ChainID,
		ToChain:     vault.ChainID,
		FromToken:   token.Address,
		ToToken:     vault.Token.Address,
		FromAmount:  spend,
		FromAddress: owner,
	})
	if err != nil {
		l.logger.Warn().Err(err).Msg("no route found")
		return nil
	}
	toAmountMin, ok := new(big.Int).SetString(route.Estimate.ToAmountMin, 10)
	if !ok {
		l.logger.Warn().Str("toAmountMin", route.Estimate.ToAmountMin).Msg("invalid route minimum")
		return nil
	}

	template := client.LiFiContractCallsRequest{
		FromChain:            token.ChainID,
		FromToken:            client.LiFiTokenAddress(token.Address),
		FromAddress:          owner.Hex(),
		ToChain:              vault.ChainID,
		ToToken:              vault.Token.Address.Hex(),
		ContractOutputsToken: vault.Token.Address.Hex(),
	}

	for _, pct := range quoteSteps {
		scaled := new(big.Int).Div(new(big.Int).Mul(big.NewInt(pct), toAmountMin), big.NewInt(100))
		data, err := chain.PackDepositFor(scaled, owner)
		if err != nil {
			l.logger.Warn().Err(err).Msg("failed to encode deposit call")
			return nil
		}

		callsReq := template
		callsReq.ToAmount = scaled.String()
		callsReq.ContractCalls = []client.LiFiContractCall{{
			FromAmount:         scaled.String(),
			FromTokenAddress:   vault.Token.Address.Hex(),
			ToTokenAddress:     vault.Address.Hex(),
			ToContractAddress:  vault.Address.Hex(),
			ToContractGasLimit: depositGasLimit,
			ToContractCallData: hexutil.Encode(data),
		}}

		if l.isStale(&l.quoteGen, gen) {
			return nil
		}
		step, err := l.deps.LiFi.ContractCallsQuote(ctx, callsReq)
		if err != nil {
			l.logger.Debug().Err(err).Int64("step", pct).Msg("no contract calls route")
			continue
		}
		if l.isStale(&l.quoteGen, gen) {
			return nil
		}

		fromAmount, ok := new(big.Int).SetString(step.Estimate.FromAmount, 10)
		if !ok || fromAmount.Cmp(spend) > 0 {
			continue
		}
		step.Estimate.ToAmountMin = toAmountMin.String()
		step.Estimate.ToAmount = toAmountMin.String()
		return step
	}

	l.logger.Warn().Str("spend", spend.String()).Msg("no contract calls route fits the spend amount")
	return nil
}

func (l *LiFi) allowanceKey(req Request, spender common.Address) string {
	return AllowanceKey(req.Input.Token.ChainID, req.Input.Token.Address, spender, l.deps.Wallet.Address())
}

// refreshAllowance reads the allowance of the quote approval address, from
// the cache unless force is set
func (l *LiFi) refreshAllowance(ctx context.Context, force bool) {
	req, gen := l.begin(&l.allowanceGen, nil)
	quote := l.Quote()
	if quote == nil || req.Input.Token == nil || req.OutputAddress() == nil || req.SpendAmount().Sign() == 0 {
		l.commitAllowance(gen, types.ZeroNormalizedBN())
		return
	}
	if req.Input.Token.IsNative() {
		l.commitAllowance(gen, maxAllowance())
		return
	}

	spender := common.HexToAddress(quote.Estimate.ApprovalAddress)
	key := l.allowanceKey(req, spender)
	if force {
		l.deps.Cache.Invalidate(key)
	} else if cached, ok := l.deps.Cache.Get(key); ok {
		l.commitAllowance(gen, cached)
		return
	}

	l.setFetchingAllowance(true)
	allowance, err := l.readAllowance(ctx, *req.Input.Token, spender)
	if err != nil {
		l.logger.Warn().Err(err).Msg("failed to read allowance")
		l.commitAllowance(gen, types.ZeroNormalizedBN())
		return
	}
	if l.commitAllowance(gen, allowance) {
		l.deps.Cache.Set(key, allowance)
	}
}

// OnApprove approves the quote approval address for the exact spend amount
func (l *LiFi) OnApprove(ctx context.Context, onSuccess func()) error {
	req := l.request()
	if req.Input.Token == nil {
		return preconditionf("input token is not set")
	}
	if req.SpendAmount().Sign() == 0 {
		return preconditionf("input amount is not set")
	}
	quote := l.Quote()
	if quote == nil {
		return preconditionf("quote is not fetched")
	}
	token := *req.Input.Token

	l.setApprovalStatus(types.TxPending)
	if !token.IsNative() {
		spender := common.HexToAddress(quote.Estimate.ApprovalAddress)
		if err := l.approve(ctx, token.ChainID, token.Address, spender, req.SpendAmount()); err != nil {
			l.setApprovalStatus(types.TxError)
			return l.fail(err)
		}
	}
	l.refreshAllowance(ctx, true)
	l.setApprovalStatus(types.TxSuccess)
	call(onSuccess)
	return nil
}

func (l *LiFi) checkExecute(req Request) (*client.LiFiStep, error) {
	if req.Input.Token == nil {
		return nil, preconditionf("input token is not set")
	}
	if req.OutputAddress() == nil {
		return nil, preconditionf("output token is not set")
	}
	quote := l.Quote()
	if quote == nil {
		return nil, preconditionf("quote is not set")
	}
	return quote, nil
}

// forgetAllowance drops the cached allowance a bridge transaction spent
func (l *LiFi) forgetAllowance(req Request, quote *client.LiFiStep) {
	if req.Input.Token.IsNative() {
		return
	}
	l.deps.Cache.Invalidate(l.allowanceKey(req, common.HexToAddress(quote.Estimate.ApprovalAddress)))
}

// pendingNotification records a bridge in flight, expected to land after the
// estimated execution duration
func (l *LiFi) pendingNotification(req Request, quote *client.LiFiStep, txHash string, block uint64) {
	n := l.notification(req, types.NotificationLifi, types.NotificationPending)
	n.TxHash = txHash
	n.BlockNumber = block
	n.TimeFinished = l.deps.Now().Add(time.Duration(quote.Estimate.ExecutionDuration * float64(time.Second))).Unix()
	l.record(n)
}

// OnExecuteDeposit sends the bridge transaction from the quote. Settlement on
// the destination chain is asynchronous, so the notification starts pending.
func (l *LiFi) OnExecuteDeposit(ctx context.Context, onSuccess func()) error {
	req := l.request()
	quote, err := l.checkExecute(req)
	if err != nil {
		return err
	}

	l.setDepositStatus(types.TxPending)
	tx, err := quote.TxRequest()
	if err != nil {
		l.setDepositStatus(types.TxError)
		return l.fail(err)
	}

	hash, block, err := l.sendAndWait(ctx, tx, l.deps.ReceiptTimeout)
	l.forgetAllowance(req, quote)
	if err != nil {
		l.setDepositStatus(types.TxError)
		return l.fail(err)
	}

	l.pendingNotification(req, quote, hash.Hex(), block)
	l.logger.Info().Str("hash", hash.Hex()).Uint64("toChain", req.OutputChainID()).Msg("bridge submitted")
	l.setDepositStatus(types.TxSuccess)
	call(onSuccess)
	return nil
}

// OnExecuteWithdraw runs the deposit path; withdrawals never bridge
func (l *LiFi) OnExecuteWithdraw(ctx context.Context, onSuccess func()) error {
	return l.OnExecuteDeposit(ctx, onSuccess)
}

// OnExecuteForGnosis submits approve and bridge as one Safe batch, waits for
// it to execute and records the bridge as pending
func (l *LiFi) OnExecuteForGnosis(ctx context.Context, onSuccess func()) error {
	req := l.request()
	quote, err := l.checkExecute(req)
	if err != nil {
		return err
	}
	token := *req.Input.Token

	l.setDepositStatus(types.TxPending)
	tx, err := quote.TxRequest()
	if err != nil {
		l.setDepositStatus(types.TxError)
		return l.fail(err)
	}

	var calls []types.BatchCall
	if !token.IsNative() {
		approveData, err := chain.PackApprove(common.HexToAddress(quote.Estimate.ApprovalAddress), req.SpendAmount())
		if err != nil {
			l.setDepositStatus(types.TxError)
			return l.fail(err)
		}
		calls = append(calls, types.BatchCall{To: token.Address, Data: approveData})
	}
	calls = append(calls, types.BatchCall{To: tx.To, Value: tx.Value, Data: tx.Data})

	safeTxHash, status, err := l.sendBatch(ctx, tx.ChainID, calls)
	l.forgetAllowance(req, quote)
	if err != nil {
		l.setDepositStatus(types.TxError)
		return l.fail(err)
	}

	l.pendingNotification(req, quote, status.TxHash, 0)
	l.logger.Info().Str("safeTxHash", safeTxHash).Str("txHash", status.TxHash).Msg("bridge batch executed")
	l.setDepositStatus(types.TxSuccess)
	call(onSuccess)
	return nil
}
