package solver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"vault-zap/pkg/chain"
	"vault-zap/pkg/classifier"
	"vault-zap/pkg/client"
	"vault-zap/pkg/metrics"
	"vault-zap/pkg/types"
)

// base holds the state every solver tracks. Fields are guarded by mu and
// never accessed while waiting on I/O.
type base struct {
	kind   classifier.Kind
	deps   Deps
	logger zerolog.Logger

	mu                  sync.Mutex
	req                 Request
	fingerprint         string
	allowance           types.NormalizedBN
	permit              *types.PermitSignature
	isFetchingAllowance bool
	isFetchingQuote     bool
	approvalStatus      types.TxStatus
	depositStatus       types.TxStatus
	withdrawStatus      types.TxStatus

	quoteGen     Generation
	allowanceGen Generation
}

func newBase(kind classifier.Kind, deps Deps) base {
	deps.withDefaults()
	return base{
		kind:           kind,
		deps:           deps,
		logger:         deps.Logger.With().Str("solver", string(kind)).Logger(),
		allowance:      types.ZeroNormalizedBN(),
		approvalStatus: types.TxNone,
		depositStatus:  types.TxNone,
		withdrawStatus: types.TxNone,
	}
}

func (b *base) Kind() classifier.Kind {
	return b.kind
}

// update stores the request and, when it targets different inputs, drops
// everything computed for the previous one, running reset under the same
// lock. It returns true on change.
func (b *base) update(req Request, reset func()) bool {
	fp := req.Fingerprint()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.req = req
	if fp == b.fingerprint {
		return false
	}
	b.fingerprint = fp
	b.quoteGen.Invalidate()
	b.allowanceGen.Invalidate()
	b.allowance = types.ZeroNormalizedBN()
	b.permit = nil
	b.isFetchingAllowance = false
	b.isFetchingQuote = false
	b.approvalStatus = types.TxNone
	b.depositStatus = types.TxNone
	b.withdrawStatus = types.TxNone
	if reset != nil {
		reset()
	}
	return true
}

func (b *base) request() Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.req
}

func (b *base) snapshot(quote interface{}) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Kind:                b.kind,
		Quote:               quote,
		Allowance:           b.allowance,
		IsApproved:          b.allowance.Covers(b.req.SpendAmount()),
		IsDisabled:          !b.approvalStatus.IsNone(),
		IsFetchingAllowance: b.isFetchingAllowance,
		IsFetchingQuote:     b.isFetchingQuote,
		HasPermit:           b.permit != nil,
		ApprovalStatus:      b.approvalStatus,
		DepositStatus:       b.depositStatus,
		WithdrawStatus:      b.withdrawStatus,
	}
}

func (b *base) setApprovalStatus(s types.TxStatus) {
	b.mu.Lock()
	b.approvalStatus = s
	b.mu.Unlock()
	b.countTx("approve", s)
}

func (b *base) setDepositStatus(s types.TxStatus) {
	b.mu.Lock()
	b.depositStatus = s
	b.mu.Unlock()
	b.countTx("deposit", s)
}

func (b *base) setWithdrawStatus(s types.TxStatus) {
	b.mu.Lock()
	b.withdrawStatus = s
	b.mu.Unlock()
	b.countTx("withdraw", s)
}

func (b *base) countTx(operation string, s types.TxStatus) {
	if s.IsSuccess() || s.IsError() {
		metrics.Transactions.WithLabelValues(string(b.kind), operation, string(s)).Inc()
	}
}

func (b *base) setAllowance(a types.NormalizedBN) {
	b.mu.Lock()
	b.allowance = a
	b.mu.Unlock()
}

func (b *base) setFetchingAllowance(v bool) {
	b.mu.Lock()
	b.isFetchingAllowance = v
	b.mu.Unlock()
}

func (b *base) storePermit(p *types.PermitSignature, allowance types.NormalizedBN) {
	b.mu.Lock()
	b.permit = p
	b.allowance = allowance
	b.mu.Unlock()
	metrics.PermitsSigned.WithLabelValues(string(b.kind)).Inc()
}

func (b *base) currentPermit() *types.PermitSignature {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.permit
}

// consumePermit drops a stored permit and zeroes the allowance it stood for.
// Permits are single use, so this runs after every execute attempt.
func (b *base) consumePermit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.permit == nil {
		return
	}
	b.permit = nil
	b.allowance = types.ZeroNormalizedBN()
}

// begin issues a new token on g together with the request it was issued
// for. fn runs under the same lock.
func (b *base) begin(g *Generation, fn func()) (Request, Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := g.Next()
	if fn != nil {
		fn()
	}
	return b.req, t
}

// commit runs fn under the state lock if t is still the live token of g
func (b *base) commit(g *Generation, t Token, fn func()) bool {
	b.mu.Lock()
	ok := g.IsCurrent(t)
	if ok {
		fn()
	}
	b.mu.Unlock()

	if !ok {
		b.dropStale()
	}
	return ok
}

// isStale checks t between asynchronous steps
func (b *base) isStale(g *Generation, t Token) bool {
	if g.IsCurrent(t) {
		return false
	}
	b.dropStale()
	return true
}

func (b *base) dropStale() {
	metrics.StaleResponses.WithLabelValues(string(b.kind)).Inc()
	b.logger.Debug().Msg("dropping stale response")
}

// commitAllowance stores a fetched allowance unless a newer fetch was issued
func (b *base) commitAllowance(t Token, a types.NormalizedBN) bool {
	return b.commit(&b.allowanceGen, t, func() {
		b.allowance = a
		b.isFetchingAllowance = false
	})
}

// fail shows a user facing message for err. Precondition failures are
// programmer errors and are only logged.
func (b *base) fail(err error) error {
	b.logger.Error().Err(err).Msg("operation failed")
	if errors.Is(err, ErrPrecondition) {
		return err
	}
	b.deps.Alerter.Error(UserMessage(err))
	return err
}

// UserMessage extracts the message to show for an error
func UserMessage(err error) string {
	var portalsErr *client.PortalsError
	if errors.As(err, &portalsErr) && portalsErr.Message != "" {
		return portalsErr.Message
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.Error() != "" {
		return rpcErr.Error()
	}
	if errors.Is(err, ErrBatchFailed) || errors.Is(err, ErrPermitRejected) || errors.Is(err, ErrReverted) {
		return err.Error()
	}
	return GenericErrorMessage
}

// ensureChain switches the wallet to chainID if needed
func (b *base) ensureChain(ctx context.Context, chainID uint64) error {
	if b.deps.Wallet.ChainID() == chainID {
		return nil
	}
	if err := b.deps.Wallet.SwitchChain(ctx, chainID); err != nil {
		return fmt.Errorf("failed to switch chain: %w", err)
	}
	return nil
}

// sendAndWait submits a transaction and waits for a successful receipt
func (b *base) sendAndWait(ctx context.Context, req types.TxRequest, timeout time.Duration) (common.Hash, uint64, error) {
	if err := b.ensureChain(ctx, req.ChainID); err != nil {
		return common.Hash{}, 0, err
	}
	hash, err := b.deps.Wallet.SendTransaction(ctx, req)
	if err != nil {
		return common.Hash{}, 0, err
	}
	receipt, err := b.deps.Wallet.WaitForReceipt(ctx, req.ChainID, hash, timeout)
	if err != nil {
		return hash, 0, err
	}
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != 1 {
		return hash, block, fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
	}
	return hash, block, nil
}

// approve sends an ERC-20 approve for amount and waits for it
func (b *base) approve(ctx context.Context, chainID uint64, token, spender common.Address, amount *big.Int) error {
	data, err := chain.PackApprove(spender, amount)
	if err != nil {
		return err
	}
	_, _, err = b.sendAndWait(ctx, types.TxRequest{ChainID: chainID, To: token, Data: data}, b.deps.ReceiptTimeout)
	return err
}

// readAllowance reads an ERC-20 allowance on chain
func (b *base) readAllowance(ctx context.Context, token types.Token, spender common.Address) (types.NormalizedBN, error) {
	raw, err := chain.ReadAllowance(ctx, b.deps.Wallet, token.ChainID, token.Address, b.deps.Wallet.Address(), spender)
	if err != nil {
		return types.ZeroNormalizedBN(), err
	}
	return types.ToNormalizedBN(raw, token.Decimals), nil
}

// sendBatch submits calls as one Safe transaction and waits until it is
// executed. Cancelled and failed batches return ErrBatchFailed.
func (b *base) sendBatch(ctx context.Context, chainID uint64, calls []types.BatchCall) (string, client.BatchStatus, error) {
	if b.deps.Batcher == nil {
		return "", client.BatchStatus{}, preconditionf("no batch submitter configured")
	}
	safeTxHash, err := b.deps.Batcher.Send(ctx, chainID, calls)
	if err != nil {
		return "", client.BatchStatus{}, err
	}
	status, err := WaitForBatch(ctx, b.deps.Batcher, chainID, safeTxHash, b.deps.PollInterval)
	return safeTxHash, status, err
}

// WaitForBatch polls a Safe batch until it succeeds, fails or is cancelled
func WaitForBatch(ctx context.Context, batcher Batcher, chainID uint64, safeTxHash string, interval time.Duration) (client.BatchStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := batcher.Status(ctx, chainID, safeTxHash)
		if err != nil {
			return client.BatchStatus{}, err
		}
		switch status.State {
		case client.BatchSuccess:
			return status, nil
		case client.BatchFailed, client.BatchCancelled:
			return status, fmt.Errorf("%w: %s", ErrBatchFailed, status.State)
		}

		select {
		case <-ctx.Done():
			return client.BatchStatus{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// notification prefills a ledger entry describing req
func (b *base) notification(req Request, typ types.NotificationType, status types.NotificationStatus) types.Notification {
	n := types.Notification{
		From:        b.deps.Wallet.Address(),
		FromAmount:  req.Input.NormalizedAmount.Display,
		ToChainID:   req.OutputChainID(),
		ToTokenName: req.OutputSymbol(),
		Status:      status,
		Type:        typ,
	}
	if req.Input.Token != nil {
		n.FromAddress = req.Input.Token.Address
		n.FromChainID = req.Input.Token.ChainID
		n.FromTokenName = req.Input.Token.Symbol
	}
	if out := req.OutputAddress(); out != nil {
		n.ToAddress = *out
	}
	return n
}

// record persists n. A failing store never fails the transfer itself.
func (b *base) record(n types.Notification) {
	if b.deps.Recorder == nil {
		return
	}
	saved, err := b.deps.Recorder.Add(n)
	if err != nil {
		b.logger.Warn().Err(err).Str("type", string(n.Type)).Msg("failed to record notification")
		return
	}
	b.logger.Debug().Int64("id", saved.ID).Str("status", string(saved.Status)).Msg("notification recorded")
}

func maxAllowance() types.NormalizedBN {
	return types.ToNormalizedBN(types.MaxUint256, 18)
}

func call(onSuccess func()) {
	if onSuccess != nil {
		onSuccess()
	}
}
