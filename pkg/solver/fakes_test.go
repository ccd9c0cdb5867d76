package solver

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"vault-zap/pkg/chain"
	"vault-zap/pkg/client"
	"vault-zap/pkg/types"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	usdc      = types.Token{Address: common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"), ChainID: 137, Symbol: "USDC", Decimals: 6}
	usdt      = types.Token{Address: common.HexToAddress("0xc2132D05D31c914a87C6611C10748AEb04B58e8F"), ChainID: 137, Symbol: "USDT", Decimals: 6}
	baseETH   = types.Token{Address: types.NativeTokenAddress, ChainID: 8453, Symbol: "ETH", Decimals: 18}
	weth      = types.Token{Address: common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619"), ChainID: 137, Symbol: "WETH", Decimals: 18}
	routerV3  = common.HexToAddress("0x1112dbcf805682e828606f74ab717abf4b4fd8de")
	usdcVault = types.Vault{
		Address:  common.HexToAddress("0x00000000000000000000000000000000000000f1"),
		ChainID:  137,
		Symbol:   "yvUSDC",
		Decimals: 6,
		Version:  "3.0.2",
		Token:    usdc,
	}
	wethVault = types.Vault{
		Address:  common.HexToAddress("0x00000000000000000000000000000000000000f2"),
		ChainID:  137,
		Symbol:   "yvWETH",
		Decimals: 18,
		Version:  "3.0.2",
		Token:    weth,
	}
)

var approveSelector = []byte{0x09, 0x5e, 0xa7, 0xb3}

func input(token types.Token, raw int64) types.AssetInput {
	in := types.NewInput()
	in.Token = &token
	in.NormalizedAmount = types.ToNormalizedBN(big.NewInt(raw), token.Decimals)
	in.Amount = in.NormalizedAmount.Display
	return in
}

type fakeWallet struct {
	mu            sync.Mutex
	address       common.Address
	chainID       uint64
	safe          bool
	sent          []types.TxRequest
	sendErr       error
	receiptStatus uint64
	block         uint64
	switches      []uint64
	// allowances by spender, updated by approve transactions
	allowances    map[common.Address]*big.Int
}

func newFakeWallet(chainID uint64) *fakeWallet {
	return &fakeWallet{
		address:       owner,
		chainID:       chainID,
		receiptStatus: 1,
		block:         100,
		allowances:    make(map[common.Address]*big.Int),
	}
}

func (w *fakeWallet) Address() common.Address { return w.address }

func (w *fakeWallet) ChainID() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID
}

func (w *fakeWallet) IsSafe() bool { return w.safe }

func (w *fakeWallet) SwitchChain(_ context.Context, chainID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chainID = chainID
	w.switches = append(w.switches, chainID)
	return nil
}

func (w *fakeWallet) SendTransaction(_ context.Context, req types.TxRequest) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sendErr != nil {
		return common.Hash{}, w.sendErr
	}
	w.sent = append(w.sent, req)
	if bytes.HasPrefix(req.Data, approveSelector) && len(req.Data) >= 68 {
		spender := common.BytesToAddress(req.Data[4:36])
		w.allowances[spender] = new(big.Int).SetBytes(req.Data[36:68])
	}
	return common.BigToHash(big.NewInt(int64(len(w.sent)))), nil
}

func (w *fakeWallet) WaitForReceipt(_ context.Context, _ uint64, hash common.Hash, _ time.Duration) (*gethtypes.Receipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return &gethtypes.Receipt{Status: w.receiptStatus, TxHash: hash, BlockNumber: new(big.Int).SetUint64(w.block)}, nil
}

func (w *fakeWallet) CallContract(_ context.Context, _ uint64, msg ethereum.CallMsg) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(msg.Data) < 68 {
		return nil, errors.New("unexpected call")
	}
	spender := common.BytesToAddress(msg.Data[36:68])
	allowance, ok := w.allowances[spender]
	if !ok {
		allowance = big.NewInt(0)
	}
	return common.LeftPadBytes(allowance.Bytes(), 32), nil
}

func (w *fakeWallet) BlockNumber(context.Context, uint64) (uint64, error) {
	return w.block, nil
}

func (w *fakeWallet) allowance(spender common.Address) *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if a, ok := w.allowances[spender]; ok {
		return new(big.Int).Set(a)
	}
	return big.NewInt(0)
}

func (w *fakeWallet) sentTxs() []types.TxRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]types.TxRequest{}, w.sent...)
}

type fakePermits struct {
	supported bool
	err       error
	requests  []chain.PermitRequest
}

func (p *fakePermits) IsPermitSupported(context.Context, uint64, common.Address) bool {
	return p.supported
}

func (p *fakePermits) SignPermit(_ context.Context, req chain.PermitRequest) (*types.PermitSignature, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	sig := bytes.Repeat([]byte{0x11}, 65)
	sig[64] = 27
	return &types.PermitSignature{V: 27, Deadline: req.Deadline, Signature: sig}, nil
}

type fakePortals struct {
	mu           sync.Mutex
	estimates    []client.PortalsQuoteRequest
	txs          []client.PortalsTxRequest
	approvals    int
	estimateErr  error
	txErr        error
	allowance    string
	spender      common.Address
	canPermit    bool
	outputAmount string
	// block, when set, holds Estimate calls for the given input amount until released
	block        map[string]chan struct{}
	// wallet, when set, reports the on-chain allowance of spender instead of allowance
	wallet       *fakeWallet
}

func (p *fakePortals) Estimate(ctx context.Context, req client.PortalsQuoteRequest) (*client.PortalsEstimate, error) {
	p.mu.Lock()
	p.estimates = append(p.estimates, req)
	wait := p.block[req.InputAmount.String()]
	err := p.estimateErr
	p.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := p.outputAmount
	if out == "" {
		out = req.InputAmount.String()
	}
	return &client.PortalsEstimate{OutputToken: req.OutputToken.Hex(), OutputAmount: out, MinOutputAmount: out}, nil
}

func (p *fakePortals) Approval(_ context.Context, _ uint64, _, _ common.Address, _ *big.Int) (*client.PortalsApproval, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.approvals++
	approval := &client.PortalsApproval{}
	approval.Context.Allowance = p.allowance
	if p.wallet != nil {
		approval.Context.Allowance = p.wallet.allowance(p.spender).String()
	}
	approval.Context.CanPermit = p.canPermit
	approval.Context.Spender = p.spender.Hex()
	return approval, nil
}

func (p *fakePortals) Transaction(_ context.Context, req client.PortalsTxRequest) (*client.PortalsTx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs = append(p.txs, req)
	if p.txErr != nil {
		return nil, p.txErr
	}
	tx := &client.PortalsTx{}
	tx.Tx.To = p.spender.Hex()
	tx.Tx.Data = "0xdeadbeef"
	tx.Tx.Value = "0"
	return tx, nil
}

type fakeLiFi struct {
	mu          sync.Mutex
	toAmountMin string
	// fromAmounts maps a requested toAmount to the fromAmount the route would need
	fromAmounts map[string]string
	approval    common.Address
	duration    float64
	quotes      int
	callsQuotes []client.LiFiContractCallsRequest
	quoteErr    error
	// block, when set, holds Quote calls for the given amount until released
	block       map[string]chan struct{}
}

func (l *fakeLiFi) Quote(ctx context.Context, req client.LiFiQuoteRequest) (*client.LiFiStep, error) {
	l.mu.Lock()
	l.quotes++
	wait := l.block[req.FromAmount.String()]
	err := l.quoteErr
	l.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	step := &client.LiFiStep{}
	step.Estimate.ToAmountMin = l.toAmountMin
	if step.Estimate.ToAmountMin == "" {
		step.Estimate.ToAmountMin = req.FromAmount.String()
	}
	return step, nil
}

func (l *fakeLiFi) ContractCallsQuote(_ context.Context, req client.LiFiContractCallsRequest) (*client.LiFiStep, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callsQuotes = append(l.callsQuotes, req)

	from, ok := l.fromAmounts[req.ToAmount]
	if !ok {
		from = req.ToAmount
	}
	step := &client.LiFiStep{}
	step.Estimate.FromAmount = from
	step.Estimate.ToAmount = req.ToAmount
	step.Estimate.ToAmountMin = req.ToAmount
	step.Estimate.ApprovalAddress = l.approval.Hex()
	step.Estimate.ExecutionDuration = l.duration
	step.TransactionRequest = &client.LiFiTransactionRequest{
		ChainID: req.FromChain,
		To:      l.approval.Hex(),
		Data:    "0xcafe",
		Value:   "0x0",
	}
	return step, nil
}

type fakeBatcher struct {
	mu     sync.Mutex
	sent   [][]types.BatchCall
	states []client.BatchState
	polls  int
}

func (b *fakeBatcher) Send(_ context.Context, _ uint64, calls []types.BatchCall) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, calls)
	return "0xsafe", nil
}

func (b *fakeBatcher) Status(context.Context, uint64, string) (client.BatchStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := client.BatchSuccess
	if b.polls < len(b.states) {
		state = b.states[b.polls]
	}
	b.polls++
	return client.BatchStatus{State: state, TxHash: "0xexecuted"}, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []types.Notification
}

func (r *fakeRecorder) Add(n types.Notification) (types.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, n)
	return n, nil
}

func (r *fakeRecorder) all() []types.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Notification{}, r.entries...)
}

type fakeAlerter struct {
	messages []string
}

func (a *fakeAlerter) Error(message string) {
	a.messages = append(a.messages, message)
}

type stablecoins map[common.Address]bool

func (s stablecoins) IsStablecoin(_ uint64, token common.Address) bool {
	return s[token]
}

type routers map[uint64]common.Address

func (r routers) RouterAddress(chainID uint64) (common.Address, bool) {
	addr, ok := r[chainID]
	return addr, ok
}

var fixedNow = time.Unix(1_700_000_000, 0)

func testDeps(wallet *fakeWallet) Deps {
	return Deps{
		Wallet:         wallet,
		Permits:        &fakePermits{},
		Portals:        &fakePortals{},
		LiFi:           &fakeLiFi{},
		Batcher:        &fakeBatcher{},
		Recorder:       &fakeRecorder{},
		Alerter:        &fakeAlerter{},
		Stablecoins:    stablecoins{usdc.Address: true, usdt.Address: true},
		Routers:        routers{137: routerV3},
		Settings:       DefaultSettings(),
		Logger:         zerolog.Nop(),
		ReceiptTimeout: time.Second,
		PollInterval:   time.Millisecond,
		Now:            func() time.Time { return fixedNow },
	}
}
