// Package solver picks and drives the strategy used to move funds into or out
// of a vault: a direct vault call, a same chain swap through Portals or a
// cross chain bridge through LiFi. Every strategy exposes the same Solver
// contract so callers never branch on which one is active.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"vault-zap/pkg/chain"
	"vault-zap/pkg/classifier"
	"vault-zap/pkg/client"
	"vault-zap/pkg/types"
)

var (
	// ErrPrecondition is returned when an action is triggered without the state it requires
	ErrPrecondition = errors.New("precondition failed")
	// ErrBatchFailed is returned when a Safe batch is cancelled or fails on chain
	ErrBatchFailed = errors.New("batch was not executed")
	// ErrPermitRejected is returned when no permit signature could be produced
	ErrPermitRejected = errors.New("error signing a permit")
	// ErrReverted is returned when a transaction is mined with a failed status
	ErrReverted = errors.New("transaction reverted")
	// ErrNotApproved is returned when an approval left the allowance below the spend amount
	ErrNotApproved = errors.New("allowance is still too low after approval")
)

// GenericErrorMessage is shown when an error carries no user facing message
const GenericErrorMessage = "An error occured while creating your transaction!"

const (
	// DefaultReceiptTimeout tolerates slow chains
	DefaultReceiptTimeout = 15 * time.Minute
	// DefaultPollInterval is used to poll Safe batches
	DefaultPollInterval = 30 * time.Second
)

// Action is the direction of a transfer
type Action string

const (
	Deposit  Action = "deposit"
	Withdraw Action = "withdraw"
)

// Request is everything a solver needs to know about the current configuration
type Request struct {
	Action Action
	Input  types.AssetInput
	Vault  *types.Vault
	// Output is the token to receive on withdraw; deposits end in vault shares
	Output         *types.Token
	IsZapNeeded    bool
	IsBridgeNeeded bool
}

// OutputAddress is the token the transfer ends in
func (r Request) OutputAddress() *common.Address {
	if r.Action == Withdraw {
		if r.Output == nil {
			return nil
		}
		addr := r.Output.Address
		return &addr
	}
	if r.Vault == nil {
		return nil
	}
	addr := r.Vault.Address
	return &addr
}

// OutputSymbol is the symbol of the token the transfer ends in
func (r Request) OutputSymbol() string {
	if r.Action == Withdraw && r.Output != nil {
		return r.Output.Symbol
	}
	if r.Vault != nil {
		return r.Vault.Symbol
	}
	return ""
}

// OutputChainID is the chain the transfer ends on
func (r Request) OutputChainID() uint64 {
	if r.Action == Withdraw && r.Output != nil {
		return r.Output.ChainID
	}
	if r.Vault != nil {
		return r.Vault.ChainID
	}
	return 0
}

// SpendAmount is the amount of the input token to spend
func (r Request) SpendAmount() *big.Int {
	return r.Input.SpendAmount()
}

// Fingerprint identifies the inputs a quote or allowance depends on
func (r Request) Fingerprint() string {
	fp := fmt.Sprintf("%s|%s|%t|%t", r.Action, r.SpendAmount(), r.IsZapNeeded, r.IsBridgeNeeded)
	if r.Input.Token != nil {
		fp += fmt.Sprintf("|in:%d:%s", r.Input.Token.ChainID, r.Input.Token.Address.Hex())
	}
	if r.Vault != nil {
		fp += fmt.Sprintf("|vault:%d:%s", r.Vault.ChainID, r.Vault.Address.Hex())
	}
	if r.Output != nil {
		fp += fmt.Sprintf("|out:%d:%s", r.Output.ChainID, r.Output.Address.Hex())
	}
	return fp
}

// Snapshot is the observable state of a solver
type Snapshot struct {
	Kind                classifier.Kind
	Quote               interface{}
	Allowance           types.NormalizedBN
	IsApproved          bool
	IsDisabled          bool
	IsFetchingAllowance bool
	IsFetchingQuote     bool
	HasPermit           bool
	ApprovalStatus      types.TxStatus
	DepositStatus       types.TxStatus
	WithdrawStatus      types.TxStatus
}

// Solver is the contract shared by every strategy
type Solver interface {
	Kind() classifier.Kind
	// Update hands the solver a new configuration. State computed for a
	// different configuration is dropped and in flight fetches become stale.
	Update(req Request)
	// Refresh runs the quote and allowance fetches. It is a no-op when the
	// configuration does not call for this solver.
	Refresh(ctx context.Context)
	Snapshot() Snapshot
	OnApprove(ctx context.Context, onSuccess func()) error
	OnExecuteDeposit(ctx context.Context, onSuccess func()) error
	OnExecuteWithdraw(ctx context.Context, onSuccess func()) error
	OnExecuteForGnosis(ctx context.Context, onSuccess func()) error
}

// Settings are the user preferences applied to every solver
type Settings struct {
	// Slippage tolerance in percent
	Slippage string
	// DeadlineMinutes is the validity of permit signatures
	DeadlineMinutes int
	WithPermit      bool
}

// DefaultSettings mirrors the defaults of a fresh install
func DefaultSettings() Settings {
	return Settings{Slippage: "1", DeadlineMinutes: 60, WithPermit: true}
}

// Wallet is the connected account
type Wallet interface {
	Address() common.Address
	ChainID() uint64
	IsSafe() bool
	SwitchChain(ctx context.Context, chainID uint64) error
	SendTransaction(ctx context.Context, req types.TxRequest) (common.Hash, error)
	WaitForReceipt(ctx context.Context, chainID uint64, hash common.Hash, timeout time.Duration) (*gethtypes.Receipt, error)
	CallContract(ctx context.Context, chainID uint64, msg ethereum.CallMsg) ([]byte, error)
	BlockNumber(ctx context.Context, chainID uint64) (uint64, error)
}

// PermitSigner produces EIP-2612 signatures
type PermitSigner interface {
	IsPermitSupported(ctx context.Context, chainID uint64, token common.Address) bool
	SignPermit(ctx context.Context, req chain.PermitRequest) (*types.PermitSignature, error)
}

// PortalsAPI is the same chain swap aggregator
type PortalsAPI interface {
	Estimate(ctx context.Context, req client.PortalsQuoteRequest) (*client.PortalsEstimate, error)
	Approval(ctx context.Context, chainID uint64, sender, token common.Address, amount *big.Int) (*client.PortalsApproval, error)
	Transaction(ctx context.Context, req client.PortalsTxRequest) (*client.PortalsTx, error)
}

// LiFiAPI is the cross chain bridge aggregator
type LiFiAPI interface {
	Quote(ctx context.Context, req client.LiFiQuoteRequest) (*client.LiFiStep, error)
	ContractCallsQuote(ctx context.Context, req client.LiFiContractCallsRequest) (*client.LiFiStep, error)
}

// Batcher submits atomic multisig batches
type Batcher interface {
	Send(ctx context.Context, chainID uint64, calls []types.BatchCall) (string, error)
	Status(ctx context.Context, chainID uint64, safeTxHash string) (client.BatchStatus, error)
}

// Recorder persists notifications
type Recorder interface {
	Add(n types.Notification) (types.Notification, error)
}

// Alerter shows error messages to the user
type Alerter interface {
	Error(message string)
}

// StablecoinChecker tells whether a token is a stablecoin
type StablecoinChecker interface {
	IsStablecoin(chainID uint64, token common.Address) bool
}

// RouterRegistry returns the vault router deployed on a chain
type RouterRegistry interface {
	RouterAddress(chainID uint64) (common.Address, bool)
}

// Deps are the collaborators shared by the solvers
type Deps struct {
	Wallet      Wallet
	Permits     PermitSigner
	Portals     PortalsAPI
	LiFi        LiFiAPI
	Batcher     Batcher
	Recorder    Recorder
	Alerter     Alerter
	Stablecoins StablecoinChecker
	Routers     RouterRegistry
	Cache       *AllowanceCache
	Settings    Settings
	Logger      zerolog.Logger

	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	Now            func() time.Time
}

func (d *Deps) withDefaults() {
	if d.ReceiptTimeout == 0 {
		d.ReceiptTimeout = DefaultReceiptTimeout
	}
	if d.PollInterval == 0 {
		d.PollInterval = DefaultPollInterval
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Settings.Slippage == "" {
		d.Settings.Slippage = "1"
	}
	if d.Settings.DeadlineMinutes == 0 {
		d.Settings.DeadlineMinutes = 60
	}
	if d.Alerter == nil {
		d.Alerter = nopAlerter{}
	}
}

type nopAlerter struct{}

func (nopAlerter) Error(string) {}

func preconditionf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}
