// Package chain talks to EVM networks: it signs and sends transactions, reads
// contract state, waits for receipts and signs EIP-712 payloads.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"vault-zap/pkg/types"
)

var (
	// ErrUnknownChain is returned for chains without a configured RPC endpoint
	ErrUnknownChain = errors.New("chain not configured")
	// ErrWrongChain is returned when a transaction targets a chain the wallet is not on
	ErrWrongChain = errors.New("wallet is connected to another chain")
	// ErrSafeWallet is returned when a Safe wallet is asked to send a single transaction
	ErrSafeWallet = errors.New("safe wallets submit transactions through a batch")
)

// Backend is the part of ethclient.Client used by the wallet
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// Caller reads contract state on a given chain
type Caller interface {
	CallContract(ctx context.Context, chainID uint64, msg ethereum.CallMsg) ([]byte, error)
}

// HashSigner signs 32 byte digests with the owner key
type HashSigner interface {
	Owner() common.Address
	SignHash(hash []byte) ([]byte, error)
}

// Wallet is a private key wallet connected to several chains at once, one of
// them being the active chain. When a Safe address is set the wallet acts on
// behalf of the Safe and the key only signs Safe transactions.
type Wallet struct {
	mu           sync.RWMutex
	backends     map[uint64]Backend
	key          *ecdsa.PrivateKey
	owner        common.Address
	safe         *common.Address
	chainID      uint64
	pollInterval time.Duration
	logger       zerolog.Logger
}

// Dial connects to every RPC endpoint and loads the private key
func Dial(rpcURLs map[uint64]string, privateKey string, logger zerolog.Logger) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	backends := make(map[uint64]Backend, len(rpcURLs))
	for chainID, url := range rpcURLs {
		if url == "" {
			continue
		}
		client, err := ethclient.Dial(url)
		if err != nil {
			for _, b := range backends {
				b.Close()
			}
			return nil, fmt.Errorf("failed to connect to RPC endpoint for chain %d: %w", chainID, err)
		}
		backends[chainID] = client
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no RPC endpoint configured")
	}

	return NewWallet(key, backends, logger), nil
}

// NewWallet creates a wallet over already connected backends. The active
// chain defaults to the lowest configured chain ID.
func NewWallet(key *ecdsa.PrivateKey, backends map[uint64]Backend, logger zerolog.Logger) *Wallet {
	ids := make([]uint64, 0, len(backends))
	for id := range backends {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	w := &Wallet{
		backends:     backends,
		key:          key,
		owner:        crypto.PubkeyToAddress(key.PublicKey),
		pollInterval: 3 * time.Second,
		logger:       logger.With().Str("component", "wallet").Logger(),
	}
	if len(ids) > 0 {
		w.chainID = ids[0]
	}
	return w
}

// UseSafe switches the wallet to Safe mode
func (w *Wallet) UseSafe(safe common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.safe = &safe
}

// SetPollInterval changes how often receipts are polled
func (w *Wallet) SetPollInterval(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pollInterval = d
}

// Address returns the account holding the funds: the Safe in Safe mode, the owner otherwise
func (w *Wallet) Address() common.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.safe != nil {
		return *w.safe
	}
	return w.owner
}

// Owner returns the address of the private key
func (w *Wallet) Owner() common.Address {
	return w.owner
}

// IsSafe returns true when acting for a Safe multisig
func (w *Wallet) IsSafe() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.safe != nil
}

// ChainID returns the active chain
func (w *Wallet) ChainID() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.chainID
}

// SwitchChain changes the active chain
func (w *Wallet) SwitchChain(ctx context.Context, chainID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.backends[chainID]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	if w.chainID != chainID {
		w.logger.Debug().Uint64("from", w.chainID).Uint64("to", chainID).Msg("switching chain")
	}
	w.chainID = chainID
	return nil
}

func (w *Wallet) backend(chainID uint64) (Backend, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.backends[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	return b, nil
}

// SendTransaction signs and broadcasts a transaction on the active chain
func (w *Wallet) SendTransaction(ctx context.Context, req types.TxRequest) (common.Hash, error) {
	if w.IsSafe() {
		return common.Hash{}, ErrSafeWallet
	}
	chainID := w.ChainID()
	if req.ChainID != 0 && req.ChainID != chainID {
		return common.Hash{}, fmt.Errorf("%w: on %d, transaction for %d", ErrWrongChain, chainID, req.ChainID)
	}
	client, err := w.backend(chainID)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := client.PendingNonceAt(ctx, w.owner)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		gasPrice, err = client.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
		}
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit := req.Gas
	if gasLimit == 0 {
		to := req.To
		estimated, err := client.EstimateGas(ctx, ethereum.CallMsg{
			From:  w.owner,
			To:    &to,
			Value: value,
			Data:  req.Data,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
		}
		gasLimit = estimated * 120 / 100 // Add 20% buffer
	}

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &req.To,
		Value:    value,
		Data:     req.Data,
	})

	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(new(big.Int).SetUint64(chainID)), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	w.logger.Info().
		Uint64("chain", chainID).
		Str("hash", signed.Hash().Hex()).
		Str("to", req.To.Hex()).
		Msg("transaction sent")
	return signed.Hash(), nil
}

// WaitForReceipt polls for the receipt of a transaction until it is mined or the timeout expires
func (w *Wallet) WaitForReceipt(ctx context.Context, chainID uint64, hash common.Hash, timeout time.Duration) (*gethtypes.Receipt, error) {
	client, err := w.backend(chainID)
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	w.mu.RLock()
	interval := w.pollInterval
	w.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			w.logger.Warn().Err(err).Str("hash", hash.Hex()).Msg("error querying receipt")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for receipt of %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// CallContract runs a read only call on the given chain
func (w *Wallet) CallContract(ctx context.Context, chainID uint64, msg ethereum.CallMsg) ([]byte, error) {
	client, err := w.backend(chainID)
	if err != nil {
		return nil, err
	}
	out, err := client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call contract: %w", err)
	}
	return out, nil
}

// BlockNumber returns the latest block of the given chain
func (w *Wallet) BlockNumber(ctx context.Context, chainID uint64) (uint64, error) {
	client, err := w.backend(chainID)
	if err != nil {
		return 0, err
	}
	return client.BlockNumber(ctx)
}

// SignHash signs a digest and returns a 65 byte signature with v in {27, 28}
func (w *Wallet) SignHash(hash []byte) ([]byte, error) {
	sig, err := crypto.Sign(hash, w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// Close closes every RPC connection
func (w *Wallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range w.backends {
		b.Close()
	}
}

// ReadAllowance returns the ERC-20 allowance granted by owner to spender
func ReadAllowance(ctx context.Context, caller Caller, chainID uint64, token, owner, spender common.Address) (*big.Int, error) {
	data, err := PackAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	out, err := caller.CallContract(ctx, chainID, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to call allowance: %w", err)
	}
	return unpackUint("allowance", out)
}
