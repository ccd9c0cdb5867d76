package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/rs/zerolog"

	"vault-zap/pkg/chain"
	"vault-zap/pkg/types"
)

// MultiSendCallOnly is the canonical Safe MultiSendCallOnly v1.3.0 deployment
var MultiSendCallOnly = common.HexToAddress("0x40A2aCCbd92BCA938b02010E17A5b8929b49130D")

// BatchState is the execution state of a Safe transaction
type BatchState string

const (
	BatchPending   BatchState = "PENDING"
	BatchSuccess   BatchState = "SUCCESS"
	BatchFailed    BatchState = "FAILED"
	BatchCancelled BatchState = "CANCELLED"
)

// BatchStatus is the state of a batch plus the on-chain hash once executed
type BatchStatus struct {
	State  BatchState
	TxHash string
}

// flexUint decodes integers sent either as JSON numbers or strings
type flexUint uint64

func (f *flexUint) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid nonce %q: %w", s, err)
	}
	*f = flexUint(v)
	return nil
}

type safeInfo struct {
	Address   string   `json:"address"`
	Nonce     flexUint `json:"nonce"`
	Threshold int      `json:"threshold"`
}

type safeMultisigTx struct {
	Safe            string   `json:"safe"`
	Nonce           flexUint `json:"nonce"`
	IsExecuted      bool     `json:"isExecuted"`
	IsSuccessful    *bool    `json:"isSuccessful"`
	TransactionHash *string  `json:"transactionHash"`
	SafeTxHash      string   `json:"safeTxHash"`
}

type proposeRequest struct {
	To                      string `json:"to"`
	Value                   string `json:"value"`
	Data                    string `json:"data"`
	Operation               uint8  `json:"operation"`
	SafeTxGas               string `json:"safeTxGas"`
	BaseGas                 string `json:"baseGas"`
	GasPrice                string `json:"gasPrice"`
	GasToken                string `json:"gasToken"`
	RefundReceiver          string `json:"refundReceiver"`
	Nonce                   uint64 `json:"nonce"`
	ContractTransactionHash string `json:"contractTransactionHash"`
	Sender                  string `json:"sender"`
	Signature               string `json:"signature"`
	Origin                  string `json:"origin"`
}

// SafeTx is a Safe transaction before signing
type SafeTx struct {
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation uint8
	Nonce     uint64
}

// SafeClient proposes atomic batches to a Safe through the Safe Transaction Service
type SafeClient struct {
	safe   common.Address
	urls   map[uint64]string
	signer chain.HashSigner
	http   *http.Client
	logger zerolog.Logger
}

// NewSafeClient creates a client for the given Safe. urls maps chain IDs to
// transaction service base URLs.
func NewSafeClient(safe common.Address, urls map[uint64]string, signer chain.HashSigner, timeout time.Duration, logger zerolog.Logger) *SafeClient {
	return &SafeClient{
		safe:   safe,
		urls:   urls,
		signer: signer,
		http:   newHTTPClient(timeout),
		logger: logger.With().Str("component", "safe").Logger(),
	}
}

// Send proposes the calls as one Safe transaction and returns its safeTxHash.
// Several calls are bundled through MultiSendCallOnly.
func (c *SafeClient) Send(ctx context.Context, chainID uint64, calls []types.BatchCall) (string, error) {
	if len(calls) == 0 {
		return "", fmt.Errorf("empty batch")
	}
	base, err := c.baseURL(chainID)
	if err != nil {
		return "", err
	}

	info, err := c.info(ctx, base)
	if err != nil {
		return "", err
	}

	tx := SafeTx{Nonce: uint64(info.Nonce)}
	if len(calls) == 1 {
		tx.To = calls[0].To
		tx.Value = calls[0].Value
		tx.Data = calls[0].Data
	} else {
		data, err := chain.PackMultiSend(calls)
		if err != nil {
			return "", err
		}
		tx.To = MultiSendCallOnly
		tx.Data = data
		tx.Operation = 1
	}
	if tx.Value == nil {
		tx.Value = big.NewInt(0)
	}

	hash, _, err := apitypes.TypedDataAndHash(SafeTxTypedData(chainID, c.safe, tx))
	if err != nil {
		return "", fmt.Errorf("failed to hash safe transaction: %w", err)
	}
	sig, err := c.signer.SignHash(hash)
	if err != nil {
		return "", err
	}

	safeTxHash := hexutil.Encode(hash)
	body := proposeRequest{
		To:                      tx.To.Hex(),
		Value:                   tx.Value.String(),
		Data:                    hexutil.Encode(tx.Data),
		Operation:               tx.Operation,
		SafeTxGas:               "0",
		BaseGas:                 "0",
		GasPrice:                "0",
		GasToken:                common.Address{}.Hex(),
		RefundReceiver:          common.Address{}.Hex(),
		Nonce:                   tx.Nonce,
		ContractTransactionHash: safeTxHash,
		Sender:                  c.signer.Owner().Hex(),
		Signature:               hexutil.Encode(sig),
		Origin:                  "vault-zap",
	}

	endpoint := joinURL(base, "api/v1/safes", c.safe.Hex(), "multisig-transactions/")
	if err := doJSON(ctx, c.http, http.MethodPost, endpoint, nil, body, nil); err != nil {
		return "", fmt.Errorf("failed to propose safe transaction: %w", err)
	}

	c.logger.Info().
		Uint64("chain", chainID).
		Str("safeTxHash", safeTxHash).
		Int("calls", len(calls)).
		Uint64("nonce", tx.Nonce).
		Msg("batch proposed")
	return safeTxHash, nil
}

// Status returns the execution state of a proposed transaction. A transaction
// that was never executed while the Safe nonce moved past it was replaced and
// is reported as cancelled.
func (c *SafeClient) Status(ctx context.Context, chainID uint64, safeTxHash string) (BatchStatus, error) {
	base, err := c.baseURL(chainID)
	if err != nil {
		return BatchStatus{}, err
	}

	var tx safeMultisigTx
	endpoint := joinURL(base, "api/v1/multisig-transactions", safeTxHash) + "/"
	if err := doJSON(ctx, c.http, http.MethodGet, endpoint, nil, nil, &tx); err != nil {
		return BatchStatus{}, fmt.Errorf("failed to get safe transaction: %w", err)
	}

	if tx.IsExecuted {
		status := BatchStatus{State: BatchFailed}
		if tx.TransactionHash != nil {
			status.TxHash = *tx.TransactionHash
		}
		if tx.IsSuccessful != nil && *tx.IsSuccessful {
			status.State = BatchSuccess
		}
		return status, nil
	}

	info, err := c.info(ctx, base)
	if err != nil {
		return BatchStatus{}, err
	}
	if uint64(info.Nonce) > uint64(tx.Nonce) {
		return BatchStatus{State: BatchCancelled}, nil
	}
	return BatchStatus{State: BatchPending}, nil
}

func (c *SafeClient) info(ctx context.Context, base string) (*safeInfo, error) {
	var info safeInfo
	endpoint := joinURL(base, "api/v1/safes", c.safe.Hex()) + "/"
	if err := doJSON(ctx, c.http, http.MethodGet, endpoint, nil, nil, &info); err != nil {
		return nil, fmt.Errorf("failed to get safe info: %w", err)
	}
	return &info, nil
}

func (c *SafeClient) baseURL(chainID uint64) (string, error) {
	base, ok := c.urls[chainID]
	if !ok || base == "" {
		return "", fmt.Errorf("no safe transaction service for chain %d", chainID)
	}
	return base, nil
}

// SafeTxTypedData builds the EIP-712 payload signed by Safe owners
func SafeTxTypedData(chainID uint64, safe common.Address, tx SafeTx) apitypes.TypedData {
	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"SafeTx": {
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "data", Type: "bytes"},
				{Name: "operation", Type: "uint8"},
				{Name: "safeTxGas", Type: "uint256"},
				{Name: "baseGas", Type: "uint256"},
				{Name: "gasPrice", Type: "uint256"},
				{Name: "gasToken", Type: "address"},
				{Name: "refundReceiver", Type: "address"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "SafeTx",
		Domain: apitypes.TypedDataDomain{
			ChainId:           math.NewHexOrDecimal256(int64(chainID)),
			VerifyingContract: safe.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"to":             tx.To.Hex(),
			"value":          value.String(),
			"data":           hexutil.Bytes(tx.Data),
			"operation":      strconv.Itoa(int(tx.Operation)),
			"safeTxGas":      "0",
			"baseGas":        "0",
			"gasPrice":       "0",
			"gasToken":       common.Address{}.Hex(),
			"refundReceiver": common.Address{}.Hex(),
			"nonce":          strconv.FormatUint(tx.Nonce, 10),
		},
	}
}

var _ json.Unmarshaler = (*flexUint)(nil)
