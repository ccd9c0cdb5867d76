package client

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"vault-zap/pkg/types"
)

// DefaultLiFiURL is the public LiFi API
const DefaultLiFiURL = "https://li.quest/v1"

// LiFiToken is a token as described by LiFi
type LiFiToken struct {
	Address  string `json:"address"`
	ChainID  uint64 `json:"chainId"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
	Name     string `json:"name"`
	PriceUSD string `json:"priceUSD"`
}

// LiFiEstimate is the estimated outcome of a step
type LiFiEstimate struct {
	Tool              string  `json:"tool"`
	FromAmount        string  `json:"fromAmount"`
	ToAmount          string  `json:"toAmount"`
	ToAmountMin       string  `json:"toAmountMin"`
	ApprovalAddress   string  `json:"approvalAddress"`
	ExecutionDuration float64 `json:"executionDuration"`
}

// LiFiTransactionRequest is the transaction to sign for a step
type LiFiTransactionRequest struct {
	ChainID  uint64 `json:"chainId"`
	From     string `json:"from"`
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	GasLimit string `json:"gasLimit"`
	GasPrice string `json:"gasPrice"`
}

// LiFiStep is a route quote, optionally carrying destination contract calls
type LiFiStep struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Tool   string `json:"tool"`
	Action struct {
		FromChainID uint64    `json:"fromChainId"`
		ToChainID   uint64    `json:"toChainId"`
		FromToken   LiFiToken `json:"fromToken"`
		ToToken     LiFiToken `json:"toToken"`
		FromAmount  string    `json:"fromAmount"`
		FromAddress string    `json:"fromAddress"`
		ToAddress   string    `json:"toAddress"`
	} `json:"action"`
	Estimate           LiFiEstimate            `json:"estimate"`
	TransactionRequest *LiFiTransactionRequest `json:"transactionRequest,omitempty"`
}

// TxRequest converts the step transaction into a wallet request
func (s LiFiStep) TxRequest() (types.TxRequest, error) {
	if s.TransactionRequest == nil {
		return types.TxRequest{}, fmt.Errorf("quote has no transaction request")
	}
	tr := s.TransactionRequest
	if tr.ChainID == 0 {
		return types.TxRequest{}, fmt.Errorf("chain ID is not set")
	}
	data, err := hexutil.Decode(tr.Data)
	if err != nil {
		return types.TxRequest{}, fmt.Errorf("data is not hex: %w", err)
	}
	value, err := parseBig(tr.Value)
	if err != nil {
		return types.TxRequest{}, err
	}

	req := types.TxRequest{
		ChainID: tr.ChainID,
		To:      common.HexToAddress(tr.To),
		Data:    data,
		Value:   value,
	}
	if tr.GasLimit != "" {
		gas, err := parseBig(tr.GasLimit)
		if err != nil {
			return types.TxRequest{}, err
		}
		req.Gas = gas.Uint64()
	}
	if tr.GasPrice != "" {
		if req.GasPrice, err = parseBig(tr.GasPrice); err != nil {
			return types.TxRequest{}, err
		}
	}
	return req, nil
}

// LiFiQuoteRequest asks for a plain route quote
type LiFiQuoteRequest struct {
	FromChain   uint64
	ToChain     uint64
	FromToken   common.Address
	ToToken     common.Address
	FromAmount  *big.Int
	FromAddress common.Address
}

// LiFiContractCall is a call executed on the destination chain with the bridged funds
type LiFiContractCall struct {
	FromAmount         string `json:"fromAmount"`
	FromTokenAddress   string `json:"fromTokenAddress"`
	ToTokenAddress     string `json:"toTokenAddress,omitempty"`
	ToContractAddress  string `json:"toContractAddress"`
	ToContractGasLimit string `json:"toContractGasLimit"`
	ToContractCallData string `json:"toContractCallData"`
}

// LiFiContractCallsRequest asks for a quote that ends with contract calls
type LiFiContractCallsRequest struct {
	FromChain            uint64             `json:"fromChain"`
	FromToken            string             `json:"fromToken"`
	FromAddress          string             `json:"fromAddress"`
	ToChain              uint64             `json:"toChain"`
	ToToken              string             `json:"toToken"`
	ToAmount             string             `json:"toAmount"`
	Integrator           string             `json:"integrator,omitempty"`
	ContractOutputsToken string             `json:"contractOutputsToken,omitempty"`
	ContractCalls        []LiFiContractCall `json:"contractCalls"`
}

// Bridge status values
const (
	LiFiStatusNotFound = "NOT_FOUND"
	LiFiStatusInvalid  = "INVALID"
	LiFiStatusPending  = "PENDING"
	LiFiStatusDone     = "DONE"
	LiFiStatusFailed   = "FAILED"
)

// LiFiStatus is the state of a cross chain transfer
type LiFiStatus struct {
	TransactionID string `json:"transactionId"`
	Sending       struct {
		TxHash  string `json:"txHash"`
		ChainID uint64 `json:"chainId"`
		Amount  string `json:"amount"`
	} `json:"sending"`
	Receiving struct {
		TxHash  string `json:"txHash"`
		ChainID uint64 `json:"chainId"`
		Amount  string `json:"amount"`
	} `json:"receiving"`
	Status           string `json:"status"`
	Substatus        string `json:"substatus"`
	SubstatusMessage string `json:"substatusMessage"`
	LiFiExplorerLink string `json:"lifiExplorerLink"`
}

// LiFiClient calls the LiFi API
type LiFiClient struct {
	baseURL    string
	integrator string
	http       *http.Client
	logger     zerolog.Logger
}

// NewLiFiClient creates a LiFi client tagging requests with the integrator name
func NewLiFiClient(baseURL, integrator string, timeout time.Duration, logger zerolog.Logger) *LiFiClient {
	if baseURL == "" {
		baseURL = DefaultLiFiURL
	}
	return &LiFiClient{
		baseURL:    baseURL,
		integrator: integrator,
		http:       newHTTPClient(timeout),
		logger:     logger.With().Str("component", "lifi").Logger(),
	}
}

// Integrator returns the integrator tag sent with quotes
func (c *LiFiClient) Integrator() string {
	return c.integrator
}

// Quote returns the best route for a transfer
func (c *LiFiClient) Quote(ctx context.Context, req LiFiQuoteRequest) (*LiFiStep, error) {
	query := url.Values{}
	query.Set("fromChain", strconv.FormatUint(req.FromChain, 10))
	query.Set("toChain", strconv.FormatUint(req.ToChain, 10))
	query.Set("fromToken", LiFiTokenAddress(req.FromToken))
	query.Set("toToken", LiFiTokenAddress(req.ToToken))
	query.Set("fromAmount", req.FromAmount.String())
	query.Set("fromAddress", req.FromAddress.Hex())
	if c.integrator != "" {
		query.Set("integrator", c.integrator)
	}

	c.logger.Debug().Str("query", query.Encode()).Msg("quote")

	var step LiFiStep
	if err := doJSON(ctx, c.http, http.MethodGet, joinURL(c.baseURL, "quote"), query, nil, &step); err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return &step, nil
}

// ContractCallsQuote returns a route that executes the given calls on arrival
func (c *LiFiClient) ContractCallsQuote(ctx context.Context, req LiFiContractCallsRequest) (*LiFiStep, error) {
	if req.Integrator == "" {
		req.Integrator = c.integrator
	}

	c.logger.Debug().Str("toAmount", req.ToAmount).Int("calls", len(req.ContractCalls)).Msg("contract calls quote")

	var step LiFiStep
	if err := doJSON(ctx, c.http, http.MethodPost, joinURL(c.baseURL, "quote/contractCalls"), nil, req, &step); err != nil {
		return nil, fmt.Errorf("failed to get contract calls quote: %w", err)
	}
	return &step, nil
}

// Status returns the state of a bridge transfer
func (c *LiFiClient) Status(ctx context.Context, fromChain, toChain uint64, txHash string) (*LiFiStatus, error) {
	query := url.Values{}
	query.Set("fromChain", strconv.FormatUint(fromChain, 10))
	query.Set("toChain", strconv.FormatUint(toChain, 10))
	query.Set("txHash", txHash)

	var status LiFiStatus
	if err := doJSON(ctx, c.http, http.MethodGet, joinURL(c.baseURL, "status"), query, nil, &status); err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return &status, nil
}

// LiFiTokenAddress is the address LiFi expects for token. Native coins are
// the zero address.
func LiFiTokenAddress(token common.Address) string {
	if token == types.NativeTokenAddress {
		return common.Address{}.Hex()
	}
	return token.Hex()
}
