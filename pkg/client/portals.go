package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"vault-zap/pkg/types"
)

// DefaultPortalsURL is the public Portals API
const DefaultPortalsURL = "https://api.portals.fi"

var portalsNetworks = map[uint64]string{
	1:     "ethereum",
	10:    "optimism",
	137:   "polygon",
	8453:  "base",
	42161: "arbitrum",
}

// PortalsNetwork returns the Portals network name of a chain
func PortalsNetwork(chainID uint64) (string, bool) {
	network, ok := portalsNetworks[chainID]
	return network, ok
}

// PortalsError is the structured error returned by the Portals API
type PortalsError struct {
	StatusCode int
	Message    string
}

func (e *PortalsError) Error() string {
	return fmt.Sprintf("portals error (status %d): %s", e.StatusCode, e.Message)
}

// PortalsContext describes the swap a Portals response was computed for
type PortalsContext struct {
	InputToken      string `json:"inputToken"`
	InputAmount     string `json:"inputAmount"`
	OutputToken     string `json:"outputToken"`
	OutputAmount    string `json:"outputAmount"`
	MinOutputAmount string `json:"minOutputAmount"`
	Sender          string `json:"sender"`
}

// InputAddress returns the address part of the "network:address" input token
func (c PortalsContext) InputAddress() common.Address {
	return tokenAddress(c.InputToken)
}

// OutputAddress returns the address part of the "network:address" output token
func (c PortalsContext) OutputAddress() common.Address {
	return tokenAddress(c.OutputToken)
}

// PortalsEstimate is a swap quote
type PortalsEstimate struct {
	OutputToken         string         `json:"outputToken"`
	OutputAmount        string         `json:"outputAmount"`
	MinOutputAmount     string         `json:"minOutputAmount"`
	OutputTokenDecimals int32          `json:"outputTokenDecimals"`
	Context             PortalsContext `json:"context"`
}

// PortalsApproval is the approval context of a swap: who must be approved and how much is already allowed
type PortalsApproval struct {
	Context struct {
		Network        string `json:"network"`
		Allowance      string `json:"allowance"`
		ApprovalAmount string `json:"approvalAmount"`
		ShouldApprove  bool   `json:"shouldApprove"`
		CanPermit      bool   `json:"canPermit"`
		Spender        string `json:"spender"`
		Target         string `json:"target"`
	} `json:"context"`
}

// AllowanceAmount returns the current allowance as an integer
func (a PortalsApproval) AllowanceAmount() (*big.Int, error) {
	return parseBig(a.Context.Allowance)
}

// SpenderAddress returns the contract that needs the allowance
func (a PortalsApproval) SpenderAddress() common.Address {
	return common.HexToAddress(a.Context.Spender)
}

// PortalsTx is a ready to sign swap transaction
type PortalsTx struct {
	Context PortalsContext `json:"context"`
	Tx      struct {
		To       string `json:"to"`
		From     string `json:"from"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		GasLimit string `json:"gasLimit"`
	} `json:"tx"`
}

// TxRequest converts the swap transaction into a wallet request
func (t PortalsTx) TxRequest(chainID uint64) (types.TxRequest, error) {
	data, err := hexutil.Decode(t.Tx.Data)
	if err != nil {
		return types.TxRequest{}, fmt.Errorf("data is not hex: %w", err)
	}
	value, err := parseBig(t.Tx.Value)
	if err != nil {
		return types.TxRequest{}, err
	}
	req := types.TxRequest{
		ChainID: chainID,
		To:      common.HexToAddress(t.Tx.To),
		Data:    data,
		Value:   value,
	}
	if t.Tx.GasLimit != "" {
		gas, err := parseBig(t.Tx.GasLimit)
		if err != nil {
			return types.TxRequest{}, err
		}
		req.Gas = gas.Uint64()
	}
	return req, nil
}

// PortalsQuoteRequest identifies a swap on a single chain
type PortalsQuoteRequest struct {
	ChainID     uint64
	Sender      common.Address
	InputToken  common.Address
	OutputToken common.Address
	InputAmount *big.Int
	Slippage    string
}

// PortalsTxRequest is a quote request plus transaction building options
type PortalsTxRequest struct {
	PortalsQuoteRequest
	Validate        bool
	PermitSignature string
	PermitDeadline  *big.Int
}

// PortalsClient calls the Portals API
type PortalsClient struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewPortalsClient creates a Portals client
func NewPortalsClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *PortalsClient {
	if baseURL == "" {
		baseURL = DefaultPortalsURL
	}
	return &PortalsClient{
		baseURL: baseURL,
		http:    newHTTPClient(timeout),
		logger:  logger.With().Str("component", "portals").Logger(),
	}
}

// Estimate returns a swap quote
func (c *PortalsClient) Estimate(ctx context.Context, req PortalsQuoteRequest) (*PortalsEstimate, error) {
	network, err := networkFor(req.ChainID)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("inputToken", portalsToken(network, req.InputToken))
	query.Set("outputToken", portalsToken(network, req.OutputToken))
	query.Set("inputAmount", req.InputAmount.String())
	query.Set("slippageTolerancePercentage", req.Slippage)
	if req.Sender != (common.Address{}) {
		query.Set("sender", req.Sender.Hex())
	}

	var estimate PortalsEstimate
	if err := c.do(ctx, "/v2/portal/estimate", query, &estimate); err != nil {
		return nil, fmt.Errorf("failed to get estimate: %w", err)
	}
	return &estimate, nil
}

// Approval returns the approval context for spending amount of token
func (c *PortalsClient) Approval(ctx context.Context, chainID uint64, sender, token common.Address, amount *big.Int) (*PortalsApproval, error) {
	network, err := networkFor(chainID)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("sender", sender.Hex())
	query.Set("inputToken", portalsToken(network, token))
	query.Set("inputAmount", amount.String())

	var approval PortalsApproval
	if err := c.do(ctx, "/v2/approval", query, &approval); err != nil {
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	return &approval, nil
}

// Transaction builds the swap transaction
func (c *PortalsClient) Transaction(ctx context.Context, req PortalsTxRequest) (*PortalsTx, error) {
	network, err := networkFor(req.ChainID)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("sender", req.Sender.Hex())
	query.Set("inputToken", portalsToken(network, req.InputToken))
	query.Set("outputToken", portalsToken(network, req.OutputToken))
	query.Set("inputAmount", req.InputAmount.String())
	query.Set("slippageTolerancePercentage", req.Slippage)
	query.Set("validate", fmt.Sprintf("%t", req.Validate))
	if req.PermitSignature != "" {
		query.Set("permitSignature", req.PermitSignature)
	}
	if req.PermitDeadline != nil {
		query.Set("permitDeadline", req.PermitDeadline.String())
	}

	var tx PortalsTx
	if err := c.do(ctx, "/v2/portal", query, &tx); err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if tx.Tx.To == "" || tx.Tx.Data == "" {
		return nil, fmt.Errorf("transaction data was not returned")
	}
	return &tx, nil
}

func (c *PortalsClient) do(ctx context.Context, path string, query url.Values, out interface{}) error {
	c.logger.Debug().Str("path", path).Str("query", query.Encode()).Msg("request")

	err := doJSON(ctx, c.http, http.MethodGet, joinURL(c.baseURL, path), query, nil, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return &PortalsError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	return err
}

func networkFor(chainID uint64) (string, error) {
	name, ok := PortalsNetwork(chainID)
	if !ok {
		return "", fmt.Errorf("chain %d is not supported by portals", chainID)
	}
	return name, nil
}

// portalsToken formats a token as "network:address"; native coins use the zero address
func portalsToken(network string, token common.Address) string {
	if token == types.NativeTokenAddress {
		token = common.Address{}
	}
	return network + ":" + token.Hex()
}

func tokenAddress(s string) common.Address {
	_, addr, found := strings.Cut(s, ":")
	if !found {
		addr = s
	}
	return common.HexToAddress(addr)
}
