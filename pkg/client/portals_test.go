package client

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"vault-zap/pkg/types"
)

var (
	usdt = common.HexToAddress("0xc2132D05D31c914a87C6611C10748AEb04B58e8F")
	usdc = common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359")
)

func TestPortalsEstimate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/portal/estimate", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "polygon:"+usdt.Hex(), q.Get("inputToken"))
		require.Equal(t, "polygon:"+usdc.Hex(), q.Get("outputToken"))
		require.Equal(t, "100000000", q.Get("inputAmount"))
		require.Equal(t, "0.1", q.Get("slippageTolerancePercentage"))
		w.Write([]byte(`{"outputToken":"polygon:` + usdc.Hex() + `","outputAmount":"99950000","minOutputAmount":"99850000","outputTokenDecimals":6,"context":{"inputToken":"polygon:` + usdt.Hex() + `","inputAmount":"100000000"}}`))
	}))
	defer srv.Close()

	c := NewPortalsClient(srv.URL, 0, zerolog.Nop())
	estimate, err := c.Estimate(context.Background(), PortalsQuoteRequest{
		ChainID:     137,
		InputToken:  usdt,
		OutputToken: usdc,
		InputAmount: big.NewInt(100_000_000),
		Slippage:    "0.1",
	})
	require.NoError(t, err)
	require.Equal(t, "99950000", estimate.OutputAmount)
	require.Equal(t, usdt, estimate.Context.InputAddress())
}

func TestPortalsApproval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/approval", r.URL.Path)
		w.Write([]byte(`{"context":{"network":"polygon","allowance":"5000","canPermit":true,"spender":"0x4a4b6eD3Cb68a7D39C1E0dB1a8BbC1fFf6E5f4e2"}}`))
	}))
	defer srv.Close()

	c := NewPortalsClient(srv.URL, 0, zerolog.Nop())
	approval, err := c.Approval(context.Background(), 137, common.HexToAddress("0x1"), usdt, big.NewInt(10))
	require.NoError(t, err)
	require.True(t, approval.Context.CanPermit)

	allowance, err := approval.AllowanceAmount()
	require.NoError(t, err)
	require.Equal(t, int64(5000), allowance.Int64())
	require.Equal(t, common.HexToAddress("0x4a4b6eD3Cb68a7D39C1E0dB1a8BbC1fFf6E5f4e2"), approval.SpenderAddress())
}

func TestPortalsTransactionNativeAndPermit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "polygon:"+common.Address{}.Hex(), q.Get("inputToken"))
		require.Equal(t, "false", q.Get("validate"))
		require.Equal(t, "0xsig", q.Get("permitSignature"))
		require.Equal(t, "1700000000", q.Get("permitDeadline"))
		w.Write([]byte(`{"context":{},"tx":{"to":"0x00000000000000000000000000000000000000aa","data":"0x1234","value":"10"}}`))
	}))
	defer srv.Close()

	c := NewPortalsClient(srv.URL, 0, zerolog.Nop())
	tx, err := c.Transaction(context.Background(), PortalsTxRequest{
		PortalsQuoteRequest: PortalsQuoteRequest{
			ChainID:     137,
			InputToken:  types.NativeTokenAddress,
			OutputToken: usdc,
			InputAmount: big.NewInt(1),
			Slippage:    "1",
		},
		Validate:        false,
		PermitSignature: "0xsig",
		PermitDeadline:  big.NewInt(1_700_000_000),
	})
	require.NoError(t, err)
	require.Equal(t, "0x1234", tx.Tx.Data)
}

func TestPortalsStructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Insufficient liquidity","statusCode":400}`))
	}))
	defer srv.Close()

	c := NewPortalsClient(srv.URL, 0, zerolog.Nop())
	_, err := c.Estimate(context.Background(), PortalsQuoteRequest{ChainID: 137, InputAmount: big.NewInt(1)})
	require.Error(t, err)

	var portalsErr *PortalsError
	require.True(t, errors.As(err, &portalsErr))
	require.Equal(t, http.StatusBadRequest, portalsErr.StatusCode)
	require.Equal(t, "Insufficient liquidity", portalsErr.Message)
}

func TestPortalsUnsupportedChain(t *testing.T) {
	c := NewPortalsClient("http://localhost", 0, zerolog.Nop())
	_, err := c.Estimate(context.Background(), PortalsQuoteRequest{ChainID: 999, InputAmount: big.NewInt(1)})
	require.Error(t, err)
}
