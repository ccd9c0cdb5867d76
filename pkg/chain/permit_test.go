package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	hasPermit bool
	nonce     int64
	name      string
}

func (f *fakeToken) CallContract(_ context.Context, _ uint64, msg ethereum.CallMsg) ([]byte, error) {
	selector := msg.Data[:4]
	switch {
	case bytes.Equal(selector, erc20.Methods["DOMAIN_SEPARATOR"].ID):
		if !f.hasPermit {
			return nil, errors.New("execution reverted")
		}
		return erc20.Methods["DOMAIN_SEPARATOR"].Outputs.Pack([32]byte{1})
	case bytes.Equal(selector, erc20.Methods["nonces"].ID):
		if !f.hasPermit {
			return nil, errors.New("execution reverted")
		}
		return erc20.Methods["nonces"].Outputs.Pack(big.NewInt(f.nonce))
	case bytes.Equal(selector, erc20.Methods["name"].ID):
		return erc20.Methods["name"].Outputs.Pack(f.name)
	case bytes.Equal(selector, erc20.Methods["version"].ID):
		return nil, errors.New("execution reverted")
	}
	return nil, errors.New("unexpected call")
}

func newTestWallet(t *testing.T) *Wallet {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewWallet(key, map[uint64]Backend{}, zerolog.Nop())
}

func TestIsPermitSupported(t *testing.T) {
	wallet := newTestWallet(t)
	token := common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359")

	supported := NewPermitSigner(&fakeToken{hasPermit: true}, wallet, zerolog.Nop())
	require.True(t, supported.IsPermitSupported(context.Background(), 137, token))

	unsupported := NewPermitSigner(&fakeToken{}, wallet, zerolog.Nop())
	require.False(t, unsupported.IsPermitSupported(context.Background(), 137, token))
}

func TestSignPermitRecoversOwner(t *testing.T) {
	wallet := newTestWallet(t)
	signer := NewPermitSigner(&fakeToken{hasPermit: true, nonce: 4, name: "USD Coin"}, wallet, zerolog.Nop())

	req := PermitRequest{
		ChainID:  137,
		Token:    common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"),
		Owner:    wallet.Owner(),
		Spender:  common.HexToAddress("0x1112dbcf805682e828606f74ab717abf4b4fd8de"),
		Value:    big.NewInt(100_000_000),
		Deadline: big.NewInt(1_900_000_000),
	}

	permit, err := signer.SignPermit(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, permit.Signature, 65)
	require.Contains(t, []uint8{27, 28}, permit.V)
	require.Equal(t, req.Deadline, permit.Deadline)

	// version() reverted so the domain falls back to "1"
	hash, _, err := apitypes.TypedDataAndHash(PermitTypedData(req, "USD Coin", "1", big.NewInt(4)))
	require.NoError(t, err)

	sig := append([]byte{}, permit.Signature...)
	sig[64] -= 27
	pub, err := crypto.SigToPub(hash, sig)
	require.NoError(t, err)
	require.Equal(t, wallet.Owner(), crypto.PubkeyToAddress(*pub))
}
