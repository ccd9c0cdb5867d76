package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/rs/zerolog"

	"vault-zap/pkg/types"
)

// PermitRequest describes an EIP-2612 allowance to sign
type PermitRequest struct {
	ChainID  uint64
	Token    common.Address
	Owner    common.Address
	Spender  common.Address
	Value    *big.Int
	Deadline *big.Int
}

// PermitSigner checks tokens for EIP-2612 support and signs permits with the owner key
type PermitSigner struct {
	caller Caller
	signer HashSigner
	logger zerolog.Logger
}

// NewPermitSigner creates a permit signer
func NewPermitSigner(caller Caller, signer HashSigner, logger zerolog.Logger) *PermitSigner {
	return &PermitSigner{
		caller: caller,
		signer: signer,
		logger: logger.With().Str("component", "permit").Logger(),
	}
}

// IsPermitSupported returns true when the token exposes nonces and a domain separator.
// Lookup failures are reported as unsupported.
func (p *PermitSigner) IsPermitSupported(ctx context.Context, chainID uint64, token common.Address) bool {
	if token == types.NativeTokenAddress || token == (common.Address{}) {
		return false
	}
	if _, err := p.call(ctx, chainID, token, "DOMAIN_SEPARATOR"); err != nil {
		p.logger.Debug().Err(err).Str("token", token.Hex()).Msg("no domain separator")
		return false
	}
	if _, err := p.call(ctx, chainID, token, "nonces", p.signer.Owner()); err != nil {
		p.logger.Debug().Err(err).Str("token", token.Hex()).Msg("no permit nonces")
		return false
	}
	return true
}

// SignPermit signs an EIP-2612 permit for the request
func (p *PermitSigner) SignPermit(ctx context.Context, req PermitRequest) (*types.PermitSignature, error) {
	out, err := p.call(ctx, req.ChainID, req.Token, "nonces", req.Owner)
	if err != nil {
		return nil, err
	}
	nonce, err := unpackUint("nonces", out)
	if err != nil {
		return nil, err
	}

	out, err = p.call(ctx, req.ChainID, req.Token, "name")
	if err != nil {
		return nil, err
	}
	name, err := unpackString("name", out)
	if err != nil {
		return nil, err
	}

	version := "1"
	if out, err := p.call(ctx, req.ChainID, req.Token, "version"); err == nil {
		if v, err := unpackString("version", out); err == nil && v != "" {
			version = v
		}
	}

	typed := PermitTypedData(req, name, version, nonce)
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, fmt.Errorf("failed to hash permit: %w", err)
	}

	sig, err := p.signer.SignHash(hash)
	if err != nil {
		return nil, err
	}

	permit := &types.PermitSignature{
		V:         sig[64],
		Deadline:  new(big.Int).Set(req.Deadline),
		Signature: sig,
	}
	copy(permit.R[:], sig[:32])
	copy(permit.S[:], sig[32:64])

	p.logger.Info().
		Str("token", req.Token.Hex()).
		Str("spender", req.Spender.Hex()).
		Str("value", req.Value.String()).
		Msg("permit signed")
	return permit, nil
}

func (p *PermitSigner) call(ctx context.Context, chainID uint64, token common.Address, method string, args ...interface{}) ([]byte, error) {
	data, err := erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := p.caller.CallContract(ctx, chainID, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty %s result", method)
	}
	return out, nil
}

// PermitTypedData builds the EIP-712 payload of an EIP-2612 permit
func PermitTypedData(req PermitRequest, name, version string, nonce *big.Int) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Permit": {
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           math.NewHexOrDecimal256(int64(req.ChainID)),
			VerifyingContract: req.Token.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    req.Owner.Hex(),
			"spender":  req.Spender.Hex(),
			"value":    req.Value.String(),
			"nonce":    nonce.String(),
			"deadline": req.Deadline.String(),
		},
	}
}
