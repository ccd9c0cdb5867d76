package types

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NativeTokenAddress is the placeholder used for a chain's gas coin
var NativeTokenAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// MaxUint256 is used as the allowance of native coins, which never need approval
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// NormalizedBN holds a token amount in base units alongside its human readable forms
type NormalizedBN struct {
	Raw        *big.Int `json:"raw"`
	Normalized float64  `json:"normalized"`
	Display    string   `json:"display"`
}

// ZeroNormalizedBN returns an empty amount
func ZeroNormalizedBN() NormalizedBN {
	return NormalizedBN{Raw: big.NewInt(0), Normalized: 0, Display: "0"}
}

// ToNormalizedBN converts a base unit amount using the token decimals
func ToNormalizedBN(raw *big.Int, decimals int32) NormalizedBN {
	if raw == nil {
		return ZeroNormalizedBN()
	}
	d := decimal.NewFromBigInt(raw, -decimals)
	f, _ := d.Float64()
	return NormalizedBN{
		Raw:        new(big.Int).Set(raw),
		Normalized: f,
		Display:    d.String(),
	}
}

// RawOrZero never returns nil
func (n NormalizedBN) RawOrZero() *big.Int {
	if n.Raw == nil {
		return big.NewInt(0)
	}
	return n.Raw
}

// IsZero returns true if the amount is zero or unset
func (n NormalizedBN) IsZero() bool {
	return n.Raw == nil || n.Raw.Sign() == 0
}

// Covers returns true if n is at least the given base unit amount
func (n NormalizedBN) Covers(amount *big.Int) bool {
	if amount == nil {
		return true
	}
	return n.RawOrZero().Cmp(amount) >= 0
}

// Token describes an ERC-20 (or native coin) on a given chain
type Token struct {
	Address  common.Address `json:"address"`
	ChainID  uint64         `json:"chainId"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals int32          `json:"decimals"`
}

// IsNative returns true for the chain gas coin
func (t Token) IsNative() bool {
	return t.Address == NativeTokenAddress || t.Address == (common.Address{})
}

// Vault describes a yield vault as returned by the vault registry
type Vault struct {
	Address        common.Address  `json:"address"`
	ChainID        uint64          `json:"chainId"`
	Name           string          `json:"name"`
	Symbol         string          `json:"symbol"`
	Decimals       int32           `json:"decimals"`
	Version        string          `json:"version"`
	Token          Token           `json:"token"`
	StakingAddress *common.Address `json:"stakingAddress,omitempty"`
}

// IsV3 returns true for vaults versioned 3.x
func (v Vault) IsV3() bool {
	major, _, _ := strings.Cut(v.Version, ".")
	return major == "3"
}

// AsToken returns the vault share token
func (v Vault) AsToken() Token {
	return Token{
		Address:  v.Address,
		ChainID:  v.ChainID,
		Symbol:   v.Symbol,
		Name:     v.Name,
		Decimals: v.Decimals,
	}
}

// Validity of a user entered amount
type Validity string

const (
	Valid        Validity = "valid"
	Invalid      Validity = "invalid"
	Undetermined Validity = "undetermined"
)

// InputStatus tracks the lifecycle of an asset input
type InputStatus string

const (
	InputNone    InputStatus = "none"
	InputPending InputStatus = "pending"
	InputSuccess InputStatus = "success"
	InputError   InputStatus = "error"
)

// AssetInput is the user entered token and amount
type AssetInput struct {
	Token            *Token       `json:"token,omitempty"`
	Amount           string       `json:"amount"`
	NormalizedAmount NormalizedBN `json:"normalizedAmount"`
	Validity         Validity     `json:"validity"`
	Status           InputStatus  `json:"status"`
	RequestID        string       `json:"requestId"`
}

// NewInput creates an empty asset input with a fresh request ID
func NewInput() AssetInput {
	return AssetInput{
		Amount:           "",
		NormalizedAmount: ZeroNormalizedBN(),
		Validity:         Undetermined,
		Status:           InputNone,
		RequestID:        uuid.New().String(),
	}
}

// SpendAmount returns the base unit amount to spend
func (a AssetInput) SpendAmount() *big.Int {
	return a.NormalizedAmount.RawOrZero()
}

// HasAmount returns true when both the text and base unit amount are set
func (a AssetInput) HasAmount() bool {
	return a.Amount != "" && !a.NormalizedAmount.IsZero()
}
