package chain

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"vault-zap/pkg/types"
)

// ERC20 approve/allowance plus the EIP-2612 reads needed to build a permit
const erc20ABI = `[
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"nonces","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
{"constant":true,"inputs":[],"name":"version","outputs":[{"name":"","type":"string"}],"type":"function"},
{"constant":true,"inputs":[],"name":"DOMAIN_SEPARATOR","outputs":[{"name":"","type":"bytes32"}],"type":"function"}
]`

// V3 vaults are ERC-4626 with a max loss aware redeem
const vaultV3ABI = `[
{"inputs":[{"name":"assets","type":"uint256"},{"name":"receiver","type":"address"}],"name":"deposit","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"shares","type":"uint256"},{"name":"receiver","type":"address"},{"name":"owner","type":"address"},{"name":"max_loss","type":"uint256"}],"name":"redeem","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

const vaultLegacyABI = `[
{"inputs":[{"name":"amount","type":"uint256"}],"name":"deposit","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"maxShares","type":"uint256"}],"name":"withdraw","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

const routerABI = `[
{"inputs":[{"name":"token","type":"address"},{"name":"value","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],"name":"selfPermit","outputs":[],"stateMutability":"payable","type":"function"},
{"inputs":[{"name":"vault","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"},{"name":"minSharesOut","type":"uint256"}],"name":"depositToVault","outputs":[{"name":"","type":"uint256"}],"stateMutability":"payable","type":"function"},
{"inputs":[{"name":"data","type":"bytes[]"}],"name":"multicall","outputs":[{"name":"results","type":"bytes[]"}],"stateMutability":"payable","type":"function"}
]`

const multiSendABI = `[
{"inputs":[{"name":"transactions","type":"bytes"}],"name":"multiSend","outputs":[],"stateMutability":"payable","type":"function"}
]`

var (
	erc20     = mustParse(erc20ABI)
	vaultV3   = mustParse(vaultV3ABI)
	vaultV2   = mustParse(vaultLegacyABI)
	router    = mustParse(routerABI)
	multiSend = mustParse(multiSendABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI definition: %v", err))
	}
	return parsed
}

// PackApprove encodes approve(spender, amount)
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve data: %w", err)
	}
	return data, nil
}

// PackAllowance encodes allowance(owner, spender)
func PackAllowance(owner, spender common.Address) ([]byte, error) {
	data, err := erc20.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance data: %w", err)
	}
	return data, nil
}

// PackVaultDeposit encodes the deposit entry point matching the vault version
func PackVaultDeposit(vault types.Vault, amount *big.Int, receiver common.Address) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if vault.IsV3() {
		data, err = vaultV3.Pack("deposit", amount, receiver)
	} else {
		data, err = vaultV2.Pack("deposit", amount)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pack deposit data: %w", err)
	}
	return data, nil
}

// PackDepositFor encodes deposit(uint256,address), the call LiFi runs on the destination chain
func PackDepositFor(amount *big.Int, receiver common.Address) ([]byte, error) {
	data, err := vaultV3.Pack("deposit", amount, receiver)
	if err != nil {
		return nil, fmt.Errorf("failed to pack deposit data: %w", err)
	}
	return data, nil
}

// PackRedeem encodes a V3 redeem with the given max loss in basis points
func PackRedeem(shares *big.Int, receiver, owner common.Address, maxLoss *big.Int) ([]byte, error) {
	data, err := vaultV3.Pack("redeem", shares, receiver, owner, maxLoss)
	if err != nil {
		return nil, fmt.Errorf("failed to pack redeem data: %w", err)
	}
	return data, nil
}

// PackWithdrawShares encodes a legacy vault withdraw(shares)
func PackWithdrawShares(shares *big.Int) ([]byte, error) {
	data, err := vaultV2.Pack("withdraw", shares)
	if err != nil {
		return nil, fmt.Errorf("failed to pack withdraw data: %w", err)
	}
	return data, nil
}

// PackRouterPermitDeposit bundles selfPermit and depositToVault into one router multicall
func PackRouterPermitDeposit(token, vault, receiver common.Address, amount *big.Int, permit types.PermitSignature) ([]byte, error) {
	permitCall, err := router.Pack("selfPermit", token, amount, permit.Deadline, permit.V, permit.R, permit.S)
	if err != nil {
		return nil, fmt.Errorf("failed to pack selfPermit data: %w", err)
	}
	depositCall, err := router.Pack("depositToVault", vault, amount, receiver, big.NewInt(1))
	if err != nil {
		return nil, fmt.Errorf("failed to pack depositToVault data: %w", err)
	}
	data, err := router.Pack("multicall", [][]byte{permitCall, depositCall})
	if err != nil {
		return nil, fmt.Errorf("failed to pack multicall data: %w", err)
	}
	return data, nil
}

// PackMultiSend encodes calls for the MultiSendCallOnly contract. Every call
// is packed as operation(1) to(20) value(32) length(32) data.
func PackMultiSend(calls []types.BatchCall) ([]byte, error) {
	var encoded []byte
	for _, call := range calls {
		value := call.Value
		if value == nil {
			value = big.NewInt(0)
		}
		encoded = append(encoded, 0)
		encoded = append(encoded, call.To.Bytes()...)
		encoded = append(encoded, common.LeftPadBytes(value.Bytes(), 32)...)

		length := make([]byte, 32)
		binary.BigEndian.PutUint64(length[24:], uint64(len(call.Data)))
		encoded = append(encoded, length...)
		encoded = append(encoded, call.Data...)
	}

	data, err := multiSend.Pack("multiSend", encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to pack multiSend data: %w", err)
	}
	return data, nil
}

func unpackUint(method string, out []byte) (*big.Int, error) {
	values, err := erc20.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result", method)
	}
	return value, nil
}

func unpackString(method string, out []byte) (string, error) {
	values, err := erc20.Unpack(method, out)
	if err != nil {
		return "", fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	value, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected %s result", method)
	}
	return value, nil
}
