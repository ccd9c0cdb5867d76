package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxStatus is the state of a single logical operation (approve, deposit, withdraw)
type TxStatus string

const (
	TxNone    TxStatus = "none"
	TxPending TxStatus = "pending"
	TxSuccess TxStatus = "success"
	TxError   TxStatus = "error"
)

func (s TxStatus) IsNone() bool    { return s == "" || s == TxNone }
func (s TxStatus) IsPending() bool { return s == TxPending }
func (s TxStatus) IsSuccess() bool { return s == TxSuccess }
func (s TxStatus) IsError() bool   { return s == TxError }

// TxRequest is a transaction to be signed and sent by the wallet
type TxRequest struct {
	ChainID  uint64
	To       common.Address
	Data     []byte
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
}

// BatchCall is a single call inside an atomic multisig batch
type BatchCall struct {
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
	Data  []byte         `json:"data"`
}

// PermitSignature is an EIP-2612 authorization that replaces an approve transaction
type PermitSignature struct {
	V         uint8
	R         [32]byte
	S         [32]byte
	Deadline  *big.Int
	Signature []byte
}
