package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// NotificationStatus defines the state of a recorded operation
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSuccess NotificationStatus = "success"
	NotificationError   NotificationStatus = "error"
)

// IsTerminal returns true once the status can no longer change
func (s NotificationStatus) IsTerminal() bool {
	return s == NotificationSuccess || s == NotificationError
}

// NotificationType identifies the solver that produced the operation
type NotificationType string

const (
	NotificationVanilla       NotificationType = "vanilla"
	NotificationLifi          NotificationType = "lifi"
	NotificationPortals       NotificationType = "portals"
	NotificationPortalsGnosis NotificationType = "portals gnosis"
)

// Notification is a persisted record of a deposit or withdraw
type Notification struct {
	ID            int64              `json:"id"`
	Key           string             `json:"key"`
	From          common.Address     `json:"from"`
	FromAddress   common.Address     `json:"fromAddress"`
	FromChainID   uint64             `json:"fromChainId"`
	FromTokenName string             `json:"fromTokenName"`
	FromAmount    string             `json:"fromAmount"`
	ToAddress     common.Address     `json:"toAddress"`
	ToChainID     uint64             `json:"toChainId"`
	ToTokenName   string             `json:"toTokenName"`
	TimeFinished  int64              `json:"timeFinished"`
	Status        NotificationStatus `json:"status"`
	Type          NotificationType   `json:"type"`
	TxHash        string             `json:"txHash,omitempty"`
	SafeTxHash    string             `json:"safeTxHash,omitempty"`
	BlockNumber   uint64             `json:"blockNumber"`
}
