// Package classifier decides which execution strategy a transfer needs.
package classifier

import (
	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies one of the three solvers
type Kind string

const (
	Vanilla Kind = "vanilla"
	Portals Kind = "portals"
	Lifi    Kind = "lifi"
)

// IsZapNeeded returns true when both tokens are known and differ.
// Addresses are compared as bytes, so hex casing is irrelevant.
func IsZapNeeded(input, output *common.Address) bool {
	if input == nil || output == nil {
		return false
	}
	return *input != *output
}

// IsBridgeNeeded returns true when both chains are known and differ
func IsBridgeNeeded(inputChainID, outputChainID uint64) bool {
	return inputChainID != 0 && outputChainID != 0 && inputChainID != outputChainID
}

// Select picks the solver for the given flags, bridge taking precedence over zap
func Select(isZapNeeded, isBridgeNeeded bool) Kind {
	if isBridgeNeeded {
		return Lifi
	}
	if isZapNeeded {
		return Portals
	}
	return Vanilla
}
