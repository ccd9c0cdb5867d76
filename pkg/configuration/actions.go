// Package configuration holds the user entered deposit and withdraw state.
//
// Both configurations are driven by reducers: every change is expressed as an
// action and the reducer returns the next configuration, leaving the previous
// value untouched.
package configuration

import (
	"vault-zap/pkg/types"
)

// AssetPatch is a partial update of an AssetInput; nil fields are left as is
type AssetPatch struct {
	Token            *types.Token
	Amount           *string
	NormalizedAmount *types.NormalizedBN
	Validity         *types.Validity
	Status           *types.InputStatus
}

// Apply merges the patch into the given input
func (p AssetPatch) Apply(input types.AssetInput) types.AssetInput {
	if p.Token != nil {
		token := *p.Token
		input.Token = &token
	}
	if p.Amount != nil {
		input.Amount = *p.Amount
	}
	if p.NormalizedAmount != nil {
		input.NormalizedAmount = *p.NormalizedAmount
	}
	if p.Validity != nil {
		input.Validity = *p.Validity
	}
	if p.Status != nil {
		input.Status = *p.Status
	}
	return input
}

// DepositAction is an action accepted by the deposit reducer
type DepositAction interface {
	depositAction()
}

// WithdrawAction is an action accepted by the withdraw reducer
type WithdrawAction interface {
	withdrawAction()
}

// SetAsset merges a patch into the configuration asset
type SetAsset struct {
	Patch AssetPatch
}

// SetOpportunity selects the vault to deposit into
type SetOpportunity struct {
	Vault *types.Vault
}

// SetVault selects the vault to withdraw from
type SetVault struct {
	Vault *types.Vault
}

// SetTokenToReceive selects the token the withdraw should end in
type SetTokenToReceive struct {
	Token *types.Token
}

// SetConfiguration replaces the whole withdraw configuration
type SetConfiguration struct {
	Configuration WithdrawConfiguration
}

// Reset returns the configuration to its pristine state
type Reset struct{}

func (SetAsset) depositAction() {}
func (SetAsset) withdrawAction() {}
func (SetOpportunity) depositAction() {}
func (SetVault) withdrawAction() {}
func (SetTokenToReceive) withdrawAction() {}
func (SetConfiguration) withdrawAction() {}
func (Reset) depositAction() {}
func (Reset) withdrawAction() {}
