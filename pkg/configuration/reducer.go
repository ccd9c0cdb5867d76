package configuration

import (
	"vault-zap/pkg/types"
)

// DepositConfiguration is the state of the deposit form
type DepositConfiguration struct {
	Asset       types.AssetInput
	Opportunity *types.Vault
}

// WithdrawConfiguration is the state of the withdraw form
type WithdrawConfiguration struct {
	Asset          types.AssetInput
	Vault          *types.Vault
	TokenToReceive *types.Token
}

// NewDepositConfiguration returns an empty deposit configuration
func NewDepositConfiguration() DepositConfiguration {
	return DepositConfiguration{Asset: types.NewInput()}
}

// NewWithdrawConfiguration returns an empty withdraw configuration
func NewWithdrawConfiguration() WithdrawConfiguration {
	return WithdrawConfiguration{Asset: types.NewInput()}
}

// ReduceDeposit applies an action to a deposit configuration
func ReduceDeposit(state DepositConfiguration, action DepositAction) DepositConfiguration {
	switch a := action.(type) {
	case SetAsset:
		state.Asset = a.Patch.Apply(state.Asset)
		return state
	case SetOpportunity:
		state.Opportunity = copyVault(a.Vault)
		return state
	case Reset:
		return NewDepositConfiguration()
	default:
		return state
	}
}

// ReduceWithdraw applies an action to a withdraw configuration
func ReduceWithdraw(state WithdrawConfiguration, action WithdrawAction) WithdrawConfiguration {
	switch a := action.(type) {
	case SetAsset:
		state.Asset = a.Patch.Apply(state.Asset)
		return state
	case SetVault:
		state.Vault = copyVault(a.Vault)
		return state
	case SetTokenToReceive:
		if a.Token == nil {
			state.TokenToReceive = nil
			return state
		}
		token := *a.Token
		state.TokenToReceive = &token
		return state
	case SetConfiguration:
		return a.Configuration
	case Reset:
		return NewWithdrawConfiguration()
	default:
		return state
	}
}

func copyVault(v *types.Vault) *types.Vault {
	if v == nil {
		return nil
	}
	vault := *v
	return &vault
}
