package solver

import (
	"vault-zap/pkg/classifier"
	"vault-zap/pkg/configuration"
	"vault-zap/pkg/types"
)

// DepositRequest derives the solver request of a deposit configuration. The
// input is compared with the vault underlying token and the vault chain.
func DepositRequest(cfg configuration.DepositConfiguration) Request {
	req := Request{Action: Deposit, Input: cfg.Asset, Vault: cfg.Opportunity}
	if cfg.Asset.Token == nil || cfg.Opportunity == nil {
		return req
	}

	input := cfg.Asset.Token.Address
	underlying := cfg.Opportunity.Token.Address
	req.IsZapNeeded = classifier.IsZapNeeded(&input, &underlying)
	req.IsBridgeNeeded = classifier.IsBridgeNeeded(cfg.Asset.Token.ChainID, cfg.Opportunity.ChainID)
	return req
}

// WithdrawRequest derives the solver request of a withdraw configuration.
// The input is the vault share token; a zap is needed when the token to
// receive is not the vault underlying token. Withdrawals never bridge.
func WithdrawRequest(cfg configuration.WithdrawConfiguration) Request {
	req := Request{Action: Withdraw, Input: cfg.Asset, Vault: cfg.Vault, Output: cfg.TokenToReceive}
	if req.Input.Token == nil && cfg.Vault != nil {
		shares := cfg.Vault.AsToken()
		req.Input.Token = &shares
	}
	if cfg.TokenToReceive == nil {
		return req
	}

	var from *types.Token
	if cfg.Vault != nil {
		from = &cfg.Vault.Token
	} else {
		from = cfg.Asset.Token
	}
	if from != nil {
		a, b := from.Address, cfg.TokenToReceive.Address
		req.IsZapNeeded = classifier.IsZapNeeded(&a, &b)
	}
	return req
}

// BindDeposit keeps the selector in sync with a deposit form
func BindDeposit(form *configuration.DepositForm, s *Selector) {
	s.Update(DepositRequest(form.State()))
	form.Subscribe(func(cfg configuration.DepositConfiguration) {
		s.Update(DepositRequest(cfg))
	})
}

// BindWithdraw keeps the selector in sync with a withdraw form
func BindWithdraw(form *configuration.WithdrawForm, s *Selector) {
	s.Update(WithdrawRequest(form.State()))
	form.Subscribe(func(cfg configuration.WithdrawConfiguration) {
		s.Update(WithdrawRequest(cfg))
	})
}
