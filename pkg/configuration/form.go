package configuration

import (
	"sync"
)

// Phase of a form between edits and a pending reset
type Phase string

const (
	Editing Phase = "editing"
	Closing Phase = "closing"
)

// Form owns a configuration and dispatches actions through its reducer.
//
// Resetting is split in two: BeginReset moves the form to Closing so a caller
// can finish whatever it shows on success, and CompleteReset applies the reset.
type Form[S any, A any] struct {
	mu        sync.Mutex
	state     S
	phase     Phase
	reduce    func(S, A) S
	reset     A
	listeners []func(S)
}

// DepositForm is the form backing a deposit
type DepositForm = Form[DepositConfiguration, DepositAction]

// WithdrawForm is the form backing a withdraw
type WithdrawForm = Form[WithdrawConfiguration, WithdrawAction]

// NewDepositForm creates an empty deposit form
func NewDepositForm() *DepositForm {
	return &DepositForm{
		state:  NewDepositConfiguration(),
		phase:  Editing,
		reduce: ReduceDeposit,
		reset:  Reset{},
	}
}

// NewWithdrawForm creates an empty withdraw form
func NewWithdrawForm() *WithdrawForm {
	return &WithdrawForm{
		state:  NewWithdrawConfiguration(),
		phase:  Editing,
		reduce: ReduceWithdraw,
		reset:  Reset{},
	}
}

// Subscribe registers a callback invoked with every new configuration
func (f *Form[S, A]) Subscribe(fn func(S)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

// Dispatch applies an action and notifies subscribers
func (f *Form[S, A]) Dispatch(action A) S {
	f.mu.Lock()
	f.state = f.reduce(f.state, action)
	state := f.state
	listeners := append([]func(S){}, f.listeners...)
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
	return state
}

// State returns the current configuration
func (f *Form[S, A]) State() S {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Phase returns the current phase
func (f *Form[S, A]) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

// IsClosing returns true between BeginReset and CompleteReset
func (f *Form[S, A]) IsClosing() bool {
	return f.Phase() == Closing
}

// BeginReset marks the form as closing without touching its state
func (f *Form[S, A]) BeginReset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phase = Closing
}

// CompleteReset applies the reset action and reopens the form for edits
func (f *Form[S, A]) CompleteReset() S {
	state := f.Dispatch(f.reset)

	f.mu.Lock()
	f.phase = Editing
	f.mu.Unlock()
	return state
}
