package solver

import "context"

// Phase is a step of Execute
type Phase string

const (
	PhaseApprove Phase = "approve"
	PhaseExecute Phase = "execute"
)

// Executor is the part of the Solver contract Execute drives. Selector and
// every solver implement it.
type Executor interface {
	Snapshot() Snapshot
	OnApprove(ctx context.Context, onSuccess func()) error
	OnExecuteDeposit(ctx context.Context, onSuccess func()) error
	OnExecuteWithdraw(ctx context.Context, onSuccess func()) error
}

// Execute approves when the snapshot is not approved yet, then deposits or
// withdraws. step wraps every phase that runs; nil runs them as they are.
func Execute(ctx context.Context, s Executor, action Action, step func(Phase, func() error) error) error {
	if step == nil {
		step = func(_ Phase, fn func() error) error { return fn() }
	}

	if !s.Snapshot().IsApproved {
		err := step(PhaseApprove, func() error {
			return s.OnApprove(ctx, nil)
		})
		if err != nil {
			return err
		}
		if !s.Snapshot().IsApproved {
			return ErrNotApproved
		}
	}

	return step(PhaseExecute, func() error {
		if action == Withdraw {
			return s.OnExecuteWithdraw(ctx, nil)
		}
		return s.OnExecuteDeposit(ctx, nil)
	})
}
