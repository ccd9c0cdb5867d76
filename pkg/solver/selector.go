package solver

import (
	"context"
	"sync"

	"vault-zap/pkg/classifier"
)

// Selector holds one instance of every solver and forwards the Solver
// contract to the one the current request calls for. Every solver sees every
// request, so the idle ones drop their state and short circuit their fetches.
type Selector struct {
	mu     sync.RWMutex
	active Solver
	all    map[classifier.Kind]Solver
}

// NewSelector builds the three solvers over shared dependencies
func NewSelector(deps Deps) *Selector {
	return NewSelectorWith(NewVanilla(deps), NewPortals(deps), NewLiFi(deps))
}

// NewSelectorWith selects between the given solvers. Vanilla is active until
// the first update.
func NewSelectorWith(vanilla, portals, lifi Solver) *Selector {
	return &Selector{
		active: vanilla,
		all: map[classifier.Kind]Solver{
			classifier.Vanilla: vanilla,
			classifier.Portals: portals,
			classifier.Lifi:    lifi,
		},
	}
}

// Update forwards req to every solver and activates the one it calls for
func (s *Selector) Update(req Request) {
	kind := classifier.Select(req.IsZapNeeded, req.IsBridgeNeeded)
	for _, solver := range s.all {
		solver.Update(req)
	}

	s.mu.Lock()
	s.active = s.all[kind]
	s.mu.Unlock()
}

// Active returns the solver in use
func (s *Selector) Active() Solver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Solver returns the solver of the given kind
func (s *Selector) Solver(kind classifier.Kind) Solver {
	return s.all[kind]
}

func (s *Selector) Kind() classifier.Kind {
	return s.Active().Kind()
}

// Refresh runs the fetches of the active solver
func (s *Selector) Refresh(ctx context.Context) {
	s.Active().Refresh(ctx)
}

func (s *Selector) Snapshot() Snapshot {
	return s.Active().Snapshot()
}

func (s *Selector) OnApprove(ctx context.Context, onSuccess func()) error {
	return s.Active().OnApprove(ctx, onSuccess)
}

func (s *Selector) OnExecuteDeposit(ctx context.Context, onSuccess func()) error {
	return s.Active().OnExecuteDeposit(ctx, onSuccess)
}

func (s *Selector) OnExecuteWithdraw(ctx context.Context, onSuccess func()) error {
	return s.Active().OnExecuteWithdraw(ctx, onSuccess)
}

func (s *Selector) OnExecuteForGnosis(ctx context.Context, onSuccess func()) error {
	return s.Active().OnExecuteForGnosis(ctx, onSuccess)
}
