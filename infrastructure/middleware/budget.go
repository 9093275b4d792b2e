package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-pairank/internal/domain"
	"github.com/ahrav/go-pairank/internal/ports"
)

// Budget caps oracle usage. Zero means unlimited.
type Budget struct {
	MaxCalls int64   `koanf:"max_calls" validate:"gte=0"`
	MaxCost  float64 `koanf:"max_cost" validate:"gte=0"`
}

// Limited reports whether any limit is set.
func (b Budget) Limited() bool { return b.MaxCalls > 0 || b.MaxCost > 0 }

// BudgetUsage is the oracle consumption seen by a BudgetGuard.
type BudgetUsage struct {
	Calls     int64
	Cost      float64
	TokensIn  int64
	TokensOut int64
}

// BudgetObserver is notified around every guarded oracle call. PreCheck
// returns the context handed to the oracle and to PostCheck.
type BudgetObserver interface {
	PreCheck(ctx context.Context, usage BudgetUsage, budget Budget) context.Context
	PostCheck(ctx context.Context, usage BudgetUsage, budget Budget, elapsed time.Duration, err error)
}

// BudgetGuard is a ports.Oracle that stops calling through once its budget
// is spent. Exhaustion surfaces as domain.ErrBudgetExceeded, which the
// judge treats like any other transport failure.
type BudgetGuard struct {
	budget   Budget
	next     ports.Oracle
	observer BudgetObserver

	mu    sync.Mutex
	usage BudgetUsage
}

var _ ports.Oracle = (*BudgetGuard)(nil)

// NewBudgetGuard wraps next. observer may be nil.
func NewBudgetGuard(budget Budget, next ports.Oracle, observer BudgetObserver) (*BudgetGuard, error) {
	if next == nil {
		return nil, fmt.Errorf("%w: budget guard requires an oracle", domain.ErrInvalidConfiguration)
	}
	if budget.MaxCalls < 0 || budget.MaxCost < 0 {
		return nil, fmt.Errorf("%w: budget limits cannot be negative (max_calls=%d, max_cost=%g)",
			domain.ErrInvalidConfiguration, budget.MaxCalls, budget.MaxCost)
	}
	return &BudgetGuard{budget: budget, next: next, observer: observer}, nil
}

// Model implements ports.Oracle.
func (g *BudgetGuard) Model() string { return g.next.Model() }

// Usage returns the consumption so far.
func (g *BudgetGuard) Usage() BudgetUsage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage
}

// Reset clears the usage, starting a new budget window.
func (g *BudgetGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usage = BudgetUsage{}
}

func (g *BudgetGuard) exceeded(u BudgetUsage) error {
	if g.budget.MaxCalls > 0 && u.Calls >= g.budget.MaxCalls {
		return &domain.BudgetExceededError{LimitType: "calls", Limit: float64(g.budget.MaxCalls), Used: float64(u.Calls)}
	}
	if g.budget.MaxCost > 0 && u.Cost >= g.budget.MaxCost {
		return &domain.BudgetExceededError{LimitType: "cost", Limit: g.budget.MaxCost, Used: u.Cost}
	}
	return nil
}

// Query implements ports.Oracle. A call slot is reserved before calling
// through so concurrent callers cannot overrun MaxCalls.
func (g *BudgetGuard) Query(ctx context.Context, system, prompt string) (*ports.OracleResponse, error) {
	g.mu.Lock()
	before := g.usage
	err := g.exceeded(before)
	if err == nil {
		g.usage.Calls++
	}
	g.mu.Unlock()

	if g.observer != nil {
		ctx = g.observer.PreCheck(ctx, before, g.budget)
	}
	if err != nil {
		if g.observer != nil {
			g.observer.PostCheck(ctx, before, g.budget, 0, err)
		}
		return nil, err
	}

	start := time.Now()
	resp, err := g.next.Query(ctx, system, prompt)
	elapsed := time.Since(start)

	g.mu.Lock()
	if resp != nil {
		g.usage.Cost += resp.Cost
		g.usage.TokensIn += int64(resp.TokensIn)
		g.usage.TokensOut += int64(resp.TokensOut)
	}
	after := g.usage
	g.mu.Unlock()

	if g.observer != nil {
		g.observer.PostCheck(ctx, after, g.budget, elapsed, err)
	}
	return resp, err
}
