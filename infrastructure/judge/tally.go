package judge

import (
	"sync"

	"github.com/ahrav/go-pairank/internal/domain"
)

// Tally accumulates judge statistics. It is safe for concurrent use and may
// be shared between judges.
type Tally struct {
	mu    sync.Mutex
	stats domain.JudgeStats
}

// NewTally returns an empty tally labeled with model.
func NewTally(model string) *Tally {
	return &Tally{stats: domain.JudgeStats{Model: model}}
}

// Add folds one judgment into the totals.
func (t *Tally) Add(j domain.Judgment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = t.stats.Add(j)
}

// Stats returns a snapshot of the totals.
func (t *Tally) Stats() domain.JudgeStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Reset clears the totals but keeps the model label.
func (t *Tally) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = domain.JudgeStats{Model: t.stats.Model}
}

func (t *Tally) labelModel(model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stats.Model == "" {
		t.stats.Model = model
	}
}
