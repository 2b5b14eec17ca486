package orchestrator

import "sync"

// budget is the run-wide collection cap. A slot is reserved before a posting
// is fetched so that collected plus in-flight never exceeds the limit.
type budget struct {
	mu        sync.Mutex
	limit     int
	collected int
	inFlight  int
}

func newBudget(limit int) *budget {
	return &budget{limit: limit}
}

func (b *budget) reserve() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && b.collected+b.inFlight >= b.limit {
		return false
	}
	b.inFlight++
	return true
}

func (b *budget) commit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight--
	b.collected++
}

func (b *budget) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight--
}

func (b *budget) full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit > 0 && b.collected >= b.limit
}

func (b *budget) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.collected
}
