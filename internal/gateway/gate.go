package gateway

import (
	"sync"
	"time"
)

const (
	// Three wrong codes hang the call up.
	maxGateStrikes = 3

	// How long a locked call may sit without caller input before the
	// gateway hangs up.
	gateTimeout = 15 * time.Second
)

// callGate is the per-call unlock state. It implements agent.Gate.
type callGate struct {
	mu       sync.Mutex
	unlocked bool
	strikes  int
}

func newCallGate(unlocked bool) *callGate {
	return &callGate{unlocked: unlocked}
}

func (g *callGate) Unlocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlocked
}

func (g *callGate) Unlock() {
	g.mu.Lock()
	g.unlocked = true
	g.mu.Unlock()
}

func (g *callGate) RegisterFailure() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.strikes++
	return g.strikes
}

func (g *callGate) Strikes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.strikes
}

func (g *callGate) MaxStrikes() int {
	return maxGateStrikes
}
