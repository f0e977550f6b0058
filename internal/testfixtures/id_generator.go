package testfixtures

import (
	"fmt"
	"sync"
)

// ShadowNames produces deterministic rebuild shadow table names for tests.
type ShadowNames struct {
	mu      sync.Mutex
	counter uint64
	issued  []string
}

// NewShadowNames constructs an empty shadow name sequence.
func NewShadowNames() *ShadowNames {
	return &ShadowNames{}
}

// Next returns the next shadow name for table and records it.
func (g *ShadowNames) Next(table string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	name := fmt.Sprintf("%s__shadow_%d", table, g.counter)
	g.issued = append(g.issued, name)
	return name
}

// NextFunc exposes Next as a function suitable for dependency injection.
func (g *ShadowNames) NextFunc() func(table string) string {
	return g.Next
}

// Issued returns every name handed out so far, in order.
func (g *ShadowNames) Issued() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.issued...)
}

// Count reports how many names have been handed out, which equals the
// number of rebuilds started with this sequence.
func (g *ShadowNames) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.issued)
}
