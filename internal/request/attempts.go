package request

import "sync"

// attemptCounter tracks how often each interceptor has run since the last
// successful response.
type attemptCounter struct {
	mu     sync.Mutex
	counts map[int]int
}

func newAttemptCounter() *attemptCounter {
	return &attemptCounter{counts: make(map[int]int)}
}

// next returns the current count for interceptor i and increments it.
func (a *attemptCounter) next(i int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.counts[i]
	a.counts[i] = n + 1
	return n
}

func (a *attemptCounter) reset() {
	a.mu.Lock()
	a.counts = make(map[int]int)
	a.mu.Unlock()
}

func (a *attemptCounter) snapshot() map[int]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[int]int, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}
