// internal/notifications/decision/selector.go
package decision

import (
	"math/rand"
	"sync"
	"time"
)

// Selector picks one message from a non-empty bank. It only ever affects
// message copy, never titles or eligibility.
type Selector interface {
	Pick(bank []string) string
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(bank []string) string

func (f SelectorFunc) Pick(bank []string) string { return f(bank) }

// First always returns the first entry. Useful for deterministic tests.
var First = SelectorFunc(func(bank []string) string {
	if len(bank) == 0 {
		return ""
	}
	return bank[0]
})

type randomSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSelector returns a uniform selector over a seeded source.
func NewRandomSelector(seed int64) Selector {
	return &randomSelector{rng: rand.New(rand.NewSource(seed))}
}

// DefaultSelector is seeded from the clock at startup.
func DefaultSelector() Selector {
	return NewRandomSelector(time.Now().UnixNano())
}

func (s *randomSelector) Pick(bank []string) string {
	if len(bank) == 0 {
		return ""
	}
	s.mu.Lock()
	i := s.rng.Intn(len(bank))
	s.mu.Unlock()
	return bank[i]
}
