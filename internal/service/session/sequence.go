package session

import (
	"sync/atomic"

	"ai-speaking-practice/internal/models"
)

// Sequence hands out strictly increasing turn IDs above the greeting ID.
type Sequence struct {
	counter atomic.Int64
}

// NewSequence returns a sequence whose first ID is models.GreetingTurnID+1.
func NewSequence() *Sequence {
	s := &Sequence{}
	s.counter.Store(models.GreetingTurnID)
	return s
}

// Next returns the next turn ID.
func (s *Sequence) Next() int64 {
	return s.counter.Add(1)
}
