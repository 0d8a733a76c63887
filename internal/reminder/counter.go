package reminder

import "sync"

// activeCounter tracks how many ping loops are running process-wide.
// Every coordinator reads it to scale its own pacing delay, so mutation
// is serialized and reads take the shared lock.
type activeCounter struct {
	mu sync.RWMutex
	n  int
}

func (c *activeCounter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *activeCounter) dec() {
	c.mu.Lock()
	if c.n > 0 {
		c.n--
	}
	c.mu.Unlock()
}

func (c *activeCounter) get() int {
	c.mu.RLock()
	n := c.n
	c.mu.RUnlock()
	return n
}
