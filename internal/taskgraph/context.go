package taskgraph

import "sync"

// Context carries values between steps of one run. The engine stores each
// step's result under the step identifier; steps may also set their own keys.
// Reads and writes are safe from concurrently executing steps.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewContext returns an empty run context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// Set stores value under key, replacing any previous value.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.values[key]
	return value, ok
}

// GetString returns the value under key when it is a string.
func (c *Context) GetString(key string) (string, bool) {
	value, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}
