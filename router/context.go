/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package router

import "sync"

// Context is the small per-connection key/value store the teacher's
// stream type carries (router.Context, set via s.ctx.SetString/SetBool/
// SetObject and read back with String/Bool/Object). Because the scheduling
// model is single-threaded per connection (spec.md §5), the mutex here
// guards only against the rare cross-goroutine read (e.g. a route callback
// invoked from a different connection's dispatch inspecting a target
// stream's context).
type Context struct {
	mu          sync.RWMutex
	vars        map[string]interface{}
	terminated  bool
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{vars: make(map[string]interface{})}
}

func (c *Context) SetString(v, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[key] = v
}

func (c *Context) String(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.vars[key].(string); ok {
		return v
	}
	return ""
}

func (c *Context) SetBool(v bool, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[key] = v
}

func (c *Context) Bool(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.vars[key].(bool); ok {
		return v
	}
	return false
}

func (c *Context) SetObject(v interface{}, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[key] = v
}

func (c *Context) Object(key string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vars[key]
}

// Terminate marks the context as belonging to a torn-down connection. It is
// idempotent, matching spec.md §8's "double-shutdown of a connection is a
// no-op, not a crash".
func (c *Context) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminated = true
}

// Terminated reports whether Terminate has already run.
func (c *Context) Terminated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.terminated
}
