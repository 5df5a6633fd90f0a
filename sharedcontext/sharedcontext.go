// Package sharedcontext implements the mutable scratchpad an ensemble run
// shares across every participating agent: a string-keyed data map, a
// FIFO-trimmed global history of messages, and a per-agent message log.
// Reads and writes are mutex-guarded so the parallel conductor can fan out
// concurrent appends safely.
package sharedcontext

import (
	"sync"
	"time"

	"github.com/hupe1980/conductormesh/message"
)

// DefaultMaxHistoryLength is the FIFO trim bound applied to the global
// history when a Context is constructed without an explicit override.
const DefaultMaxHistoryLength = 1000

// Snapshot is a pure value capturing a Context's full state at a point in
// time. It is safe to compare, marshal, or stash away for later restore.
type Snapshot struct {
	Data          map[string]any
	History       []message.Message
	AgentMessages map[string][]message.Message
	Timestamp     time.Time
}

// Context is the shared scratchpad threaded through a single ensemble run.
type Context struct {
	mu sync.RWMutex

	data             map[string]any
	history          []message.Message
	agentMessages    map[string][]message.Message
	maxHistoryLength int
}

// Option configures a Context at construction time.
type Option func(*Context)

// WithMaxHistoryLength overrides the FIFO trim bound for the global history.
func WithMaxHistoryLength(n int) Option {
	return func(c *Context) { c.maxHistoryLength = n }
}

// New constructs an empty Context.
func New(optFns ...Option) *Context {
	c := &Context{
		data:             make(map[string]any),
		agentMessages:    make(map[string][]message.Message),
		maxHistoryLength: DefaultMaxHistoryLength,
	}
	for _, fn := range optFns {
		fn(c)
	}
	return c
}

// Get returns the value stored under key and whether it was present.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// Set stores value under key, overwriting any prior value.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// Delete removes key from the data map, if present.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// AppendHistory appends msg to the global history, trimming the oldest
// entries FIFO once maxHistoryLength is exceeded.
func (c *Context) AppendHistory(msg message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, msg)
	if over := len(c.history) - c.maxHistoryLength; over > 0 {
		c.history = c.history[over:]
	}
}

// History returns a copy of the global history.
func (c *Context) History() []message.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]message.Message(nil), c.history...)
}

// AppendAgentMessage appends msg to agentID's per-agent message log.
func (c *Context) AppendAgentMessage(agentID string, msg message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentMessages[agentID] = append(c.agentMessages[agentID], msg)
}

// AgentMessages returns a copy of agentID's per-agent message log.
func (c *Context) AgentMessages(agentID string) []message.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]message.Message(nil), c.agentMessages[agentID]...)
}

// Snapshot returns a deep, independent copy of the Context's current state.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data := make(map[string]any, len(c.data))
	for k, v := range c.data {
		data[k] = v
	}

	agentMessages := make(map[string][]message.Message, len(c.agentMessages))
	for id, msgs := range c.agentMessages {
		agentMessages[id] = append([]message.Message(nil), msgs...)
	}

	return Snapshot{
		Data:          data,
		History:       append([]message.Message(nil), c.history...),
		AgentMessages: agentMessages,
		Timestamp:     time.Now(),
	}
}

// Restore replaces the Context's state with a deep copy of s. The stored
// Timestamp is not otherwise interpreted; restore/snapshot round-trip is
// equal modulo Timestamp.
func (c *Context) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		c.data[k] = v
	}

	c.history = append([]message.Message(nil), s.History...)

	c.agentMessages = make(map[string][]message.Message, len(s.AgentMessages))
	for id, msgs := range s.AgentMessages {
		c.agentMessages[id] = append([]message.Message(nil), msgs...)
	}
}

// Clone returns an independent deep copy of the Context: subsequent
// mutations to either the original or the clone are never visible in the
// other.
func (c *Context) Clone() *Context {
	clone := New(WithMaxHistoryLength(c.maxHistoryLength))
	clone.Restore(c.Snapshot())
	return clone
}
