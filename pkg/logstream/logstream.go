// Package logstream implements the Log Channel (spec.md §4.9, component
// C9): a broadcast stream of structured execution events. Multiple
// subscribers read concurrently; a slow consumer's bounded ring drops its
// oldest record rather than blocking the producer. The subscribe/unsubscribe
// shape is grounded on the teacher's pkg/monitor.HTTPMonitor, generalized
// from a single unbounded history slice to one bounded ring per subscriber
// so a slow reader cannot grow memory without bound.
package logstream

import (
	"sync"
	"time"
)

// Level is the severity of a Record.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelDebug   Level = "debug"
)

// Record is one event on the Log Channel.
type Record struct {
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	ActionID  int64          `json:"action_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Channel is a many-producer/many-consumer broadcast stream of Records.
type Channel struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	depth       int
}

type subscriber struct {
	ch chan Record
}

// DefaultDepth is the ring depth used when NewChannel is given depth <= 0.
const DefaultDepth = 256

// NewChannel creates a Log Channel whose subscribers each buffer up to
// depth records before dropping the oldest unread one.
func NewChannel(depth int) *Channel {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Channel{
		subscribers: make(map[*subscriber]struct{}),
		depth:       depth,
	}
}

// Subscribe registers a new listener and returns a receive-only channel of
// Records plus an Unsubscribe function. The returned channel is closed by
// Unsubscribe; callers must not range over it without eventually calling
// Unsubscribe or it leaks.
func (c *Channel) Subscribe() (<-chan Record, func()) {
	sub := &subscriber{ch: make(chan Record, c.depth)}
	c.mu.Lock()
	c.subscribers[sub] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, sub)
			c.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, unsubscribe
}

// Publish broadcasts rec to every current subscriber. A subscriber whose
// buffer is full has its oldest unread record dropped to make room
// (drop-oldest backpressure policy, spec.md §4.9); Publish itself never
// blocks.
func (c *Channel) Publish(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for sub := range c.subscribers {
		c.sendOrDropOldest(sub, rec)
	}
}

func (c *Channel) sendOrDropOldest(sub *subscriber, rec Record) {
	select {
	case sub.ch <- rec:
		return
	default:
	}
	// Buffer full: drop the oldest queued record, then try again. If a
	// concurrent reader drained one first, the non-blocking send below
	// still succeeds; if the buffer is somehow full again, give up rather
	// than spin, preserving the "never blocks" guarantee for Publish.
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- rec:
	default:
	}
}

// Info publishes a LevelInfo record.
func (c *Channel) Info(actionID int64, message string, fields map[string]any) {
	c.Publish(Record{Level: LevelInfo, ActionID: actionID, Message: message, Fields: fields})
}

// Success publishes a LevelSuccess record.
func (c *Channel) Success(actionID int64, message string, fields map[string]any) {
	c.Publish(Record{Level: LevelSuccess, ActionID: actionID, Message: message, Fields: fields})
}

// Warning publishes a LevelWarning record.
func (c *Channel) Warning(actionID int64, message string, fields map[string]any) {
	c.Publish(Record{Level: LevelWarning, ActionID: actionID, Message: message, Fields: fields})
}

// Error publishes a LevelError record. err's LogFields (if any) are merged
// into the record's Fields so diagnosing a failure never requires
// re-parsing err.Error() (spec.md §7).
func (c *Channel) Error(actionID int64, message string, err error) {
	fields := map[string]any{}
	if fl, ok := err.(interface{ LogFields() map[string]any }); ok {
		for k, v := range fl.LogFields() {
			fields[k] = v
		}
	} else if err != nil {
		fields["error"] = err.Error()
	}
	c.Publish(Record{Level: LevelError, ActionID: actionID, Message: message, Fields: fields})
}

// Debug publishes a LevelDebug record.
func (c *Channel) Debug(actionID int64, message string, fields map[string]any) {
	c.Publish(Record{Level: LevelDebug, ActionID: actionID, Message: message, Fields: fields})
}
