package comm

import (
	"sync/atomic"
)

// queueCapacity bounds the message FIFO. Post never blocks the engine; when
// the queue is full the newest message is dropped and counted.
const queueCapacity = 512

// Channel is shared between the engine goroutine and observers. Observers may
// set the termination flag at any time; the engine polls it while a script
// runs. Lifecycle messages flow the other way through a bounded FIFO.
type Channel struct {
	terminationRequested atomic.Bool
	queue                chan Message
	dropped              atomic.Uint64
}

// NewChannel creates an empty channel with the termination flag cleared.
func NewChannel() *Channel {
	return &Channel{
		queue: make(chan Message, queueCapacity),
	}
}

// RequestTermination asks the engine to abort the running script as soon as
// possible. Idempotent.
func (c *Channel) RequestTermination() {
	c.terminationRequested.Store(true)
}

// TerminationRequested reports whether an observer has requested termination.
func (c *Channel) TerminationRequested() bool {
	return c.terminationRequested.Load()
}

// Post enqueues a message without blocking. If the queue is full the message
// is dropped.
func (c *Channel) Post(msg Message) {
	select {
	case c.queue <- msg:
	default:
		c.dropped.Add(1)
	}
}

// TryReceive dequeues the oldest pending message, if any.
func (c *Channel) TryReceive() (Message, bool) {
	select {
	case msg := <-c.queue:
		return msg, true
	default:
		return Message{}, false
	}
}

// Pending returns the number of queued messages.
func (c *Channel) Pending() int {
	return len(c.queue)
}

// Dropped returns the number of messages discarded because the queue was full.
func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}
