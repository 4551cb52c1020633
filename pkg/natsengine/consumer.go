package natsengine

import (
	"fmt"
	"sync/atomic"

	"github.com/nats-io/nats.go"
)

// consumer is the triple (connection, subject list, queue group) described
// in SPEC_FULL.md §3. It owns one bounded multi-producer/single-consumer
// queue: nats.go delivers each subscribed subject's messages on its own
// internal goroutine (the producers); the streaming driver or read façade
// drains the queue from a single goroutine at a time (the consumer).
type consumer struct {
	conn       *connectionManager
	queue      chan *nats.Msg
	closeCh    chan struct{}
	subs       []*nats.Subscription
	subjects   []string
	queueGroup string
	index      int
	subscribed atomic.Bool
}

func newConsumer(index int, cfg Config, conn *connectionManager) *consumer {
	return &consumer{
		index:      index,
		subjects:   cfg.Subjects,
		queueGroup: cfg.QueueGroup,
		conn:       conn,
		queue:      make(chan *nats.Msg, cfg.queueCapacity()),
		closeCh:    make(chan struct{}),
	}
}

// subscribe subscribes to every declared subject under the shared queue
// group. On partial failure it unsubscribes whatever succeeded so far and
// returns an error: a consumer is either unsubscribed or subscribed to
// every subject in its list, never partially.
func (c *consumer) subscribe() error {
	if c.subscribed.Load() {
		return nil
	}

	var subs []*nats.Subscription
	for _, subject := range c.subjects {
		sub, err := c.conn.nc.QueueSubscribe(subject, c.queueGroup, c.handleMsg)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return fmt.Errorf("%w: subscribe consumer %d to %q: %v", ErrConnectError, c.index, subject, err)
		}
		subs = append(subs, sub)
	}

	c.subs = subs
	c.subscribed.Store(true)
	return nil
}

func (c *consumer) unsubscribe() {
	if !c.subscribed.Load() {
		return
	}
	for _, s := range c.subs {
		_ = s.Unsubscribe()
	}
	c.subs = nil
	c.subscribed.Store(false)
}

// handleMsg runs on a nats.go-owned goroutine. It only enqueues: no
// parsing or view insertion happens here, per SPEC_FULL.md §4.1.
func (c *consumer) handleMsg(m *nats.Msg) {
	select {
	case c.queue <- m:
	case <-c.closeCh:
	}
}

func (c *consumer) queueEmpty() bool {
	return len(c.queue) == 0
}

// stop unblocks any in-flight handleMsg send and marks the consumer
// unusable; called once, during shutdown.
func (c *consumer) stop() {
	select {
	case <-c.closeCh:
	default:
		close(c.closeCh)
	}
	c.unsubscribe()
}
