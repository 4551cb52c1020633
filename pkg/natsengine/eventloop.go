package natsengine

import "sync"

// connectResult is the outcome of an asynchronous createConnection call.
type connectResult struct {
	conn *connectionManager
	err  error
}

// eventLoopHost owns the dedicated goroutine that bounds one engine
// instance's broker-callback lifetime. Subscription callbacks registered
// against connections built through this host run on nats.go's own
// goroutines and only enqueue into consumer queues; no parsing or view
// insertion happens on them.
type eventLoopHost struct {
	tableID TableID
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func newEventLoopHost(tableID TableID) *eventLoopHost {
	return &eventLoopHost{tableID: tableID, stopCh: make(chan struct{})}
}

// runLoop starts the host's goroutine. It performs no work itself beyond
// living until stopLoop is called: nats.go dispatches subscription and
// connection-state callbacks on its own goroutines, so this loop's role is
// to bound the engine's callback-driven lifetime and give shutdown a single
// goroutine to join.
func (h *eventLoopHost) runLoop() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		<-h.stopCh
	}()
}

// stopLoop signals the loop to exit and waits for it to do so.
func (h *eventLoopHost) stopLoop() {
	h.once.Do(func() { close(h.stopCh) })
	h.wg.Wait()
}

// createConnection performs the (possibly slow, retried) handshake on a
// fresh goroutine and returns a future the caller can wait on with a select
// against context cancellation. startup selects bounded vs. unbounded
// reconnect policy, per SPEC_FULL.md's supplemented feature #1.
func (h *eventLoopHost) createConnection(cfg Config, startup bool) <-chan connectResult {
	out := make(chan connectResult, 1)
	go func() {
		nc, err := dial(cfg, startup, h.tableID)
		if err != nil {
			out <- connectResult{err: err}
			return
		}
		out <- connectResult{conn: &connectionManager{nc: nc, cfg: cfg}}
	}()
	return out
}
