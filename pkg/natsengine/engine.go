package natsengine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dorki/natsengine/pkg/natsengine/format"
	"github.com/dorki/natsengine/pkg/natsengine/schedule"
	"go.uber.org/zap"
)

const (
	taskInitializer = "initializer"
	taskStreaming   = "streaming"

	// maxThreadWorkDuration bounds one streaming pass so a single engine
	// cannot starve the scheduler's other tasks, mirroring the excerpt's
	// own MAX_THREAD_WORK_DURATION_MS.
	maxThreadWorkDuration = 60 * time.Second

	initializerBackoff = time.Second
)

// viewAttachState is the state machine SPEC_FULL.md §4.4 names:
// Idle -> Connecting -> ConsumersReady -> Subscribed -> Idle.
type viewAttachState int32

const (
	stateIdle viewAttachState = iota
	stateConnecting
	stateConsumersReady
	stateSubscribed
)

// Engine exposes one NATS table's subjects as a queryable, writable table
// and, while any materialized view depends on it, streams messages into
// those views in the background.
type Engine struct {
	cfg       Config
	tableID   TableID
	catalog   Catalog
	views     ViewSink
	formats   *format.Registry
	sched     *schedule.Pool
	logger    *zap.Logger
	rowFormat format.RowFormat

	loop *eventLoopHost
	pool *consumerPool

	connMu sync.RWMutex
	conn   *connectionManager

	state          atomic.Int32
	shutdownCalled atomic.Bool
	mvAttached     atomic.Bool
}

// New builds an Engine for tableID. formats must already contain cfg.Format
// (New resolves it eagerly so a bad nats_format setting fails at
// construction, not on the first streaming pass).
func New(cfg Config, tableID TableID, catalog Catalog, views ViewSink, formats *format.Registry, sched *schedule.Pool, logger *zap.Logger) (*Engine, error) {
	rowFormat, err := formats.Lookup(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigError, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// nats_queue_group defaults to the table's own fully-qualified name, so
	// that a table's own consumer pool never competes with itself across
	// server restarts under an accidentally-shared empty group.
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = string(tableID)
	}

	e := &Engine{
		cfg:       cfg,
		tableID:   tableID,
		catalog:   catalog,
		views:     views,
		formats:   formats,
		sched:     sched,
		logger:    logger,
		rowFormat: rowFormat,
		loop:      newEventLoopHost(tableID),
		pool:      newConsumerPool(logger, cfg.NumConsumers),
	}
	return e, nil
}

// Start brings up the event loop and arms the initializer task. It does not
// block waiting for the first connection: that happens asynchronously, the
// way the excerpt's storage attaches immediately and connects in the
// background.
func (e *Engine) Start(context.Context) error {
	e.loop.runLoop()
	e.sched.Register(taskInitializer, e.initializerTask)
	e.sched.Register(taskStreaming, e.streamingTask)
	e.sched.Activate(taskInitializer, 0)
	return nil
}

// Shutdown follows SPEC_FULL.md §5's ordering: stop scheduling new task
// activations before tearing down the connection, so no task observes a
// half-closed connectionManager.
func (e *Engine) Shutdown(context.Context) error {
	e.shutdownCalled.Store(true)
	e.sched.Deactivate(taskStreaming)
	e.sched.Deactivate(taskInitializer)

	e.pool.unsubscribeConsumers()
	e.pool.stopAll()

	e.connMu.Lock()
	conn := e.conn
	e.conn = nil
	e.connMu.Unlock()
	if conn != nil {
		_ = conn.Flush()
		conn.Disconnect()
	}

	e.loop.stopLoop()
	e.state.Store(int32(stateIdle))
	e.mvAttached.Store(false)
	return nil
}

func (e *Engine) currentConn() *connectionManager {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	return e.conn
}

// initializerTask implements SPEC_FULL.md §4.4's initializer: ensure a
// connection, ensure the consumer pool exists, wait for at least one
// dependent view, then subscribe the whole pool before handing off to the
// streaming task.
func (e *Engine) initializerTask(ctx context.Context) schedule.Progress {
	if e.shutdownCalled.Load() {
		return schedule.ProgressDone
	}

	e.state.Store(int32(stateConnecting))

	conn := e.currentConn()
	if conn == nil || !conn.IsConnected() {
		select {
		case result := <-e.loop.createConnection(e.cfg, true):
			if result.err != nil {
				e.logger.Warn("initializer: connect failed", zap.Error(result.err))
				return schedule.ProgressRescheduleBackoff
			}
			e.connMu.Lock()
			e.conn = result.conn
			conn = result.conn
			e.connMu.Unlock()
		case <-ctx.Done():
			return schedule.ProgressDone
		}
	}

	if e.pool.numCreatedConsumers() == 0 {
		if n := e.pool.createConsumers(e.cfg, conn); n == 0 {
			e.logger.Warn("initializer: failed to create any consumers")
			return schedule.ProgressRescheduleBackoff
		}
	}

	views, err := e.catalog.DependentViews(ctx, e.tableID)
	if err != nil {
		e.logger.Warn("initializer: catalog lookup failed", zap.Error(err))
		return schedule.ProgressRescheduleBackoff
	}
	if len(views) == 0 {
		return schedule.ProgressRescheduleBackoff
	}

	e.state.Store(int32(stateConsumersReady))
	e.mvAttached.Store(true)

	if !e.pool.subscribeConsumers() {
		return schedule.ProgressRescheduleBackoff
	}

	e.state.Store(int32(stateSubscribed))
	e.sched.Activate(taskStreaming, 0)
	return schedule.ProgressDone
}

// streamingTask implements SPEC_FULL.md §4.4's streaming pass: drain every
// consumer's queue into the union of dependent views. It reschedules with no
// delay when it saw data (there may be more waiting) and with backoff
// otherwise, and it hands control back to the initializer once no view
// depends on this table any more.
func (e *Engine) streamingTask(ctx context.Context) schedule.Progress {
	if e.shutdownCalled.Load() {
		return schedule.ProgressDone
	}

	conn := e.currentConn()
	if conn == nil || !conn.IsConnected() {
		// Transient outage: leave subscriptions and mvAttached intact and just
		// reschedule, the way the original streamingToViewsFunc does
		// (StorageNATS.cpp:611,656-663). nats.go's MaxReconnects(-1) restores
		// this same *nats.Conn in the background; tearing state down here
		// would re-arm the initializer, which would dial a second connection
		// into e.conn without closing the first (violating the at-most-one
		// consumer connection invariant) while the pool's consumers stay
		// bound to the orphaned old conn.
		e.logger.Warn("streaming: connection lost, waiting for reconnect")
		return schedule.ProgressRescheduleBackoff
	}

	views, err := e.catalog.DependentViews(ctx, e.tableID)
	if err != nil {
		e.logger.Warn("streaming: catalog lookup failed", zap.Error(err))
		return schedule.ProgressRescheduleBackoff
	}
	if len(views) == 0 {
		e.pool.unsubscribeConsumers()
		e.mvAttached.Store(false)
		e.state.Store(int32(stateIdle))
		e.sched.Activate(taskInitializer, initializerBackoff)
		return schedule.ProgressDone
	}

	passStart := time.Now()
	deadline := passStart.Add(maxThreadWorkDuration)
	sawData := false

	for _, c := range e.pool.snapshot() {
		if time.Now().After(deadline) {
			break
		}
		src := &consumerSource{
			c:          c,
			rowFormat:  e.rowFormat,
			logger:     e.logger.Sugar(),
			errMode:    e.cfg.HandleErrorMode,
			skipBudget: e.cfg.SkipBrokenMessages,
			maxRows:    e.cfg.getMaxBlockSize(0),
			timeBudget: e.cfg.getFlushInterval(0),
			table:      string(e.tableID),
		}
		rows, err := src.Next(ctx)
		if err != nil {
			e.logger.Warn("streaming: consumer drain failed", zap.Int("consumer", c.index), zap.Error(err))
			continue
		}
		if len(rows) == 0 {
			continue
		}
		sawData = true
		messagesConsumedTotal.WithLabelValues(string(e.tableID)).Add(float64(len(rows)))

		for _, view := range views {
			if err := e.views.InsertBatch(ctx, view, rows); err != nil {
				e.logger.Warn("streaming: insert into view failed",
					zap.String("view", string(view)), zap.Error(err))
			}
		}
	}

	streamingPassDuration.WithLabelValues(string(e.tableID)).Observe(time.Since(passStart).Seconds())

	if !sawData {
		return schedule.ProgressRescheduleBackoff
	}
	return schedule.ProgressRescheduleNow
}
