package natsengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionSettings carries the per-query knobs a caller supplies, mirroring
// the excerpt's own session settings that gate direct SELECT and disambiguate
// the insert target of a multi-subject table.
type SessionSettings struct {
	// AllowDirectSelect must be true for Read to succeed while no view is
	// attached; it models stream_like_engine_allow_direct_select.
	AllowDirectSelect bool

	// InsertSubject selects which of the table's subjects a Write targets,
	// required whenever the table declares more than one subject; it
	// models stream_like_engine_insert_queue.
	InsertSubject string

	// MaxInsertBlockSize is the session's max_insert_block_size, divided
	// among the table's consumers by getMaxBlockSize when nats_max_block_size
	// is unset; it models the session setting of the same name (§6).
	MaxInsertBlockSize int

	// FlushInterval is the session's stream_flush_interval_ms, used as the
	// per-pass time budget when nats_flush_interval_ms is unset (§4.4, §6).
	FlushInterval time.Duration
}

// Read builds a Source over the table's consumer pool for a direct SELECT.
// It is only permitted while no materialized view depends on this table:
// once one does, the streaming driver owns the consumers and Read must fail
// with ErrQueryNotAllowed, per SPEC_FULL.md §4.5's mode invariant.
func (e *Engine) Read(ctx context.Context, session SessionSettings) (Source, error) {
	if e.mvAttached.Load() {
		return nil, fmt.Errorf("%w: table has attached materialized views", ErrQueryNotAllowed)
	}
	if !session.AllowDirectSelect {
		return nil, fmt.Errorf("%w: direct select is disabled for this session", ErrQueryNotAllowed)
	}

	conn := e.currentConn()
	if conn == nil || !conn.IsConnected() {
		select {
		case result := <-e.loop.createConnection(e.cfg, true):
			if result.err != nil {
				return nil, result.err
			}
			e.connMu.Lock()
			e.conn = result.conn
			conn = result.conn
			e.connMu.Unlock()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if e.pool.numCreatedConsumers() == 0 {
		if n := e.pool.createConsumers(e.cfg, conn); n == 0 {
			return nil, fmt.Errorf("%w: failed to create consumers", ErrConnectError)
		}
	}

	// A direct SELECT leaves the pool subscribed afterward rather than
	// tearing it down: an open subscription is cheap, and the streaming
	// driver may attach and reuse it moments later.
	if !e.pool.isSubscribed() {
		if !e.pool.subscribeConsumers() {
			return nil, fmt.Errorf("%w: failed to subscribe consumers", ErrConnectError)
		}
	}

	// Lease every consumer from the pool's free-list (SPEC_FULL.md §4.3):
	// the mode invariant above guarantees no streaming task holds any of
	// them while a direct SELECT is permitted, so the whole pool is free to
	// take. The caller must Close() the returned Source to release them.
	total := e.pool.numCreatedConsumers()
	if total == 0 {
		return emptySource{}, nil
	}

	leased := make([]*consumer, 0, total)
	for i := 0; i < total; i++ {
		c, err := e.pool.popConsumer(ctx, e.cfg.getFlushInterval(session.FlushInterval))
		if err != nil {
			for _, l := range leased {
				e.pool.pushConsumer(l)
			}
			return nil, fmt.Errorf("%w: lease consumer: %v", ErrConnectError, err)
		}
		leased = append(leased, c)
	}

	sources := make([]Source, 0, len(leased))
	for _, c := range leased {
		sources = append(sources, &consumerSource{
			c:          c,
			pool:       e.pool,
			rowFormat:  e.rowFormat,
			logger:     e.logger.Sugar(),
			errMode:    e.cfg.HandleErrorMode,
			skipBudget: e.cfg.SkipBrokenMessages,
			maxRows:    e.cfg.getMaxBlockSize(session.MaxInsertBlockSize),
			timeBudget: e.cfg.getFlushInterval(session.FlushInterval),
			table:      string(e.tableID),
		})
	}
	return &unionSource{sources: sources}, nil
}

// Write resolves the table's insert target and returns a Sink bound to a
// fresh, non-startup connection held open for the lifetime of the caller's
// insert, per SPEC_FULL.md's supplemented feature #4.
func (e *Engine) Write(ctx context.Context, session SessionSettings) (Sink, error) {
	subject, err := e.resolveInsertSubject(session)
	if err != nil {
		return nil, err
	}

	writeID := uuid.New().String()
	select {
	case result := <-e.loop.createConnection(e.cfg, false):
		if result.err != nil {
			return nil, result.err
		}
		e.logger.Debug("write: opened publisher connection",
			zap.String("writeId", writeID), zap.String("subject", subject))
		return newPublishSink(&publisher{conn: result.conn, subject: subject}, e.rowFormat, e.cfg.MaxRowsPerMessage), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) resolveInsertSubject(session SessionSettings) (string, error) {
	subject := session.InsertSubject
	if subject == "" {
		if len(e.cfg.Subjects) != 1 {
			return "", fmt.Errorf("%w: table declares %d subjects, insert target is ambiguous", ErrArgCount, len(e.cfg.Subjects))
		}
		subject = e.cfg.Subjects[0]
	}

	if isWildcardSubject(subject) {
		return "", fmt.Errorf("%w: cannot publish to wildcard subject %q", ErrBadArguments, subject)
	}
	if !MatchesSubject(subject, e.cfg.Subjects) {
		return "", fmt.Errorf("%w: subject %q is not declared on this table", ErrBadArguments, subject)
	}
	return subject, nil
}
