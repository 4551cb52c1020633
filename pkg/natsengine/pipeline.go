package natsengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dorki/natsengine/pkg/natsengine/format"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Source yields blocks of rows (each row already carrying its virtual
// columns) to a caller's query pipeline. Next returns once it has collected
// its block size of rows, the per-call time budget elapses, or ctx is done;
// the block it returns may be empty. Close must
// be called once the caller is done reading, releasing any leased consumer
// back to its pool (SPEC_FULL.md §4.3).
type Source interface {
	Next(ctx context.Context) ([]map[string]any, error)
	Close()
}

// Sink accepts rows for publish, batching internally up to a configured
// row count per message.
type Sink interface {
	WriteRow(row map[string]any) error
	Close() error
}

// consumerSource drains one consumer's queue into parsed rows, applying the
// engine's configured format and error-handling mode. When pool is set, the
// source holds a lease on c (per SPEC_FULL.md §4.3) and Close returns it.
type consumerSource struct {
	c          *consumer
	pool       *consumerPool
	rowFormat  format.RowFormat
	logger     *zap.SugaredLogger
	errMode    HandleErrorMode
	skipBudget int64
	maxRows    int
	timeBudget time.Duration
	table      string
}

// Next drains up to maxRows messages from the consumer's queue within
// timeBudget, returning parsed+virtual-column-augmented rows.
func (s *consumerSource) Next(ctx context.Context) ([]map[string]any, error) {
	deadline := time.Now().Add(s.timeBudget)
	rows := make([]map[string]any, 0, 64)
	skipped := int64(0)

	for len(rows) < s.maxRows {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		var msg *nats.Msg
		select {
		case msg = <-s.c.queue:
		case <-ctx.Done():
			return rows, ctx.Err()
		case <-time.After(remaining):
			return rows, nil
		}

		parsed, err := s.rowFormat.Parse(msg.Data, format.ParseOptions{})
		if err != nil {
			if errors.Is(err, format.ErrUnimplemented) {
				return rows, fmt.Errorf("%w: %v", ErrFormatUnimplemented, err)
			}
			parseErrorsTotal.WithLabelValues(s.table, string(s.errMode)).Inc()
			if s.errMode == HandleErrorModeStream {
				rows = append(rows, format.Row{
					Subject:    msg.Subject,
					RawMessage: msg.Data,
					ParseError: err.Error(),
				}.WithVirtualColumns(true))
				continue
			}
			// DEFAULT mode: tolerate up to skipBudget parse failures per
			// pass, then fail it.
			skipped++
			if skipped > s.skipBudget {
				return rows, fmt.Errorf("parse message on %q: %w", msg.Subject, err)
			}
			if s.logger != nil {
				s.logger.Warnw("skipping broken message", "subject", msg.Subject, "error", err)
			}
			continue
		}

		for _, r := range parsed {
			r.Subject = msg.Subject
			rows = append(rows, r.WithVirtualColumns(s.errMode == HandleErrorModeStream))
		}
	}

	return rows, nil
}

// Close returns the leased consumer to its pool, if any.
func (s *consumerSource) Close() {
	if s.pool != nil {
		s.pool.pushConsumer(s.c)
	}
}

// unionSource unites per-consumer sources into a single pipe, mirroring the
// "unite the sources into one pipe" step of the streaming task and the
// "unites into one pipe" step of the read façade.
type unionSource struct {
	sources []Source
}

func (u *unionSource) Next(ctx context.Context) ([]map[string]any, error) {
	var all []map[string]any
	for _, s := range u.sources {
		rows, err := s.Next(ctx)
		if err != nil {
			return all, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

func (u *unionSource) Close() {
	for _, s := range u.sources {
		s.Close()
	}
}

// emptySource is appended when a read façade resolves to zero consumer
// sources, per SPEC_FULL.md §4.5.
type emptySource struct{}

func (emptySource) Next(context.Context) ([]map[string]any, error) { return nil, nil }
func (emptySource) Close()                                         {}

// publishSink batches rows and publishes them through pub, up to
// maxRowsPerMessage rows per message.
type publishSink struct {
	pub               *publisher
	rowFormat         format.RowFormat
	buf               []format.Row
	maxRowsPerMessage int
}

func newPublishSink(pub *publisher, rowFormat format.RowFormat, maxRowsPerMessage int) *publishSink {
	if maxRowsPerMessage < 1 {
		maxRowsPerMessage = 1
	}
	return &publishSink{pub: pub, rowFormat: rowFormat, maxRowsPerMessage: maxRowsPerMessage}
}

func (s *publishSink) WriteRow(row map[string]any) error {
	s.buf = append(s.buf, format.Row{Values: row})
	if len(s.buf) >= s.maxRowsPerMessage {
		return s.flush()
	}
	return nil
}

func (s *publishSink) flush() error {
	if len(s.buf) == 0 {
		return nil
	}
	data, err := s.rowFormat.Format(s.buf)
	if err != nil {
		if errors.Is(err, format.ErrUnimplemented) {
			return fmt.Errorf("%w: %v", ErrFormatUnimplemented, err)
		}
		return fmt.Errorf("format rows for publish: %w", err)
	}
	s.buf = s.buf[:0]
	return s.pub.Publish(data)
}

func (s *publishSink) Close() error {
	if err := s.flush(); err != nil {
		s.pub.conn.Disconnect()
		return err
	}
	s.pub.conn.Disconnect()
	return nil
}
