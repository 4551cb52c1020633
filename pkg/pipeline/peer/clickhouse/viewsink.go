package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/dorki/natsengine/pkg/natsengine"
)

// ViewSink adapts a ClickHouse connection to natsengine.ViewSink: each
// dependent view is a table with a single data JSON column, each row
// (virtual columns such as _subject included) marshalled into it whole,
// since the streaming driver has no column-level schema for the view beyond
// what its own catalog names.
type ViewSink struct {
	conn     driver.Conn
	database string
}

// NewViewSink builds a ViewSink over peer's already-open connection.
func NewViewSink(peer *PeerClickHouse) *ViewSink {
	return &ViewSink{conn: peer.Conn(), database: peer.Database()}
}

// InsertBatch implements natsengine.ViewSink. Rows are inserted one
// statement per row: the excerpt this engine is modeled on also inserts
// synchronously and without squashing across views, so batching here would
// only reorder the write, not speed up the network round trip meaningfully
// for the row counts this engine's block size targets.
func (s *ViewSink) InsertBatch(ctx context.Context, view natsengine.TableID, rows []map[string]any) error {
	sql := fmt.Sprintf("INSERT INTO %s.%s (data) VALUES (?)", s.database, view)

	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal row for view %q: %w", view, err)
		}
		if err := s.conn.Exec(ctx, sql, data); err != nil {
			return fmt.Errorf("insert into view %q: %w", view, err)
		}
	}
	return nil
}
