package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/dorki/natsengine/pkg/util"
)

// PeerClickHouse manages one ClickHouse connection, shared by every
// natsengine table's dependent-view sink (see ViewSink). Only the
// connection lifecycle survives from the peer this type is adapted from;
// the generic Pub/Sub connector interface it once implemented had no role
// once the CDC pipeline it belonged to was dropped from this tree.
type PeerClickHouse struct {
	conn   driver.Conn
	config *clickhouse.Options
}

// Conn exposes the underlying driver connection so other adapters in this
// package (e.g. ViewSink) can reuse it instead of opening a second one.
func (p *PeerClickHouse) Conn() driver.Conn {
	return p.conn
}

// Database returns the configured database name.
func (p *PeerClickHouse) Database() string {
	return p.config.Auth.Database
}

func (p *PeerClickHouse) Connect(config json.RawMessage) error {
	p.config = &clickhouse.Options{}

	if config != nil {
		if err := json.Unmarshal(config, p.config); err != nil {
			return fmt.Errorf("failed to parse ClickHouse config: %w", err)
		}
	}

	// Set values from environment variables or use defaults
	if len(p.config.Addr) == 0 {
		p.config.Addr = []string{util.GetEnvOrDefault("PGO_CLICKHOUSE_ADDR", "localhost:9000")}
	}
	if p.config.Auth.Database == "" {
		p.config.Auth.Database = util.GetEnvOrDefault("PGO_CLICKHOUSE_AUTH_DATABASE", "default")
	}
	if p.config.Auth.Username == "" {
		p.config.Auth.Username = util.GetEnvOrDefault("PGO_CLICKHOUSE_AUTH_USERNAME", "default")
	}
	if p.config.Auth.Password == "" {
		p.config.Auth.Password = util.GetEnvOrDefault("PGO_CLICKHOUSE_AUTH_PASSWORD", "")
	}

	// Create a new ClickHouse connection
	conn, err := clickhouse.Open(p.config)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	p.conn = conn
	return nil
}

func (p *PeerClickHouse) Disconnect() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
