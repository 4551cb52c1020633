package natsengine

import "context"

// TableID identifies a table in the host database. The engine treats it as
// opaque.
type TableID string

// Table is the minimal view of a table the engine needs from the host
// database's catalog: enough to target an INSERT at it.
type Table struct {
	ID     TableID
	Schema string
	Name   string
}

// Catalog is the server-wide collaborator the engine consults to discover
// materialized views depending on its table, and to resolve a table by ID.
// SPEC_FULL.md §9 models the excerpt's DatabaseCatalog::instance() singleton
// as this injected interface instead of process-wide mutable state.
type Catalog interface {
	// DependentViews lists the tables depending on tableID as an insert
	// destination (materialized views reading from this engine's table).
	DependentViews(ctx context.Context, tableID TableID) ([]TableID, error)

	// Table resolves a table by ID. The second return value is false if no
	// such table exists.
	Table(ctx context.Context, id TableID) (Table, bool, error)
}

// ViewSink is the destination side of the streaming driver: it delivers a
// block of rows to a dependent view's own insert pipeline. SPEC_FULL.md §1
// places the host database's query/insert execution machinery out of scope;
// this interface is the narrow contract the streaming driver needs from it.
type ViewSink interface {
	InsertBatch(ctx context.Context, view TableID, rows []map[string]any) error
}
