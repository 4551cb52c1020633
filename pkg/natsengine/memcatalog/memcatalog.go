// Package memcatalog is an in-memory reference implementation of
// natsengine.Catalog, used by tests and by the CLI's demo subcommand. It is
// not a production catalog: the host database supplies the real one.
package memcatalog

import (
	"context"
	"sync"

	"github.com/dorki/natsengine/pkg/natsengine"
)

// Catalog is a named-map-under-mutex registry of tables and view
// dependency edges.
type Catalog struct {
	mu        sync.RWMutex
	tables    map[natsengine.TableID]natsengine.Table
	dependsOn map[natsengine.TableID][]natsengine.TableID // view -> source table
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{
		tables:    make(map[natsengine.TableID]natsengine.Table),
		dependsOn: make(map[natsengine.TableID][]natsengine.TableID),
	}
}

// AddTable registers t so it can be resolved by Table.
func (c *Catalog) AddTable(t natsengine.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[t.ID] = t
}

// AddDependency records that view depends on sourceTable as an insert
// destination.
func (c *Catalog) AddDependency(sourceTable, view natsengine.TableID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dependsOn[view] = append(c.dependsOn[view], sourceTable)
}

// RemoveDependency detaches view from sourceTable.
func (c *Catalog) RemoveDependency(sourceTable, view natsengine.TableID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	srcs := c.dependsOn[view]
	for i, s := range srcs {
		if s == sourceTable {
			c.dependsOn[view] = append(srcs[:i], srcs[i+1:]...)
			break
		}
	}
	if len(c.dependsOn[view]) == 0 {
		delete(c.dependsOn, view)
	}
}

// DependentViews implements natsengine.Catalog.
func (c *Catalog) DependentViews(_ context.Context, tableID natsengine.TableID) ([]natsengine.TableID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var views []natsengine.TableID
	for view, sources := range c.dependsOn {
		for _, s := range sources {
			if s == tableID {
				views = append(views, view)
				break
			}
		}
	}
	return views, nil
}

// Table implements natsengine.Catalog.
func (c *Catalog) Table(_ context.Context, id natsengine.TableID) (natsengine.Table, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[id]
	return t, ok, nil
}
