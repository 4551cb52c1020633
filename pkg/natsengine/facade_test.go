package natsengine

import (
	"context"
	"testing"
	"time"

	"github.com/dorki/natsengine/pkg/natsengine/format"
	"github.com/dorki/natsengine/pkg/natsengine/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Format == "" {
		cfg.Format = "JSON"
	}
	formats := format.NewRegistry()
	sched := schedule.NewPool(time.Second)
	e, err := New(cfg, "orders", &stubCatalog{}, &stubViewSink{}, formats, sched, zap.NewNop())
	require.NoError(t, err)
	return e
}

type stubCatalog struct {
	views []TableID
	err   error
}

func (s *stubCatalog) DependentViews(context.Context, TableID) ([]TableID, error) {
	return s.views, s.err
}

func (s *stubCatalog) Table(context.Context, TableID) (Table, bool, error) {
	return Table{}, false, nil
}

type stubViewSink struct{}

func (stubViewSink) InsertBatch(context.Context, TableID, []map[string]any) error { return nil }

func TestResolveInsertSubject(t *testing.T) {
	t.Run("single subject table needs no session hint", func(t *testing.T) {
		e := newTestEngine(t, Config{Subjects: []string{"orders"}})
		subject, err := e.resolveInsertSubject(SessionSettings{})
		require.NoError(t, err)
		assert.Equal(t, "orders", subject)
	})

	t.Run("multi subject table without a session hint is ambiguous", func(t *testing.T) {
		e := newTestEngine(t, Config{Subjects: []string{"orders", "orders.eu"}})
		_, err := e.resolveInsertSubject(SessionSettings{})
		assert.ErrorIs(t, err, ErrArgCount)
	})

	t.Run("session hint selects among declared subjects", func(t *testing.T) {
		e := newTestEngine(t, Config{Subjects: []string{"orders", "orders.eu"}})
		subject, err := e.resolveInsertSubject(SessionSettings{InsertSubject: "orders.eu"})
		require.NoError(t, err)
		assert.Equal(t, "orders.eu", subject)
	})

	t.Run("session hint outside declared subjects is rejected", func(t *testing.T) {
		e := newTestEngine(t, Config{Subjects: []string{"orders"}})
		_, err := e.resolveInsertSubject(SessionSettings{InsertSubject: "shipments"})
		assert.ErrorIs(t, err, ErrBadArguments)
	})

	t.Run("wildcard publish target is rejected", func(t *testing.T) {
		e := newTestEngine(t, Config{Subjects: []string{"orders.*"}})
		_, err := e.resolveInsertSubject(SessionSettings{InsertSubject: "orders.*"})
		assert.ErrorIs(t, err, ErrBadArguments)
	})
}

func TestReadRejectsWhenViewsAttached(t *testing.T) {
	e := newTestEngine(t, Config{Subjects: []string{"orders"}})
	e.mvAttached.Store(true)

	_, err := e.Read(context.Background(), SessionSettings{AllowDirectSelect: true})
	assert.ErrorIs(t, err, ErrQueryNotAllowed)
}

func TestReadRejectsWhenDirectSelectDisabled(t *testing.T) {
	e := newTestEngine(t, Config{Subjects: []string{"orders"}})
	_, err := e.Read(context.Background(), SessionSettings{AllowDirectSelect: false})
	assert.ErrorIs(t, err, ErrQueryNotAllowed)
}
