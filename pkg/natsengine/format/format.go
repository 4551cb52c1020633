// Package format is the row-format registry the engine consults to parse
// inbound messages and serialize outbound ones. It is a stand-in for the
// host database's own format registry (SPEC_FULL.md §1 places the real
// registry out of scope for this engine): a name-keyed set of codecs.
package format

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownFormat is returned by Lookup for an unregistered format name.
var ErrUnknownFormat = errors.New("format: unknown format")

// ErrUnimplemented is returned by a registered but unimplemented codec,
// e.g. Avro (see DESIGN.md).
var ErrUnimplemented = errors.New("format: unimplemented")

// ParseOptions carries per-call parser knobs. Tolerance for malformed
// messages (nats_skip_broken_messages) is enforced by the caller across a
// batch, not by the codec itself, since a single Parse call has no view of
// how many prior messages in the pass already failed.
type ParseOptions struct {
	Schema string
}

// RowFormat parses raw message bytes into rows and serializes rows back to
// bytes for publish.
type RowFormat interface {
	Name() string
	Parse(data []byte, opts ParseOptions) ([]Row, error)
	Format(rows []Row) ([]byte, error)
}

// Registry is a name-keyed set of RowFormat codecs.
type Registry struct {
	formats map[string]RowFormat
	mu      sync.RWMutex
}

// NewRegistry returns a Registry pre-seeded with the JSON codec (fully
// implemented) and the Avro name (registered, unimplemented — see
// DESIGN.md).
func NewRegistry() *Registry {
	r := &Registry{formats: make(map[string]RowFormat)}
	r.Register(jsonFormat{})
	r.Register(unimplementedFormat{name: "Avro"})
	return r
}

func (r *Registry) Register(f RowFormat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formats[f.Name()] = f
}

// Lookup returns the RowFormat registered under name.
func (r *Registry) Lookup(name string) (RowFormat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formats[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
	return f, nil
}

type unimplementedFormat struct {
	name string
}

func (u unimplementedFormat) Name() string { return u.name }

func (u unimplementedFormat) Parse([]byte, ParseOptions) ([]Row, error) {
	return nil, fmt.Errorf("%w: format %q", ErrUnimplemented, u.name)
}

func (u unimplementedFormat) Format([]Row) ([]byte, error) {
	return nil, fmt.Errorf("%w: format %q", ErrUnimplemented, u.name)
}

// jsonFormat parses a single JSON object per message, matching the plain
// json.Marshal/json.Unmarshal convention every peer in this module uses for
// its wire payloads.
type jsonFormat struct{}

func (jsonFormat) Name() string { return "JSON" }

func (jsonFormat) Parse(data []byte, _ ParseOptions) ([]Row, error) {
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse JSON row: %w", err)
	}
	return []Row{{Values: values}}, nil
}

func (jsonFormat) Format(rows []Row) ([]byte, error) {
	values := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		values = append(values, r.Values)
	}
	if len(values) == 1 {
		return json.Marshal(values[0])
	}
	return json.Marshal(values)
}
