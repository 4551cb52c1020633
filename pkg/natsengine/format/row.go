package format

// Virtual column names exposed to downstream pipelines. These are
// ephemeral: produced by the source, never stored.
const (
	// ColumnSubject is always present: the NATS subject a message arrived
	// on.
	ColumnSubject = "_subject"

	// ColumnRawMessage is present only under STREAM error mode: the raw
	// message bytes, nullable, populated when parsing failed.
	ColumnRawMessage = "_raw_message"

	// ColumnError is present only under STREAM error mode: the parse error
	// text, nullable, populated when parsing failed.
	ColumnError = "_error"
)

// Row is a single parsed (or, under STREAM error mode, unparsed) message
// together with its virtual columns.
type Row struct {
	// Values holds parsed field values keyed by column name, nil when
	// parsing failed under STREAM mode.
	Values map[string]any

	// Subject is the NATS subject the message was received on.
	Subject string

	// RawMessage holds the original message bytes when parsing failed
	// under STREAM mode; empty otherwise.
	RawMessage []byte

	// ParseError holds the parser's error text when parsing failed under
	// STREAM mode; empty otherwise.
	ParseError string
}

// WithVirtualColumns returns a copy of the row's values augmented with its
// virtual columns. streamMode selects whether _raw_message/_error are
// included alongside the always-present _subject.
func (r Row) WithVirtualColumns(streamMode bool) map[string]any {
	out := make(map[string]any, len(r.Values)+3)
	for k, v := range r.Values {
		out[k] = v
	}
	out[ColumnSubject] = r.Subject

	if streamMode {
		if r.RawMessage != nil {
			out[ColumnRawMessage] = string(r.RawMessage)
		} else {
			out[ColumnRawMessage] = nil
		}
		if r.ParseError != "" {
			out[ColumnError] = r.ParseError
		} else {
			out[ColumnError] = nil
		}
	}
	return out
}
