package format

import (
	"errors"
	"testing"
)

func TestJSONFormatRoundTrip(t *testing.T) {
	f := jsonFormat{}

	rows, err := f.Parse([]byte(`{"id":1,"name":"widget"}`), ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Values["id"] != float64(1) {
		t.Errorf("id = %v, want 1", rows[0].Values["id"])
	}

	out, err := f.Format(rows)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if len(out) == 0 {
		t.Error("expected non-empty output")
	}
}

func TestJSONFormatParseError(t *testing.T) {
	f := jsonFormat{}
	if _, err := f.Parse([]byte(`not json`), ParseOptions{}); err == nil {
		t.Error("expected parse error for malformed JSON")
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	jf, err := r.Lookup("JSON")
	if err != nil {
		t.Fatalf("Lookup(JSON): %v", err)
	}
	if jf.Name() != "JSON" {
		t.Errorf("Name() = %q, want JSON", jf.Name())
	}

	af, err := r.Lookup("Avro")
	if err != nil {
		t.Fatalf("Lookup(Avro): %v", err)
	}
	if _, err := af.Parse(nil, ParseOptions{}); !errors.Is(err, ErrUnimplemented) {
		t.Errorf("Avro Parse error = %v, want ErrUnimplemented", err)
	}

	if _, err := r.Lookup("XML"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Lookup(XML) error = %v, want ErrUnknownFormat", err)
	}
}

func TestRowWithVirtualColumns(t *testing.T) {
	row := Row{Subject: "orders", Values: map[string]any{"id": 1}}

	values := row.WithVirtualColumns(false)
	if values[ColumnSubject] != "orders" {
		t.Errorf("_subject = %v, want orders", values[ColumnSubject])
	}
	if _, ok := values[ColumnRawMessage]; ok {
		t.Error("_raw_message should be absent outside STREAM mode")
	}

	streamValues := Row{Subject: "orders", RawMessage: []byte("bad"), ParseError: "boom"}.WithVirtualColumns(true)
	if streamValues[ColumnRawMessage] != "bad" {
		t.Errorf("_raw_message = %v, want bad", streamValues[ColumnRawMessage])
	}
	if streamValues[ColumnError] != "boom" {
		t.Errorf("_error = %v, want boom", streamValues[ColumnError])
	}
}
