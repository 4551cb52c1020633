package natsengine

import "testing"

func TestMatchesSubject(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		declared  []string
		want      bool
	}{
		{"exact literal", "orders", []string{"orders"}, true},
		{"literal mismatch", "orders", []string{"invoices"}, false},
		{"single wildcard match", "t.a", []string{"t.*"}, true},
		{"single wildcard match second", "t.b", []string{"t.*"}, true},
		{"single wildcard too many tokens", "t.a.b", []string{"t.*"}, false},
		{"tail wildcard matches exact prefix length", "x.y", []string{"x.>"}, true},
		{"tail wildcard matches deeper", "x.y.z.w", []string{"x.>"}, true},
		{"tail wildcard matches bare prefix", "x", []string{"x.>"}, true},
		{"mixed set a.*.c matches a.b.c", "a.b.c", []string{"a.*.c", "x.>"}, true},
		{"mixed set x.> matches x.y.z.w", "x.y.z.w", []string{"a.*.c", "x.>"}, true},
		{"mixed set rejects a.c", "a.c", []string{"a.*.c", "x.>"}, false},
		{"mixed set x.> matches bare x", "x", []string{"a.*.c", "x.>"}, true},
		{"empty declared set", "orders", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesSubject(tt.candidate, tt.declared); got != tt.want {
				t.Errorf("MatchesSubject(%q, %v) = %v, want %v", tt.candidate, tt.declared, got, tt.want)
			}
		})
	}
}

func TestMatchesSubjectIdempotence(t *testing.T) {
	// matches(S, D) = matches(S, D ∪ {d}) when matches(S, {d}) = true
	d := []string{"orders", "invoices"}
	extra := "orders"
	if !MatchesSubject("orders", []string{extra}) {
		t.Fatal("precondition failed: extra should match alone")
	}
	before := MatchesSubject("orders", d)
	after := MatchesSubject("orders", append(append([]string{}, d...), extra))
	if before != after {
		t.Errorf("idempotence violated: before=%v after=%v", before, after)
	}
}

func TestIsWildcardSubject(t *testing.T) {
	tests := []struct {
		subject string
		want    bool
	}{
		{"orders", false},
		{"a.b.c", false},
		{"a.*.c", true},
		{"a.>", true},
		{"a.b.>.c", false}, // '>' only counts as wildcard when it's the final token
	}
	for _, tt := range tests {
		if got := isWildcardSubject(tt.subject); got != tt.want {
			t.Errorf("isWildcardSubject(%q) = %v, want %v", tt.subject, got, tt.want)
		}
	}
}
