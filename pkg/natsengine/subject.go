package natsengine

import "strings"

// isWildcardSubject reports whether subject contains a `*` token anywhere,
// or ends in `>` — such subjects may be subscribed to but never published.
func isWildcardSubject(subject string) bool {
	tokens := strings.Split(subject, ".")
	for i, tok := range tokens {
		if tok == "*" {
			return true
		}
		if tok == ">" && i == len(tokens)-1 {
			return true
		}
	}
	return false
}

// MatchesSubject reports whether the literal subject candidate belongs to
// the subscription set declared, under NATS wildcard rules: `*` matches
// exactly one token, and a trailing `>` matches zero or more trailing
// tokens (so `x.>` also matches the bare prefix `x`).
func MatchesSubject(candidate string, declared []string) bool {
	candidateTokens := strings.Split(candidate, ".")
	for _, d := range declared {
		if subjectMatchesOne(candidateTokens, d) {
			return true
		}
	}
	return false
}

func subjectMatchesOne(candidateTokens []string, declared string) bool {
	declaredTokens := strings.Split(declared, ".")
	n := len(declaredTokens)

	if n > 0 && declaredTokens[n-1] == ">" {
		prefix := declaredTokens[:n-1]
		if len(candidateTokens) < len(prefix) {
			return false
		}
		return tokensMatch(candidateTokens[:len(prefix)], prefix)
	}

	if len(candidateTokens) != n {
		return false
	}
	return tokensMatch(candidateTokens, declaredTokens)
}

func tokensMatch(candidate, declared []string) bool {
	for i, d := range declared {
		if d == "*" {
			continue
		}
		if d != candidate[i] {
			return false
		}
	}
	return true
}
