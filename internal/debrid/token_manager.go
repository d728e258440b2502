package debrid

import (
	"fmt"
	"strings"
	"sync"
)

// token is one Real-Debrid API token under rotation.
type token struct {
	Value   string
	Expired bool
}

// tokenManager rotates across one or more Real-Debrid API tokens, skipping
// any marked expired. RD_API_TOKEN normally holds a single token, but this
// accepts a comma-separated list so the rotation logic has a genuine use
// when an operator supplies more than one.
type tokenManager struct {
	mu     sync.Mutex
	tokens []*token
	next   int
}

func newTokenManager(raw string) (*tokenManager, error) {
	var toks []*token
	for _, part := range strings.Split(raw, ",") {
		v := strings.TrimSpace(part)
		if v == "" {
			continue
		}
		toks = append(toks, &token{Value: v})
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("no API token supplied")
	}
	return &tokenManager{tokens: toks}, nil
}

// current returns the next non-expired token in round-robin order.
func (tm *tokenManager) current() (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	for i := 0; i < len(tm.tokens); i++ {
		idx := (tm.next + i) % len(tm.tokens)
		if !tm.tokens[idx].Expired {
			tm.next = (idx + 1) % len(tm.tokens)
			return tm.tokens[idx].Value, nil
		}
	}
	return "", fmt.Errorf("all API tokens are marked expired")
}

func (tm *tokenManager) markExpired(value string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for _, t := range tm.tokens {
		if t.Value == value {
			t.Expired = true
			return
		}
	}
}

// resetAll clears the expired flag on every token.
func (tm *tokenManager) resetAll() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for _, t := range tm.tokens {
		t.Expired = false
	}
}

func maskToken(v string) string {
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}
