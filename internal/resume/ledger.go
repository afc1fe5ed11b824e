// Package resume keeps the set of outstanding resume tokens for a client.
package resume

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/meigma/courier/core"
)

// Ledger issues resume tokens and redeems each of them at most once.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	taskID string
	token  *core.ResumeToken
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string]entry)}
}

// Issue records a new token for the paused task taskID.
func (l *Ledger) Issue(taskID, url string, cont core.Continuation) *core.ResumeToken {
	token := core.NewResumeToken(uuid.NewString(), url, cont)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[token.ID()] = entry{taskID: taskID, token: token}
	return token
}

// Redeem consumes token and returns the task it belongs to.
// Unknown, foreign and already redeemed tokens yield ErrInvalidResumeToken.
func (l *Ledger) Redeem(token *core.ResumeToken) (string, error) {
	if token == nil {
		return "", fmt.Errorf("redeem: nil token: %w", core.ErrInvalidResumeToken)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[token.ID()]
	if !ok || e.token.URL() != token.URL() {
		return "", fmt.Errorf("redeem %s: %w", token.ID(), core.ErrInvalidResumeToken)
	}
	delete(l.entries, token.ID())
	return e.taskID, nil
}

// Discard drops token without redeeming it. Unknown tokens are ignored.
func (l *Ledger) Discard(token *core.ResumeToken) {
	if token == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, token.ID())
}
