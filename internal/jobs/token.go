package jobs

import "sync/atomic"

// Token is a cooperative cancellation flag shared by the stop path (writer)
// and a running worker (reader). Each run gets a fresh Token.
type Token struct {
	cancelled atomic.Bool
}

// NewToken returns an uncancelled token.
func NewToken() *Token {
	return &Token{}
}

// Cancel sets the flag. Calling it more than once is harmless.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called. A nil Token is never
// cancelled.
func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}
