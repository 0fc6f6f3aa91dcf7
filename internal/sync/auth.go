package sync

import stdsync "sync"

// AuthContext holds the session token for one execution context, in memory
// only. It starts empty, is populated by channel messages from the
// foreground, and is cleared on logout.
type AuthContext struct {
	mu    stdsync.RWMutex
	token string
}

func NewAuthContext() *AuthContext {
	return &AuthContext{}
}

// SetToken replaces the current token.
func (a *AuthContext) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

// Clear discards the token immediately.
func (a *AuthContext) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
}

// Token returns the current token and whether one is held.
func (a *AuthContext) Token() (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token, a.token != ""
}
