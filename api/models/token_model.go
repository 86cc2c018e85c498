package models

import (
	"crypto/subtle"
	"sync"

	"github.com/moyoez/localsend-session/tool"
)

// TokenAuthority issues single-use upload tokens bound to one (session, file) pair.
type TokenAuthority struct {
	mu     sync.Mutex
	tokens map[string]map[string]string
	issue  func() (string, error)
}

func NewTokenAuthority() *TokenAuthority {
	return &TokenAuthority{
		tokens: make(map[string]map[string]string),
		issue:  tool.GenerateToken,
	}
}

// Issue creates a fresh token for fileID, replacing any token still pending for it.
func (a *TokenAuthority) Issue(sessionID, fileID string) (string, error) {
	token, err := a.issue()
	if err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	files, ok := a.tokens[sessionID]
	if !ok {
		files = make(map[string]string)
		a.tokens[sessionID] = files
	}
	files[fileID] = token
	return token, nil
}

// Consume reports whether token is the pending token of fileID and invalidates it if so.
func (a *TokenAuthority) Consume(sessionID, fileID, token string) bool {
	if token == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	files := a.tokens[sessionID]
	want, ok := files[fileID]
	if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(token)) != 1 {
		return false
	}
	delete(files, fileID)
	if len(files) == 0 {
		delete(a.tokens, sessionID)
	}
	return true
}

// Has reports whether fileID still holds an unconsumed token.
func (a *TokenAuthority) Has(sessionID, fileID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.tokens[sessionID][fileID]
	return ok
}

// Revoke drops every pending token of the session.
func (a *TokenAuthority) Revoke(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tokens, sessionID)
}
