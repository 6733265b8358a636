// Package document_store is the key/value collaborator the identity store
// persists through. Documents are addressed by a logical key plus a Scope.
package document_store //nolint:revive // var-naming: using underscores for domain clarity

import (
	"net/url"
	"strings"
)

// Scope says which namespace a document lives in. The set of scopes is
// closed: Session, Default and Global.
type Scope interface {
	// dir is the storage directory for documents in this scope
	dir() string
	String() string
}

// Session scopes a document to one conversation.
type Session struct {
	ID string
}

func (s Session) dir() string {
	escaped := url.PathEscape(s.ID)
	if escaped == "." || escaped == ".." {
		escaped = strings.ReplaceAll(escaped, ".", "%2E")
	}
	return "sessions/" + escaped
}

func (s Session) String() string { return "session:" + s.ID }

// Default is the fallback document used when no session is known.
type Default struct{}

func (Default) dir() string    { return "default" }
func (Default) String() string { return "default" }

// Global is the namespace shared by every session. Identity data is never
// written here; it is only read to detect data from older deployments.
type Global struct{}

func (Global) dir() string    { return "global" }
func (Global) String() string { return "global" }

// ScopeFor maps an optional session id to a scope: a blank id means Default.
func ScopeFor(sessionID string) Scope {
	if strings.TrimSpace(sessionID) == "" {
		return Default{}
	}
	return Session{ID: sessionID}
}

// SameScope reports whether a and b address the same namespace. A nil
// scope equals nothing.
func SameScope(a, b Scope) bool {
	if a == nil || b == nil {
		return false
	}
	return a.dir() == b.dir()
}

func documentPath(key string, scope Scope) string {
	return scope.dir() + "/" + key + ".json"
}
