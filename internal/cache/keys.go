package cache

import (
	"strings"
	"time"
)

// Key namespaces. Every key starts with one of these so Clear can be scoped
// to a resource class.
const (
	NamespaceUser      = "user"
	NamespaceProject   = "project"
	NamespaceProjects  = "projects"
	NamespaceSearch    = "search"
	NamespaceSession   = "session"
	NamespaceRateLimit = "ratelimit"
	NamespacePresence  = "presence"
)

// TTL classes. Policy constants; callers pick the one matching the entity.
const (
	TTLUser        = 3600 * time.Second
	TTLProject     = 1800 * time.Second
	TTLProjectList = 600 * time.Second
	TTLSearch      = 1800 * time.Second
	TTLSession     = 86400 * time.Second
	TTLPresence    = 300 * time.Second
)

// Key builds "{namespace}:{identifier}[:{suffix}...]".
func Key(namespace, identifier string, suffix ...string) string {
	parts := make([]string, 0, 2+len(suffix))
	parts = append(parts, namespace, identifier)
	parts = append(parts, suffix...)
	return strings.Join(parts, ":")
}

// NamespacePattern matches every key in a namespace, e.g. "search:*".
func NamespacePattern(namespace string) string {
	return namespace + ":*"
}

func UserKey(userID string) string       { return Key(NamespaceUser, userID) }
func ProjectKey(projectID string) string { return Key(NamespaceProject, projectID) }
func ProjectListKey(userID string) string {
	return Key(NamespaceProjects, userID)
}
func SearchKey(queryHash string) string  { return Key(NamespaceSearch, queryHash) }
func SessionKey(sessionID string) string { return Key(NamespaceSession, sessionID) }
func PresenceKey(userID string) string   { return Key(NamespacePresence, userID) }
