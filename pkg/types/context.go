package types

// ContextKey is the type for context values attached by the HTTP layer and
// read by telemetry.
type ContextKey string

const (
	ContextKeyOrgID         ContextKey = "org_id"
	ContextKeyPrincipalID   ContextKey = "principal_id"
	ContextKeyRequestSource ContextKey = "request_source"
)
