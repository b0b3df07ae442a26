package middleware

// Keys set on the gin context by the admission chain.
const (
	ContextRequestID = "request_id"
	ContextUserID    = "user_id"
	ContextEmail     = "email"
	ContextRole      = "role"
	ContextTier      = "tier"

	// Set by a rejecting layer so the admission logger can record it.
	ContextRejectedLayer = "rejected_layer"
	ContextRejectedCode  = "rejected_code"
)
