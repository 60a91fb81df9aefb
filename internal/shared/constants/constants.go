package constants

const (
	// Environment constants
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"

	// HTTP Headers
	HeaderContentType   = "Content-Type"
	HeaderAuthorization = "Authorization"
	HeaderXRequestID    = "X-Request-ID"
	HeaderAdminKey      = "X-Admin-Key"
	HeaderFeedToken     = "X-Feed-Token"

	// Content Types
	ContentTypeJSON = "application/json"

	// Context keys
	ContextKeyAccountID  = "account_id"
	ContextKeyUsername   = "username"
	ContextKeyFeedSource = "feed_source"
	ContextKeyRequestID  = "request_id"

	// Error messages
	ErrMsgInternalServerError = "Internal server error occurred"
	ErrMsgTooManyRequests     = "rate limit exceeded, please try again later"
)
