package httputil

// Machine-readable error codes returned alongside error messages so clients
// can branch without parsing human-facing text.
const (
	CodeInvalidRequestBody = "invalid_request_body"
	CodeEmailRequired      = "email_required"
	CodeInvalidEmailFormat = "invalid_email_format"
	CodeInvalidOrExpired   = "invalid_or_expired_code"
	CodeMissingAuth        = "missing_auth"
	CodeInvalidToken       = "invalid_token"
	CodeTokenExpired       = "token_expired"
	CodeTooManyRequests    = "too_many_requests"
	CodeCooldownActive     = "cooldown_active"
	CodeInternalError      = "internal_error"
)
