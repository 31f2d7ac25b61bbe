// Package handlers defines HTTP-layer error codes used across all API
// endpoints. These symbolic constants give clients a stable, machine-readable
// error taxonomy on top of the HTTP status code; handlers pick the most
// specific matching code and pass it to fail().
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeSendFailed       = "send_failed"
	ErrCodeQuotaExceeded    = "quota_exceeded"
	ErrCodeSignatureInvalid = "signature_invalid"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
