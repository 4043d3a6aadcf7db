package identity

import (
	stderrors "errors"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidInput       = "invalid_input"
	TextCodeCredentialNotFound = "credential_not_found"
	TextCodeCredentialExpired  = "credential_expired"
	TextCodeCredentialMismatch = "credential_mismatch"
	TextCodeInvalidState       = "invalid_state"
	TextCodeProviderExchange   = "provider_exchange_failed"
	TextCodeSessionInvalid     = "session_invalid"
	TextCodeSessionExpired     = "session_expired"
	TextCodeDeliveryFailed     = "delivery_failed"
	TextCodeTooManyRequests    = "too_many_requests"
)

// Coarse error codes surfaced on login redirects. Channel internals never
// leak past these.
const (
	RedirectCodeInvalidCode   = "invalid_code"
	RedirectCodeExpiredLink   = "expired_link"
	RedirectCodeInvalidState  = "invalid_state"
	RedirectCodeProviderError = "provider_error"
)

// ErrInvalidInput is returned for malformed phone numbers or email addresses.
var ErrInvalidInput = errors.New("invalid destination", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidInput).
	WithCode(errors.CodeBadRequest)

// ErrCredentialNotFound is returned when no credential exists for a token,
// including tokens already consumed by a concurrent verification.
var ErrCredentialNotFound = errors.New("credential not found", errors.CategoryNotFound).
	WithTextCode(TextCodeCredentialNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrCredentialExpired is returned when a credential exists but its validity
// window has passed. Expired credentials never re-validate.
var ErrCredentialExpired = errors.New("credential expired", errors.CategoryAuth).
	WithTextCode(TextCodeCredentialExpired).
	WithCode(errors.CodeUnauthorized)

// ErrCredentialMismatch is returned when the presented code does not match
// the stored secret. The credential is left in place.
var ErrCredentialMismatch = errors.New("credential mismatch", errors.CategoryAuth).
	WithTextCode(TextCodeCredentialMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidState is returned when an OAuth callback presents an unknown,
// tampered, or expired state value.
var ErrInvalidState = errors.New("invalid oauth state", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(errors.CodeBadRequest)

// ErrProviderExchangeFailed is returned when the identity provider rejects
// the code exchange or returns unusable claims.
var ErrProviderExchangeFailed = errors.New("provider exchange failed", errors.CategoryAuth).
	WithTextCode(TextCodeProviderExchange).
	WithCode(errors.CodeUnauthorized)

// ErrSessionInvalid is returned for missing, malformed, or badly signed
// session cookies.
var ErrSessionInvalid = errors.New("session invalid", errors.CategoryAuth).
	WithTextCode(TextCodeSessionInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrSessionExpired is returned when a session token is past its expiry.
var ErrSessionExpired = errors.New("session expired", errors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrDeliveryFailed is returned when the notifier could not send. The
// credential remains valid until its own expiry, so the caller may retry
// delivery rather than minting a new credential.
var ErrDeliveryFailed = errors.New("message delivery failed", errors.CategoryOperation).
	WithTextCode(TextCodeDeliveryFailed).
	WithCode(errors.CodeInternal)

// ErrTooManyRequests is returned by the resend throttle.
var ErrTooManyRequests = errors.New("too many credential requests", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyRequests).
	WithCode(errors.CodeBadRequest)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode("identity_not_found").
	WithCode(errors.CodeNotFound)

// matches compares by sentinel identity first, then by text code so that
// clones and wrapped copies still match.
func matches(err error, sentinel *errors.Error) bool {
	if stderrors.Is(err, sentinel) {
		return true
	}

	var rich *errors.Error
	if stderrors.As(err, &rich) {
		return rich.TextCode == sentinel.TextCode
	}

	return false
}

// IsInvalidInput reports whether err is a malformed destination error.
func IsInvalidInput(err error) bool {
	return matches(err, ErrInvalidInput)
}

// IsTooManyRequests reports whether err came from the resend throttle.
func IsTooManyRequests(err error) bool {
	return matches(err, ErrTooManyRequests)
}

// IsCredentialNotFound reports whether err means no credential exists for
// a token, including tokens consumed by a concurrent verification.
func IsCredentialNotFound(err error) bool {
	return matches(err, ErrCredentialNotFound)
}

// IsCredentialError reports whether err is one of the terminal credential
// verification failures.
func IsCredentialError(err error) bool {
	return matches(err, ErrCredentialNotFound) ||
		matches(err, ErrCredentialExpired) ||
		matches(err, ErrCredentialMismatch)
}

// RedirectCode maps a channel error onto the coarse code carried on the
// login redirect.
func RedirectCode(err error) string {
	switch {
	case matches(err, ErrCredentialExpired):
		return RedirectCodeExpiredLink
	case matches(err, ErrInvalidState):
		return RedirectCodeInvalidState
	case matches(err, ErrProviderExchangeFailed):
		return RedirectCodeProviderError
	default:
		return RedirectCodeInvalidCode
	}
}
