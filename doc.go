// Package identity implements the identity and membership core for a
// collaboration platform for performing groups: three independent
// authentication channels (phone OTP, email magic link, federated OAuth)
// that converge on one canonical user, a compact cookie-backed session
// credential, and per-artist membership resolution with profile overrides.
//
// The root package holds the domain types, the user store, and the session
// issuer. Each channel lives in its own subpackage (otp, magiclink,
// federated) with no imports between channels, and membership resolution is
// a separate subpackage that the session path never calls into.
package identity
