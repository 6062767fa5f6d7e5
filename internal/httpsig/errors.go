package httpsig

import "fmt"

// AuthError covers every signature failure mode: missing header, bad
// date skew, digest mismatch, key-fetch failure, or an invalid
// signature. The caller only needs to know "unauthorized", not which;
// every AuthError maps to the same HTTP 401.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return fmt.Sprintf("signature verification failed: %s", e.Reason) }
