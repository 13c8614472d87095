package auth

import (
	"net/http"

	"github.com/bleepstore/bleepstore/internal/api"
)

// Authenticator interface for different auth strategies.
type Authenticator interface {
	Wrap(next http.Handler) http.Handler
}

// Middleware authenticates requests with AWS Signature V4 against the
// credential store and attaches the resolved owner to the request context.
type Middleware struct {
	verifier       *verifier
	allowAnonymous bool
}

// NewMiddleware creates an authentication middleware over the given
// credential source.
func NewMiddleware(source CredentialSource, allowAnonymous bool) *Middleware {
	return &Middleware{
		verifier:       newVerifier(source),
		allowAnonymous: allowAnonymous,
	}
}

// Wrap wraps an HTTP handler with authentication.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")

		if header == "" {
			if r.URL.Query().Get("X-Amz-Algorithm") != "" {
				cred, s3err := m.verifier.verifyPresigned(r)
				if s3err != nil {
					api.WriteError(w, s3err)
					return
				}
				owner := api.Owner{ID: cred.OwnerID, DisplayName: cred.DisplayName}
				next.ServeHTTP(w, r.WithContext(api.WithOwner(r.Context(), owner)))
				return
			}
			if m.allowAnonymous {
				next.ServeHTTP(w, r)
				return
			}
			api.WriteError(w, api.ErrAccessDenied)
			return
		}

		cred, s3err := m.verifier.verifyHeader(r, header)
		if s3err != nil {
			api.WriteError(w, s3err)
			return
		}

		owner := api.Owner{ID: cred.OwnerID, DisplayName: cred.DisplayName}
		next.ServeHTTP(w, r.WithContext(api.WithOwner(r.Context(), owner)))
	})
}

// DisabledMiddleware is a middleware that skips authentication (for testing).
type DisabledMiddleware struct{}

// NewDisabledMiddleware creates a middleware that skips authentication.
func NewDisabledMiddleware() *DisabledMiddleware {
	return &DisabledMiddleware{}
}

// Wrap wraps an HTTP handler without authentication.
func (m *DisabledMiddleware) Wrap(next http.Handler) http.Handler {
	return next
}

// Ensure implementations satisfy interface
var _ Authenticator = (*Middleware)(nil)
var _ Authenticator = (*DisabledMiddleware)(nil)
