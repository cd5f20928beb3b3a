package auth

import (
	"net/http"
	"strings"

	"github.com/opsledger/opsledger/internal/platform/httpx"
	"github.com/opsledger/opsledger/internal/shared"
)

// Middleware resolves bearer tokens into identities and enforces roles.
type Middleware struct {
	service *Service
}

// NewMiddleware constructs the auth middleware.
func NewMiddleware(service *Service) *Middleware {
	return &Middleware{service: service}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Authenticate loads the caller identity into the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.service.Resolve(r.Context(), bearerToken(r))
		if err != nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
	})
}

// RequireInternal gates routes to internal staff.
func (m *Middleware) RequireInternal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shared.IdentityFromContext(r.Context()).CanTrackTime() {
			httpx.RespondError(w, httpx.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireFinance gates routes to finance staff.
func (m *Middleware) RequireFinance(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shared.IdentityFromContext(r.Context()).CanManageFinance() {
			httpx.RespondError(w, httpx.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
