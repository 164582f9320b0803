package http

import (
	"context"
	"net/http"

	context_ "github.com/mkrupp/storefront/internal/infra/context"
)

// IdentityResolver reports which user, if any, the process currently acts as.
type IdentityResolver interface {
	CurrentUserID(ctx context.Context) (int64, bool)
}

// IdentifyingMiddleware attaches the active user id to the request context.
// Guest requests pass through unchanged; rejecting them is up to the handler.
func IdentifyingMiddleware(next http.Handler, identity IdentityResolver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := identity.CurrentUserID(r.Context()); ok {
			r = r.WithContext(context_.WithUserID(r.Context(), userID))
		}

		next.ServeHTTP(w, r)
	})
}
