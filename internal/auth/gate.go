package auth

import (
	"net/http"

	"github.com/odyssey-erp/userdesk/internal/shared"
	"github.com/odyssey-erp/userdesk/internal/view"
)

// LoginPath is where unauthenticated requests are sent.
const LoginPath = "/login"

// Gate lets requests through only when the session holds an API token.
// Anything else is redirected to the login page.
func Gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.TokenFromContext(r.Context()); !ok {
			view.Redirect(w, r, LoginPath)
			return
		}
		next.ServeHTTP(w, r)
	})
}
