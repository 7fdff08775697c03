package billing

import (
	"context"
	"net/http"

	"github.com/dmitrymomot/promptdesk/pkg/identity"
	"github.com/dmitrymomot/promptdesk/pkg/logger"
	"github.com/dmitrymomot/promptdesk/pkg/subscription"
)

type userKey struct{}

// provisionUser loads or creates the local user for the authenticated subject.
func (m *Module) provisionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := identity.FromContext(r.Context())
		if err != nil {
			writeError(w, ErrUnauthorized)
			return
		}
		user, err := m.Accounts.EnsureUser(r.Context(), id.Subject, id.Email, id.Name)
		if err != nil {
			m.log.ErrorContext(r.Context(), "failed to provision user", logger.Error(err))
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(ctx context.Context) *subscription.User {
	u, _ := ctx.Value(userKey{}).(*subscription.User)
	return u
}
