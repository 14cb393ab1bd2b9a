package middleware

import (
	"context"
	"net/http"
	"strings"

	"consultbook/pkg/model"
)

const (
	ActorIDHeader   = "X-Actor-ID"
	ActorRoleHeader = "X-Actor-Role"
)

type actorKey struct{}

// ActorFromHeaders reads the caller identity forwarded by the gateway. A
// missing or unknown role is treated as CUSTOMER.
func ActorFromHeaders(r *http.Request) model.Actor {
	role := model.Role(strings.ToUpper(strings.TrimSpace(r.Header.Get(ActorRoleHeader))))
	switch role {
	case model.RoleStaff, model.RoleAdmin:
	default:
		role = model.RoleCustomer
	}
	return model.Actor{
		ID:   strings.TrimSpace(r.Header.Get(ActorIDHeader)),
		Role: role,
	}
}

// Actor stores the request actor in the context for handlers.
func Actor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), actorKey{}, ActorFromHeaders(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ActorFrom(ctx context.Context) model.Actor {
	if a, ok := ctx.Value(actorKey{}).(model.Actor); ok {
		return a
	}
	return model.Actor{Role: model.RoleCustomer}
}
