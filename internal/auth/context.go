package auth

import (
	"context"
	"strings"
)

// Actor is the identity resolved from a validated session, carried through
// the request context. Write paths read it to stamp provenance; it is never
// stored in process-global state.
type Actor struct {
	UserID string
	Roles  []string
}

type actorContextKey struct{}

// ContextWithActor attaches the authenticated actor to the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	actor.UserID = strings.TrimSpace(actor.UserID)
	actor.Roles = dedupeRoles(actor.Roles)
	return context.WithValue(ctx, actorContextKey{}, &actor)
}

// ActorFromContext extracts the authenticated actor from the context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	v, ok := ctx.Value(actorContextKey{}).(*Actor)
	if !ok || v == nil || v.UserID == "" {
		return Actor{}, false
	}
	return *v, true
}

// ActorIDFromContext returns just the actor's user id, or "" when no
// authenticated actor is present.
func ActorIDFromContext(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ""
	}
	return actor.UserID
}

// HasRole checks whether the context's actor carries the given role.
func HasRole(ctx context.Context, role string) bool {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return false
	}
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return false
	}
	for _, r := range actor.Roles {
		if r == role {
			return true
		}
	}
	return false
}
