package identity

import "context"

// UserContext is the per-request identity resolved from gateway headers.
// It lives for one request and is never persisted.
type UserContext struct {
	UserID      int64
	Username    string
	UserKey     string
	Roles       []string
	Permissions []string
	DeptID      int64
	DataScope   string
}

// Authenticated reports whether the gateway supplied a usable user id.
func (u UserContext) Authenticated() bool {
	return u.UserID > 0
}

func (u UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type contextKey struct{}

// WithContext binds the identity to the request context. Downstream code
// receives it through explicit context passing, not ambient storage.
func WithContext(ctx context.Context, u UserContext) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext returns the bound identity. The zero UserContext is returned
// when nothing was bound; accessors below never panic on a bare context.
func FromContext(ctx context.Context) UserContext {
	if ctx == nil {
		return UserContext{}
	}
	u, _ := ctx.Value(contextKey{}).(UserContext)
	return u
}

// UserIDFromContext returns the bound user id, 0 when unset.
func UserIDFromContext(ctx context.Context) int64 {
	return FromContext(ctx).UserID
}

// UsernameFromContext returns the bound username, "" when unset.
func UsernameFromContext(ctx context.Context) string {
	return FromContext(ctx).Username
}

// RolesFromContext returns the bound roles, nil when unset.
func RolesFromContext(ctx context.Context) []string {
	return FromContext(ctx).Roles
}
