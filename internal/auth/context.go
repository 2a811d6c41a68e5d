package auth

import "context"

type contextKey string

const (
	userContextKey    contextKey = "user"
	sessionContextKey contextKey = "session"
)

// WithUser returns a copy of ctx carrying the logged in user and session.
func WithUser(ctx context.Context, user *User, session *Session) context.Context {
	ctx = context.WithValue(ctx, userContextKey, user)
	return context.WithValue(ctx, sessionContextKey, session)
}

// UserFromContext returns the logged in user, or nil.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey).(*User)
	return user
}

// SessionFromContext returns the current session, or nil.
func SessionFromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionContextKey).(*Session)
	return session
}

// SessionUserID reports the id of the logged in user. It matches
// private.SessionFunc.
func SessionUserID(ctx context.Context) (int64, bool) {
	if user := UserFromContext(ctx); user != nil {
		return user.ID, true
	}
	return 0, false
}
