package model

import "context"

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

type authCtxKey struct{}

// ContextWithAuthenticated marks the request as coming from a logged-in user.
func ContextWithAuthenticated(ctx context.Context) context.Context {
	return context.WithValue(ctx, authCtxKey{}, true)
}

// AuthenticatedFromContext reports whether the request passed the login check.
func AuthenticatedFromContext(ctx context.Context) bool {
	ok, _ := ctx.Value(authCtxKey{}).(bool)
	return ok
}
