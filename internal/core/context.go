package core

import "context"

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxUserID
)

// WithRequestID tags ctx with the id echoed in X-Request-ID and usage entries.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestID, requestID)
}

// GetRequestID returns the request id on ctx, or "".
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, ctxRequestID)
}

// WithUserID tags ctx with the authenticated user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserID, userID)
}

// GetUserID returns the authenticated user on ctx, or "".
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, ctxUserID)
}

func stringValue(ctx context.Context, key ctxKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}
