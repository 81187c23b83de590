// Package admitcommon provides shared types and context helpers for the
// admission service.
package admitcommon

import (
	"context"
)

// ctxKeyType is the type for all context keys in this package.
type ctxKeyType string

const (
	ctxOperatorKey ctxKeyType = "AdmitOperator"
	ctxTestKey     ctxKeyType = "AdmitTestContext"
)

// WithOperator records the authenticated operator identity in the context.
// This is transport plumbing only: handlers read it once and pass the identity
// as an explicit argument into the core services.
func WithOperator(ctx context.Context, op OperatorID) context.Context {
	return context.WithValue(ctx, ctxOperatorKey, op)
}

// GetOperator retrieves the authenticated operator identity from the context.
// Returns the empty OperatorID when no operator is authenticated.
func GetOperator(ctx context.Context) OperatorID {
	if op, ok := ctx.Value(ctxOperatorKey).(OperatorID); ok {
		return op
	}
	return ""
}

// WithTestContext marks the context as belonging to a test run.
func WithTestContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxTestKey, true)
}

// IsTestContext reports whether the context belongs to a test run.
func IsTestContext(ctx context.Context) bool {
	v, ok := ctx.Value(ctxTestKey).(bool)
	return ok && v
}
