package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxTenantID
	ctxRole
)

var ErrNoIdentity = errors.New("auth: identity not in context")

func WithIdentity(ctx context.Context, userID, tenantID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxTenantID, tenantID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	return fromCtx(ctx, ctxUserID)
}

func TenantID(ctx context.Context) (string, error) {
	return fromCtx(ctx, ctxTenantID)
}

func Role(ctx context.Context) (string, error) {
	return fromCtx(ctx, ctxRole)
}

func fromCtx(ctx context.Context, k ctxKey) (string, error) {
	if s, ok := ctx.Value(k).(string); ok && s != "" {
		return s, nil
	}
	return "", ErrNoIdentity
}
