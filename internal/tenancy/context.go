// Package tenancy carries the acting community and user through a request's
// call tree and scopes every data access to that community.
package tenancy

import (
	"context"
	"time"

	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/google/uuid"
)

// TenantContext is the request-scoped identity of the caller. It is a value
// type: readers always receive a copy, so nothing downstream can mutate the
// context another part of the request observes.
type TenantContext struct {
	CommunityID      string
	UserID           string
	UserRole         model.Role
	SubscriptionTier string
	ExternalGuildID  string
	RequestID        string
	RequestTime      time.Time
}

// Claims are the validated identity claims of a bearer credential.
type Claims struct {
	CommunityID string
	UserID      string
	Role        model.Role
}

// RequestMeta carries transport details known before the context exists.
type RequestMeta struct {
	// RequestID is reused when the caller already assigned one.
	RequestID string
	Received  time.Time
}

type contextKey struct{}

type anonymousKey struct{}

// Establish builds the context for one request. It performs no I/O.
func Establish(claims Claims, community *model.Community, meta RequestMeta) TenantContext {
	role := claims.Role
	if role == "" {
		role = model.RoleMember
	}
	reqID := meta.RequestID
	if reqID == "" {
		reqID = NewRequestID()
	}
	received := meta.Received
	if received.IsZero() {
		received = time.Now().UTC()
	}

	tc := TenantContext{
		CommunityID: claims.CommunityID,
		UserID:      claims.UserID,
		UserRole:    role,
		RequestID:   reqID,
		RequestTime: received,
	}
	if community != nil {
		tc.SubscriptionTier = community.SubscriptionTier
		tc.ExternalGuildID = community.ExternalGuildID
	}
	return tc
}

// NewRequestID returns a UUIDv7 based id: a millisecond timestamp prefix
// followed by random bits.
func NewRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "req_" + uuid.NewString()
	}
	return "req_" + id.String()
}

// WithContext returns a child of ctx carrying tc.
func WithContext(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// WithAnonymous marks ctx as carrying no tenant on purpose.
func WithAnonymous(ctx context.Context) context.Context {
	return context.WithValue(ctx, anonymousKey{}, true)
}

// IsAnonymous reports whether ctx was explicitly marked as tenant-less.
func IsAnonymous(ctx context.Context) bool {
	if _, err := Current(ctx); err == nil {
		return false
	}
	v, _ := ctx.Value(anonymousKey{}).(bool)
	return v
}

// Run executes fn with tc visible to every Current call made through the
// context fn receives.
func Run(ctx context.Context, tc TenantContext, fn func(ctx context.Context) error) error {
	return fn(WithContext(ctx, tc))
}

// Current returns the active context or a *NoContextError. There is no
// default tenant.
func Current(ctx context.Context) (TenantContext, error) {
	if ctx == nil {
		return TenantContext{}, &NoContextError{}
	}
	tc, ok := ctx.Value(contextKey{}).(TenantContext)
	if !ok || tc.CommunityID == "" {
		anon, _ := ctx.Value(anonymousKey{}).(bool)
		return TenantContext{}, &NoContextError{Anonymous: anon}
	}
	return tc, nil
}
