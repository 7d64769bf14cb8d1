package tenancy

import (
	"fmt"

	"github.com/GoPolymarket/guildgate/internal/pkg/metrics"
)

// NoContextError is returned by Current when no tenant is active.
type NoContextError struct {
	Anonymous bool
}

func (e *NoContextError) Error() string {
	if e.Anonymous {
		return "tenancy: request is anonymous, no tenant context"
	}
	return "tenancy: no tenant context in scope"
}

type ViolationReason string

const (
	ReasonMissingContext    ViolationReason = "missing_context"
	ReasonCommunityMismatch ViolationReason = "community_mismatch"
	ReasonPermission        ViolationReason = "permission_denied"
	ReasonAdminRequired     ViolationReason = "admin_required"
	ReasonOwnerRequired     ViolationReason = "owner_required"
)

// TenantViolationError rejects an operation that would leave the caller's
// community or that the caller's role does not allow.
type TenantViolationError struct {
	Reason ViolationReason
	// Expected is the caller's community, Got the one the operation named.
	Expected string
	Got      string
	// Resource is the table or permission involved.
	Resource string
}

func (e *TenantViolationError) Error() string {
	switch e.Reason {
	case ReasonCommunityMismatch:
		return fmt.Sprintf("tenancy: %s targets community %q, caller is scoped to %q", e.Resource, e.Got, e.Expected)
	case ReasonPermission:
		return fmt.Sprintf("tenancy: permission %q required", e.Resource)
	case ReasonAdminRequired:
		return "tenancy: admin role required"
	case ReasonOwnerRequired:
		return "tenancy: owner role required"
	default:
		return fmt.Sprintf("tenancy: %s requires a tenant context", e.Resource)
	}
}

func violation(reason ViolationReason, expected, got, resource string) *TenantViolationError {
	metrics.TenantViolations.WithLabelValues(string(reason)).Inc()
	return &TenantViolationError{Reason: reason, Expected: expected, Got: got, Resource: resource}
}
