package service

import (
	"net/http"

	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/tenancy"
)

const ResourceCredential = "Credential"

// RequestInfo is the transport side of an audited event.
type RequestInfo struct {
	RequestID  string
	IPAddress  string
	UserAgent  string
	Endpoint   string
	HTTPMethod string
	// Username is known only once the caller's membership has been loaded.
	Username string
}

func (i RequestInfo) apply(rec *model.AuditRecord) {
	rec.RequestID = i.RequestID
	rec.IPAddress = i.IPAddress
	rec.UserAgent = i.UserAgent
	rec.Endpoint = i.Endpoint
	rec.HTTPMethod = i.HTTPMethod
	rec.Username = i.Username
}

func fromTenant(rec *model.AuditRecord, tc tenancy.TenantContext) {
	rec.CommunityID = tc.CommunityID
	rec.UserID = tc.UserID
	rec.UserRole = string(tc.UserRole)
	if rec.RequestID == "" {
		rec.RequestID = tc.RequestID
	}
}

// RecordFailedAuth records a rejected credential. The community and user are
// whatever the caller could tell from the token, possibly nothing.
func (s *AuditService) RecordFailedAuth(info RequestInfo, communityID, userID, code string, statusCode int) bool {
	rec := &model.AuditRecord{
		CommunityID:  communityID,
		UserID:       userID,
		Action:       ActionAuthFailed,
		ResourceType: "Authentication",
		Operation:    model.OperationExecute,
		Status:       model.AuditFailure,
		StatusCode:   statusCode,
		RiskLevel:    model.RiskMedium,
		DataAfter:    RedactSnapshot(map[string]any{"code": code}),
	}
	info.apply(rec)
	return s.Record(rec)
}

// RecordCrossTenantAttempt records a caller reaching for another community.
func (s *AuditService) RecordCrossTenantAttempt(tc tenancy.TenantContext, info RequestInfo, targetCommunityID, resourceType, resourceID string) bool {
	if resourceType == "" {
		resourceType = "Community"
	}
	rec := &model.AuditRecord{
		Action:         ActionCrossTenant,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		Operation:      model.OperationRead,
		Status:         model.AuditBlocked,
		StatusCode:     http.StatusForbidden,
		RiskLevel:      model.RiskCritical,
		RequiresReview: true,
		DataAfter: RedactSnapshot(map[string]any{
			"callerCommunityId": tc.CommunityID,
			"targetCommunityId": targetCommunityID,
		}),
	}
	info.apply(rec)
	fromTenant(rec, tc)
	return s.Record(rec)
}

// CredentialOp describes one credential mutation or read.
type CredentialOp struct {
	Action       string
	Operation    model.Operation
	CredentialID string
	Status       model.AuditStatus
	StatusCode   int
	Before       any
	After        any
}

func (s *AuditService) RecordCredentialOperation(tc tenancy.TenantContext, info RequestInfo, op CredentialOp) bool {
	status := op.Status
	if status == "" {
		status = model.AuditSuccess
	}
	rec := &model.AuditRecord{
		Action:       op.Action,
		ResourceType: ResourceCredential,
		ResourceID:   op.CredentialID,
		Operation:    op.Operation,
		Status:       status,
		StatusCode:   op.StatusCode,
		RiskLevel:    ClassifyRisk(op.Action, status),
		DataBefore:   RedactSnapshot(op.Before),
		DataAfter:    RedactSnapshot(op.After),
	}
	info.apply(rec)
	fromTenant(rec, tc)
	return s.Record(rec)
}
