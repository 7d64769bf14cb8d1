package service

import "github.com/GoPolymarket/guildgate/internal/model"

const (
	ActionAuthFailed       = "auth.failed"
	ActionCrossTenant      = "tenant.cross_access"
	ActionCredentialCreate = "credential.create"
	ActionCredentialRead   = "credential.read"
	ActionCredentialUpdate = "credential.update"
	ActionCredentialDelete = "credential.delete"
	ActionCommunityDelete  = "community.delete"
	ActionSettingsOverride = "settings.override"
	ActionSettingsUpdate   = "settings.update"
	ActionMemberList       = "member.list"
	ActionMemberRoleUpdate = "member.role.update"
	ActionMemberRemove     = "member.remove"
	ActionAuditRead        = "audit.read"
	ActionLedgerRead       = "ledger.read"
	ActionLedgerVerify     = "ledger.verify"
	ActionLedgerExport     = "ledger.export"
)

// 静态风险表，未列出的动作默认为 low
var riskTable = map[string]model.RiskLevel{
	ActionAuthFailed:       model.RiskMedium,
	ActionCrossTenant:      model.RiskCritical,
	ActionCredentialCreate: model.RiskCritical,
	ActionCredentialUpdate: model.RiskCritical,
	ActionCredentialDelete: model.RiskCritical,
	ActionCredentialRead:   model.RiskMedium,
	ActionCommunityDelete:  model.RiskCritical,
	ActionSettingsOverride: model.RiskHigh,
	ActionSettingsUpdate:   model.RiskMedium,
	ActionMemberRoleUpdate: model.RiskHigh,
	ActionMemberRemove:     model.RiskHigh,
	ActionMemberList:       model.RiskLow,
	ActionAuditRead:        model.RiskLow,
	ActionLedgerRead:       model.RiskLow,
	ActionLedgerVerify:     model.RiskMedium,
	ActionLedgerExport:     model.RiskHigh,
}

var reviewActions = map[string]struct{}{
	ActionCredentialDelete: {},
	ActionCommunityDelete:  {},
	ActionCrossTenant:      {},
	ActionSettingsOverride: {},
}

// ClassifyRisk looks action up in the risk table. A blocked outcome is at
// least medium.
func ClassifyRisk(action string, status model.AuditStatus) model.RiskLevel {
	level, ok := riskTable[action]
	if !ok {
		level = model.RiskLow
	}
	if status == model.AuditBlocked {
		level = level.AtLeast(model.RiskMedium)
	}
	return level
}

func RequiresReview(action string, level model.RiskLevel) bool {
	if level == model.RiskCritical {
		return true
	}
	_, ok := reviewActions[action]
	return ok
}
