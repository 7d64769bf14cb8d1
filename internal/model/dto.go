package model

// UpdateRoleRequest body of PATCH /v1/members/:userId/role
type UpdateRoleRequest struct {
	Role Role `json:"role" binding:"required,oneof=admin moderator member"`
}

// CreateCredentialRequest body of POST /v1/credentials
type CreateCredentialRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Provider string `json:"provider" binding:"required,max=64"`
	Secret   string `json:"secret" binding:"required,min=8"`
}

// MeResponse echoes the caller's tenant context
type MeResponse struct {
	CommunityID      string `json:"communityId"`
	UserID           string `json:"userId"`
	UserRole         string `json:"userRole"`
	SubscriptionTier string `json:"subscriptionTier"`
	ExternalGuildID  string `json:"externalGuildId,omitempty"`
	RequestID        string `json:"requestId"`
}
