package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionUserDelete     = "USER_DELETE"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionSessionReplay  = "SESSION_REPLAY"

	AuditActionApplicantStatus   = "APPLICANT_STATUS"
	AuditActionApplicantPosition = "APPLICANT_POSITION_OVERRIDE"
	AuditActionApplicantDelete   = "APPLICANT_DELETE"
	AuditActionPointsRecalculate = "APPLICANT_POINTS_RECALCULATE"
	AuditActionApplicationReview = "OPPORTUNITY_APPLICATION_REVIEW"
	AuditActionApplicantExport   = "APPLICANT_EXPORT"
	AuditActionCatalogChange     = "CATALOG_CHANGE"
	AuditActionSchoolChange      = "SCHOOL_CHANGE"
	AuditActionOpportunityChange = "OPPORTUNITY_CHANGE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditLogFilter narrows the admin audit trail.
type AuditLogFilter struct {
	Action     string
	Resource   string
	ResourceID string
	UserID     string
	Page       int
	PageSize   int
}
