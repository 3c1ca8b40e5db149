package models

// Role represents user roles in the system
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleTechnician Role = "technician"
	RoleViewer     Role = "viewer"
)

// Actions checked against a role.
const (
	ActionViewWorkOrder     = "view_work_order"
	ActionManageSafety      = "manage_safety"
	ActionSubmitPermit      = "submit_permit"
	ActionManageParts       = "manage_parts"
	ActionResolveDowntime   = "resolve_downtime"
	ActionStartWork         = "start_work"
	ActionCompleteWorkOrder = "complete_work_order"
	ActionUploadAttachment  = "upload_attachment"
	ActionDeleteAttachment  = "delete_attachment"
)

// Actor is the session user performing an operation. It is passed explicitly
// into every mutating call.
type Actor struct {
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	Department string `json:"department"`
	Role       Role   `json:"role"`
}

// Claims represents JWT claims
type Claims struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Department string `json:"department"`
	Role       Role   `json:"role"`
	Exp        int64  `json:"exp"`
}

// Actor converts the token claims into the acting user.
func (c Claims) Actor() Actor {
	return Actor{
		UserID:     c.UserID,
		UserName:   c.Username,
		Department: c.Department,
		Role:       c.Role,
	}
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleSupervisor, RoleTechnician, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission checks if a role may perform a specific action
func (r Role) HasPermission(action string) bool {
	switch r {
	case RoleAdmin, RoleSupervisor:
		return true
	case RoleTechnician:
		return action != ActionDeleteAttachment
	case RoleViewer:
		return action == ActionViewWorkOrder
	default:
		return false
	}
}
