package models

// UserRole names one of the platform's fixed RBAC roles. The set is
// shared with the legacy Node backend and the identity service.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleFinance    UserRole = "FINANCE"
	RoleFaculty    UserRole = "FACULTY"
	RoleStudent    UserRole = "STUDENT"
	RolePlacement  UserRole = "PLACEMENT"
	RoleMentor     UserRole = "MENTOR"

	// RoleSystem is the non-human actor used by scheduled jobs.
	RoleSystem UserRole = "SYSTEM"
)

// Roles lists every role the platform recognises.
func Roles() []UserRole {
	return []UserRole{
		RoleSuperAdmin,
		RoleAdmin,
		RoleFinance,
		RoleFaculty,
		RoleStudent,
		RolePlacement,
		RoleMentor,
		RoleSystem,
	}
}

// IsValidRole reports whether the role belongs to the closed set.
func IsValidRole(role UserRole) bool {
	for _, r := range Roles() {
		if r == role {
			return true
		}
	}
	return false
}

// Pagination is the page metadata block of list envelopes. The field
// names follow the legacy API so paging widgets keep working.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
