package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleResource   UserRole = "RESOURCE"
	RoleSpeech     UserRole = "SPEECH"
	RoleOT         UserRole = "OT"
	RoleCounseling UserRole = "COUNSELING"
	RoleSEA        UserRole = "SEA"
)

// ProviderRoles lists the roles that own a caseload and run distributions.
var ProviderRoles = []UserRole{RoleResource, RoleSpeech, RoleOT, RoleCounseling}

// IsProvider reports whether the role owns a caseload. Admins administer and
// SEAs deliver sessions on a provider's behalf; neither carries a caseload of
// their own.
func (r UserRole) IsProvider() bool {
	for _, role := range ProviderRoles {
		if r == role {
			return true
		}
	}
	return false
}

// User represents an application user (provider, SEA, or admin) stored in the
// users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// CaseloadSummary aggregates a provider's active caseload and the weekly
// service load it mandates.
type CaseloadSummary struct {
	ActiveStudents int `db:"active_students" json:"active_students"`
	WeeklySessions int `db:"weekly_sessions" json:"weekly_sessions"`
	WeeklyMinutes  int `db:"weekly_minutes" json:"weekly_minutes"`
}

// UserDetail is a user plus, for provider roles, their caseload summary.
type UserDetail struct {
	User
	Caseload *CaseloadSummary `json:"caseload,omitempty"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role          *UserRole
	ProvidersOnly bool
	Active        *bool
	Search        string
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
