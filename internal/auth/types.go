package auth

import "time"

// Role is the closed set of dashboard privilege levels, ordered superadmin
// highest. Raw role strings from requests must pass through ParseRole.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAgency     Role = "agency"
	RoleAdmin      Role = "admin"
	RoleViewer     Role = "viewer"
)

// RequiresTenant reports whether users holding the role must be scoped to a
// single tenant. Superadmin and agency accounts operate across tenants.
func (r Role) RequiresTenant() bool {
	return r == RoleAdmin || r == RoleViewer
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperadmin, RoleAgency, RoleAdmin, RoleViewer:
		return true
	}
	return false
}

// NotifyPref selects which submission kinds trigger an email to the user.
type NotifyPref string

const (
	NotifyNone        NotifyPref = "none"
	NotifyContact     NotifyPref = "contact"
	NotifyApplication NotifyPref = "application"
	NotifyAll         NotifyPref = "all"
)

// Valid reports whether the preference is one of the known values.
func (n NotifyPref) Valid() bool {
	switch n {
	case NotifyNone, NotifyContact, NotifyApplication, NotifyAll:
		return true
	}
	return false
}

// Covers reports whether a submission kind should be delivered to a user
// holding this preference.
func (n NotifyPref) Covers(kind string) bool {
	switch n {
	case NotifyAll:
		return true
	case NotifyContact:
		return kind == "contact"
	case NotifyApplication:
		return kind == "application"
	}
	return false
}

// AdminUser is a principal that may log into the dashboard.
type AdminUser struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	TenantID     *string
	NotifyForms  NotifyPref
	IsActive     bool
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Principal is the authenticated identity derived from a verified request.
type Principal struct {
	ID       int64   `json:"id"`
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	Role     Role    `json:"role"`
	TenantID *string `json:"tenant_id"`
}

// Session is the server-side record proving a token is still live. The id is
// the token's jti claim; deleting the row revokes the token.
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}
