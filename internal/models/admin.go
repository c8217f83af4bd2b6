package models

import "time"

// AdminRole separates unrestricted operators from section-scoped ones.
type AdminRole string

const (
	// AdminRoleSuper bypasses every section check.
	AdminRoleSuper AdminRole = "super"
	// AdminRoleScoped is limited to the sections listed in Permissions.
	AdminRoleScoped AdminRole = "scoped"
)

// Section names a gated area of the admin console.
type Section string

const (
	SectionLoginRequests        Section = "login_requests"
	SectionVerificationRequests Section = "verification_requests"
	SectionBlacklist            Section = "blacklist"
	SectionAdmins               Section = "admins"
	SectionHistory              Section = "history"
)

// AllSections lists every console section in navigation order.
var AllSections = []Section{
	SectionLoginRequests,
	SectionVerificationRequests,
	SectionHistory,
	SectionBlacklist,
	SectionAdmins,
}

// ValidSection reports whether name is a known section.
func ValidSection(name string) bool {
	for _, s := range AllSections {
		if string(s) == name {
			return true
		}
	}
	return false
}

// Admin is an operator account for the approval console.
type Admin struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"size:100;not null" json:"-"`
	Role         AdminRole  `gorm:"type:varchar(16);not null;default:'scoped'" json:"role"`
	Permissions  []Section  `gorm:"serializer:json;type:text" json:"permissions"`
	Disabled     bool       `gorm:"not null;default:false" json:"disabled"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CanAccess reports whether the admin may act on the section.
func (a *Admin) CanAccess(section Section) bool {
	if a == nil || a.Disabled {
		return false
	}
	if a.Role == AdminRoleSuper {
		return true
	}
	for _, p := range a.Permissions {
		if p == section {
			return true
		}
	}
	return false
}

// PermittedKinds returns the request kinds the admin may see in the queue.
func (a *Admin) PermittedKinds() []RequestKind {
	kinds := make([]RequestKind, 0, 2)
	for _, k := range []RequestKind{RequestKindLogin, RequestKindVerification} {
		if a.CanAccess(k.Section()) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
