package identity

import (
	"strings"
	"time"
)

// Role is the coarse account role carried in access tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps stored values to a Role, defaulting to RoleUser.
func ParseRole(s string) Role {
	if Role(strings.ToLower(strings.TrimSpace(s))) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Capability names an action a route guard can require.
type Capability string

const (
	CapabilityTrade    Capability = "trade"
	CapabilityModerate Capability = "moderate"
	CapabilityAdmin    Capability = "admin"
)

var roleCapabilities = map[Role][]Capability{
	RoleUser:  {CapabilityTrade},
	RoleAdmin: {CapabilityTrade, CapabilityModerate, CapabilityAdmin},
}

// Can reports whether r grants c.
func (r Role) Can(c Capability) bool {
	for _, have := range roleCapabilities[r] {
		if have == c {
			return true
		}
	}
	return false
}

// CampusRole is the self-declared relationship to the campus.
type CampusRole string

const (
	CampusRoleStudent CampusRole = "student"
	CampusRoleStaff   CampusRole = "staff"
	CampusRoleVendor  CampusRole = "vendor"
)

// ParseCampusRole returns the matching CampusRole, or CampusRoleStudent and
// false for anything unrecognized.
func ParseCampusRole(s string) (CampusRole, bool) {
	switch CampusRole(strings.ToLower(strings.TrimSpace(s))) {
	case "", CampusRoleStudent:
		return CampusRoleStudent, true
	case CampusRoleStaff:
		return CampusRoleStaff, true
	case CampusRoleVendor:
		return CampusRoleVendor, true
	default:
		return CampusRoleStudent, false
	}
}

// User is the stored account.
// PasswordHash is never exposed outside the auth service; use Public for responses.
type User struct {
	ID           string
	Username     string
	FullName     string
	Email        string
	Phone        string
	CampusRole   CampusRole
	Role         Role
	IsVerified   bool
	ProfileImage string
	PasswordHash string
	CreatedAt    time.Time
}

// PublicUser is the sanitized projection returned to clients.
type PublicUser struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	FullName     string     `json:"fullName"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	CampusRole   CampusRole `json:"campusRole"`
	Role         Role       `json:"role"`
	IsVerified   bool       `json:"isVerified"`
	ProfileImage string     `json:"profileImage"`
}

// Public strips credentials from u.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:           u.ID,
		Username:     u.Username,
		FullName:     u.FullName,
		Email:        u.Email,
		Phone:        u.Phone,
		CampusRole:   u.CampusRole,
		Role:         u.Role,
		IsVerified:   u.IsVerified,
		ProfileImage: u.ProfileImage,
	}
}
