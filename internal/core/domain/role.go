package domain

import "fmt"

// Role is the fixed set of user roles known to the platform.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"

	// RoleSuperadmin belongs to no school. Superadmin connections are kept
	// out of every tenant channel and never receive tenant broadcasts.
	RoleSuperadmin Role = "superadmin"
)

// ParseRole validates a role string coming from an untrusted source
// (JWT claims, request bodies).
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleSuperadmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// IsValid reports whether the role is one of the known values.
func (r Role) IsValid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// HasTenant reports whether users with this role are scoped to a school.
func (r Role) HasTenant() bool {
	return r != RoleSuperadmin
}
