package enums

import "slices"

// Role is the marketplace-wide role carried in the session claims.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDealer Role = "dealer"
	RoleBuyer  Role = "buyer"
)

var validRoles = []Role{
	RoleAdmin,
	RoleDealer,
	RoleBuyer,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	return slices.Contains(validRoles, r)
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	return parse("role", validRoles, value)
}
