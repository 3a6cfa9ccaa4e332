package principal

import (
	"strings"

	"github.com/horecaops/backoffice/pkg/accesserr"
)

// Role is a structural or page role. The set is closed; every raw role
// string entering the system goes through ParseRole.
type Role string

const (
	RolePlatformOwner Role = "PLATFORM_OWNER"
	RoleOwner         Role = "OWNER"
	RolePartner       Role = "PARTNER"
	RolePoint         Role = "POINT"
	RoleEmployee      Role = "EMPLOYEE"
)

// AllRoles lists every role from most to least privileged
var AllRoles = []Role{RolePlatformOwner, RoleOwner, RolePartner, RolePoint, RoleEmployee}

// aliases maps normalized legacy spellings to canonical roles
var aliases = map[string]Role{
	"platform_owner": RolePlatformOwner,
	"platformowner":  RolePlatformOwner,
	"owner":          RoleOwner,
	"владелец":       RoleOwner,
	"partner":        RolePartner,
	"партнер":        RolePartner,
	"партнёр":        RolePartner,
	"point":          RolePoint,
	"точка":          RolePoint,
	"employee":       RoleEmployee,
	"сотрудник":      RoleEmployee,
}

// ParseRole normalizes case, surrounding whitespace and legacy aliases
func ParseRole(s string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	if r, ok := aliases[key]; ok {
		return r, nil
	}
	return "", accesserr.New(accesserr.Validation, "principal.ParseRole", "unknown role %q", s)
}

// MustParseRole is ParseRole for literals known at compile time
func MustParseRole(s string) Role {
	r, err := ParseRole(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Valid reports whether r is one of the canonical roles
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// InferStructuralRole derives a structural role from a user's relationships.
// The platform-owner flag wins over everything else. OWNER is never
// inferred; it is a named role held through an explicit assignment.
func InferStructuralRole(isPlatformOwner, hasTenant, hasPoint bool) Role {
	switch {
	case isPlatformOwner:
		return RolePlatformOwner
	case hasTenant && !hasPoint:
		return RolePartner
	case hasPoint:
		return RolePoint
	default:
		return RoleEmployee
	}
}
