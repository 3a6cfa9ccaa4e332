package rbac

import "github.com/horecaops/backoffice/pkg/principal"

// Reserved base role names. They cannot be deleted.
const (
	BaseRoleOwner   = string(principal.RoleOwner)
	BaseRolePartner = string(principal.RolePartner)
	BaseRolePoint   = string(principal.RolePoint)
)

// IsProtectedRoleName reports whether name is a reserved base role
func IsProtectedRoleName(name string) bool {
	switch name {
	case BaseRoleOwner, BaseRolePartner, BaseRolePoint:
		return true
	}
	return false
}

func grant(ps PermissionSet, cats ...Category) {
	for _, cat := range cats {
		for _, key := range categoryKeys[cat] {
			ps[cat][key] = true
		}
	}
}

// DefaultsFor returns the structural default template of a role. Unknown
// roles get an all-false set.
func DefaultsFor(role principal.Role) PermissionSet {
	ps := NewPermissionSet()
	switch role {
	case principal.RolePlatformOwner:
		grant(ps, Categories...)
	case principal.RoleOwner:
		grant(ps, CategoryModules, CategoryUserManagement, CategoryRoleManagement)
	case principal.RolePartner:
		grant(ps, CategoryModules, CategoryUserManagement)
		ps.Set(FlagViewRoles, true)
	case principal.RolePoint:
		grant(ps, CategoryModules)
	case principal.RoleEmployee:
		ps.Set(FlagModulesLearning, true)
		ps.Set(FlagModulesMenu, true)
	}
	return ps
}

// docFromSet keeps only granted flags
func docFromSet(ps PermissionSet) PermissionDoc {
	doc := PermissionDoc{}
	for _, f := range ps.Granted() {
		cat, key := f.Split()
		doc.set(cat, key, true)
	}
	return doc
}

// BaseRoleDocs are the documents the reserved system roles are seeded with
func BaseRoleDocs() map[string]PermissionDoc {
	return map[string]PermissionDoc{
		BaseRoleOwner:   docFromSet(DefaultsFor(principal.RoleOwner)),
		BaseRolePartner: docFromSet(DefaultsFor(principal.RolePartner)),
		BaseRolePoint:   docFromSet(DefaultsFor(principal.RolePoint)),
	}
}
