// Package rbac stores named roles and role assignments and resolves a
// principal's effective permissions.
//
// # Permission Model
//
// Permissions are boolean flags in four fixed categories:
//
//	modules         labeling, files, learning, reports, menu
//	userManagement  viewUsers, createUsers, editUsers, deleteUsers, managePoints
//	roleManagement  viewRoles, createRoles, editRoles, deleteRoles, assignRoles
//	special         isPlatformOwner, canAccessOwnerPages, canManageBilling, canViewAllData
//
// A role stores a partial PermissionDoc. The Evaluator always returns a full
// PermissionSet with every key present.
//
// # Evaluation Order
//
// From lowest to highest precedence:
//
//  1. the structural default template (DefaultsFor)
//  2. the parent of the user's assigned role, if any (one hop only)
//  3. the assigned role itself
//
// A platform owner then gets every special flag regardless of the above.
//
// # Roles
//
// Role names are unique across all tenants. A role with a nil TenantID is a
// system role visible to every tenant. OWNER, PARTNER and POINT are reserved
// base roles: they are seeded by SeedBaseRoles and cannot be deleted or
// renamed.
//
// Inheritance is a single optional parent pointer. The store rejects a parent
// that itself has a parent, and a role that already has children cannot
// acquire a parent.
//
// # Assignments
//
// A user holds at most one role per tenant. AssignRole deletes the previous
// assignment and inserts the new one in one transaction; concurrent
// assignments resolve as last commit wins.
package rbac
