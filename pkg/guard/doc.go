// Package guard is the authorization guard of the back-office.
//
// A Guard composes the principal resolver, the role store, the permission
// evaluator and the page access matrix. It exposes:
//
//   - predicates (RequireAuthenticated, RequireTenantScoped,
//     RequireStructuralRole, RequireCapability, CanAssignRole)
//   - guarded operations (AssignRole, role CRUD, page matrix reads and
//     writes, FilterMenu, AccessProfile)
//   - a thin net/http adapter (Middleware, StatusFor, WriteError)
//
// Every decision is counted in the authz metrics and every denial is
// logged and written to the audit trail. Failing to reach the store never
// grants access.
package guard
