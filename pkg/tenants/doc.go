// Package tenants stores the organizations, points and user accounts that
// principals are resolved from.
//
// A user's structural role is never stored: it follows from which of
// is_platform_owner, tenant_id and point_id are set. Store.LookupIdentity
// satisfies principal.UserSource.
package tenants
