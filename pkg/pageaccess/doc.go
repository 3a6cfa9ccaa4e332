// Package pageaccess decides which back-office pages each structural role
// sees in a tenant.
//
// The page list itself is a static Registry loaded at startup. Per-tenant
// overrides live in role_page_access; a page without an override is visible
// to OWNER and hidden from every other role. System pages can never be
// hidden from OWNER.
package pageaccess
