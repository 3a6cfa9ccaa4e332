// Package cli implements the horeca-access command-line tool for operators
// and tenant administrators.
//
// # Overview
//
// Every command except migrate and seed acts as a user given with --as. The
// user is resolved into a principal and every operation goes through the
// authorization guard, so the CLI can do exactly what that user could do in
// the back-office.
//
// # Commands
//
// Schema and bootstrap:
//
//	horeca-access migrate up
//	horeca-access migrate status
//	horeca-access seed --platform-owner-email root@example.com
//
// Tenants, points and users:
//
//	horeca-access --as $ROOT tenant signup --name "Cafe One" --owner-email owner@cafe.example
//	horeca-access --as $OWNER point create --name "Main Street"
//	horeca-access --as $OWNER point deactivate $POINT
//	horeca-access --as $OWNER user create --email cook@cafe.example --point $POINT
//
// Roles:
//
//	horeca-access --as $OWNER role create --name "Shift Lead" --grant userManagement.viewUsers
//	horeca-access --as $OWNER assign --user $COOK --role "Shift Lead"
//	horeca-access --as $OWNER permissions $COOK
//
// Page visibility:
//
//	horeca-access --as $OWNER matrix set --role POINT reports=true files=false
//	horeca-access --as $COOK menu
//
// # Configuration
//
// The database and observability settings come from HORECA_* environment
// variables (see pkg/config). Output is a table by default, or JSON with
// --output json.
package cli
