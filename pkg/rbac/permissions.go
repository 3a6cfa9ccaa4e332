package rbac

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/horecaops/backoffice/pkg/accesserr"
)

// Category groups permission flags
type Category string

const (
	CategoryModules        Category = "modules"
	CategoryUserManagement Category = "userManagement"
	CategoryRoleManagement Category = "roleManagement"
	CategorySpecial        Category = "special"
)

// Flag addresses a single permission as "category.key"
type Flag string

const (
	FlagModulesLabeling Flag = "modules.labeling"
	FlagModulesFiles    Flag = "modules.files"
	FlagModulesLearning Flag = "modules.learning"
	FlagModulesReports  Flag = "modules.reports"
	FlagModulesMenu     Flag = "modules.menu"

	FlagViewUsers    Flag = "userManagement.viewUsers"
	FlagCreateUsers  Flag = "userManagement.createUsers"
	FlagEditUsers    Flag = "userManagement.editUsers"
	FlagDeleteUsers  Flag = "userManagement.deleteUsers"
	FlagManagePoints Flag = "userManagement.managePoints"

	FlagViewRoles   Flag = "roleManagement.viewRoles"
	FlagCreateRoles Flag = "roleManagement.createRoles"
	FlagEditRoles   Flag = "roleManagement.editRoles"
	FlagDeleteRoles Flag = "roleManagement.deleteRoles"
	FlagAssignRoles Flag = "roleManagement.assignRoles"

	FlagIsPlatformOwner     Flag = "special.isPlatformOwner"
	FlagCanAccessOwnerPages Flag = "special.canAccessOwnerPages"
	FlagCanManageBilling    Flag = "special.canManageBilling"
	FlagCanViewAllData      Flag = "special.canViewAllData"
)

// Categories lists the fixed categories in display order
var Categories = []Category{CategoryModules, CategoryUserManagement, CategoryRoleManagement, CategorySpecial}

var categoryKeys = map[Category][]string{
	CategoryModules:        {"labeling", "files", "learning", "reports", "menu"},
	CategoryUserManagement: {"viewUsers", "createUsers", "editUsers", "deleteUsers", "managePoints"},
	CategoryRoleManagement: {"viewRoles", "createRoles", "editRoles", "deleteRoles", "assignRoles"},
	CategorySpecial:        {"isPlatformOwner", "canAccessOwnerPages", "canManageBilling", "canViewAllData"},
}

// Keys returns the fixed keys of a category
func (c Category) Keys() []string {
	return append([]string(nil), categoryKeys[c]...)
}

// Split separates a flag into category and key
func (f Flag) Split() (Category, string) {
	cat, key, _ := strings.Cut(string(f), ".")
	return Category(cat), key
}

// Valid reports whether the flag names a known category and key
func (f Flag) Valid() bool {
	cat, key := f.Split()
	return knownKey(cat, key)
}

// ParseFlag validates a dotted flag name
func ParseFlag(s string) (Flag, error) {
	f := Flag(strings.TrimSpace(s))
	if !f.Valid() {
		return "", accesserr.New(accesserr.Validation, "rbac.ParseFlag", "unknown permission flag %q", s)
	}
	return f, nil
}

// AllFlags lists every flag in category order
func AllFlags() []Flag {
	var flags []Flag
	for _, cat := range Categories {
		for _, key := range categoryKeys[cat] {
			flags = append(flags, Flag(string(cat)+"."+key))
		}
	}
	return flags
}

func knownKey(cat Category, key string) bool {
	for _, k := range categoryKeys[cat] {
		if k == key {
			return true
		}
	}
	return false
}

// PermissionSet is a fully resolved set: every key of every category is
// present.
type PermissionSet map[Category]map[string]bool

// NewPermissionSet returns a set with every flag false
func NewPermissionSet() PermissionSet {
	ps := make(PermissionSet, len(Categories))
	for _, cat := range Categories {
		ps[cat] = make(map[string]bool, len(categoryKeys[cat]))
		for _, key := range categoryKeys[cat] {
			ps[cat][key] = false
		}
	}
	return ps
}

// Has reports whether a flag is granted. Unknown flags are never granted.
func (ps PermissionSet) Has(f Flag) bool {
	cat, key := f.Split()
	return ps[cat][key]
}

// Set assigns a known flag
func (ps PermissionSet) Set(f Flag, v bool) {
	cat, key := f.Split()
	if !knownKey(cat, key) {
		return
	}
	if ps[cat] == nil {
		ps[cat] = make(map[string]bool)
	}
	ps[cat][key] = v
}

// Clone returns a deep copy
func (ps PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(ps))
	for cat, keys := range ps {
		out[cat] = make(map[string]bool, len(keys))
		for k, v := range keys {
			out[cat][k] = v
		}
	}
	return out
}

// Overlay applies explicit keys from doc on top of the set
func (ps PermissionSet) Overlay(doc PermissionDoc) {
	for cat, keys := range doc {
		for key, v := range keys {
			if knownKey(cat, key) {
				ps[cat][key] = v
			}
		}
	}
}

// Granted lists the granted flags in category order
func (ps PermissionSet) Granted() []Flag {
	var out []Flag
	for _, f := range AllFlags() {
		if ps.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// PermissionDoc is the persisted, possibly partial, permission document of a
// role
type PermissionDoc map[Category]map[string]bool

// ParsePermissionDoc decodes and validates a stored or submitted document.
// A legacy {"all": true} document grants every non-special flag.
func ParsePermissionDoc(raw []byte) (PermissionDoc, error) {
	doc := PermissionDoc{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return doc, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, accesserr.Wrap(accesserr.Validation, "rbac.ParsePermissionDoc", fmt.Errorf("permissions must be a JSON object: %w", err))
	}

	if allRaw, ok := top["all"]; ok {
		var all bool
		if err := json.Unmarshal(allRaw, &all); err != nil {
			return nil, accesserr.New(accesserr.Validation, "rbac.ParsePermissionDoc", "\"all\" must be a boolean")
		}
		if all {
			for _, cat := range Categories {
				if cat == CategorySpecial {
					continue
				}
				for _, key := range categoryKeys[cat] {
					doc.set(cat, key, true)
				}
			}
		}
		delete(top, "all")
	}

	for name, body := range top {
		cat := Category(name)
		if _, ok := categoryKeys[cat]; !ok {
			return nil, accesserr.New(accesserr.Validation, "rbac.ParsePermissionDoc", "unknown permission category %q", name)
		}
		var keys map[string]bool
		if err := json.Unmarshal(body, &keys); err != nil {
			return nil, accesserr.New(accesserr.Validation, "rbac.ParsePermissionDoc", "category %q must map keys to booleans", name)
		}
		for key, v := range keys {
			doc.set(cat, key, v)
		}
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// DocFromFlags builds a document from explicit flag values
func DocFromFlags(flags map[Flag]bool) PermissionDoc {
	doc := PermissionDoc{}
	for f, v := range flags {
		cat, key := f.Split()
		doc.set(cat, key, v)
	}
	return doc
}

func (d PermissionDoc) set(cat Category, key string, v bool) {
	if d[cat] == nil {
		d[cat] = make(map[string]bool)
	}
	d[cat][key] = v
}

// Validate rejects unknown categories and keys
func (d PermissionDoc) Validate() error {
	var unknown []string
	for cat, keys := range d {
		if _, ok := categoryKeys[cat]; !ok {
			unknown = append(unknown, string(cat))
			continue
		}
		for key := range keys {
			if !knownKey(cat, key) {
				unknown = append(unknown, string(cat)+"."+key)
			}
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return accesserr.New(accesserr.Validation, "rbac.PermissionDoc.Validate", "unknown permission keys: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// ValidateTenantScoped is Validate plus the rule that tenant roles may not
// address the special category
func (d PermissionDoc) ValidateTenantScoped() error {
	if err := d.Validate(); err != nil {
		return err
	}
	if len(d[CategorySpecial]) > 0 {
		return accesserr.New(accesserr.Validation, "rbac.PermissionDoc.Validate", "tenant roles cannot set %s flags", CategorySpecial)
	}
	return nil
}

// WithoutSpecial returns a copy of d without the special category
func (d PermissionDoc) WithoutSpecial() PermissionDoc {
	out := PermissionDoc{}
	for cat, keys := range d {
		if cat == CategorySpecial {
			continue
		}
		for key, v := range keys {
			out.set(cat, key, v)
		}
	}
	return out
}

// Merge returns a copy of d with other's keys applied on top
func (d PermissionDoc) Merge(other PermissionDoc) PermissionDoc {
	out := PermissionDoc{}
	for _, src := range []PermissionDoc{d, other} {
		for cat, keys := range src {
			for key, v := range keys {
				out.set(cat, key, v)
			}
		}
	}
	return out
}

// Marshal encodes the document for storage
func (d PermissionDoc) Marshal() (string, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal permissions: %w", err)
	}
	return string(b), nil
}
