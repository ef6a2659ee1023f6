// Package permission classifies permission names into UI modules and holds
// the canonical permission catalog used for seeding roles.
package permission

import (
	"strings"

	"tokoerp/backend/internal/domain"
)

var (
	reportSet  = toSet(reportPermissions)
	catalogSet = toSet(catalog)
)

// Resolve returns the module tag of a permission name. Unknown names resolve
// to "other".
func Resolve(name string) string {
	if _, ok := reportSet[name]; ok {
		return ModuleReports
	}
	for _, e := range moduleTable {
		if _, ok := e.exact[name]; ok {
			return e.module
		}
		for _, prefix := range e.prefixes {
			if strings.HasPrefix(name, prefix) {
				return e.module
			}
		}
	}
	return ModuleOther
}

// Modules lists every module tag in display order.
func Modules() []string {
	modules := make([]string, 0, len(moduleTable)+2)
	for _, e := range moduleTable {
		modules = append(modules, e.module)
	}
	return append(modules, ModuleReports, ModuleOther)
}

// Group sets Module on each permission and buckets them in Modules order.
// Empty modules are left out; order inside a module follows the input.
func Group(perms []domain.Permission) []domain.PermissionGroup {
	buckets := make(map[string][]domain.Permission)
	for _, p := range perms {
		p.Module = Resolve(p.Name)
		buckets[p.Module] = append(buckets[p.Module], p)
	}

	groups := make([]domain.PermissionGroup, 0, len(buckets))
	for _, module := range Modules() {
		if len(buckets[module]) == 0 {
			continue
		}
		groups = append(groups, domain.PermissionGroup{Module: module, Permissions: buckets[module]})
	}
	return groups
}

func IsCatalogued(name string) bool {
	_, ok := catalogSet[name]
	return ok
}

// AllPermissions returns the catalog paired with the default guard.
func AllPermissions() []domain.PermissionSeed {
	seeds := make([]domain.PermissionSeed, 0, len(catalog))
	for _, name := range catalog {
		seeds = append(seeds, domain.PermissionSeed{Name: name, Guard: domain.DefaultGuard})
	}
	return seeds
}

// AdminMappings grants every catalog permission to AdminRole.
func AdminMappings() []domain.RoleMapping {
	return mappings(catalog, AdminRole)
}

// BasicMappings grants the restricted subset to BasicRole.
func BasicMappings() []domain.RoleMapping {
	return mappings(basicPermissions, BasicRole)
}

func mappings(names []string, role string) []domain.RoleMapping {
	out := make([]domain.RoleMapping, 0, len(names))
	for _, name := range names {
		out = append(out, domain.RoleMapping{Permission: name, Role: role})
	}
	return out
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
