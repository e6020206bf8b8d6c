package auth

import "sort"

// PermissionRequirement is the set of role names that are individually
// sufficient for an operation (OR semantics). It is a pure value: Check has
// no side effects and the requirement is immutable after construction.
type PermissionRequirement struct {
	allowed map[string]struct{}
}

// RequireRoles builds a requirement satisfied by any one of the given roles.
func RequireRoles(names ...string) PermissionRequirement {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}
	return PermissionRequirement{allowed: allowed}
}

// Check reports whether the identity's role set intersects the requirement.
func (p PermissionRequirement) Check(roles []string) bool {
	for _, r := range roles {
		if _, ok := p.allowed[r]; ok {
			return true
		}
	}
	return false
}

// Roles returns the accepted role names in stable order.
func (p PermissionRequirement) Roles() []string {
	out := make([]string, 0, len(p.allowed))
	for n := range p.allowed {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
