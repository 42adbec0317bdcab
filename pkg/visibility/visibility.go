// Package visibility defines the access-scope levels attached to catalog
// artifacts and the single predicate every read path must apply.
//
// The Filter type is the tenant/visibility isolation boundary for the whole
// engine: components that query artifact rows or their embeddings receive a
// Filter and must not widen it. Tenant scoping is always an explicit org ID
// argument alongside the Filter, never ambient session state.
package visibility

// Level is the access-scope tag on an artifact.
type Level string

const (
	// GlobalApproved artifacts are visible to every organization.
	GlobalApproved Level = "global_approved"
	// Tenant artifacts are visible to all members of the owning organization.
	Tenant Level = "tenant"
	// Personal artifacts are visible to their author and, contextually, to
	// org members browsing that author's profile.
	Personal Level = "personal"
	// Private artifacts are visible to their author only.
	Private Level = "private"
)

// Levels lists all valid levels in order of decreasing reach.
func Levels() []Level {
	return []Level{GlobalApproved, Tenant, Personal, Private}
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	switch l {
	case GlobalApproved, Tenant, Personal, Private:
		return true
	}
	return false
}

// IsOrgBrowsable reports whether artifacts at this level are visible to any
// member of the owning organization, regardless of authorship.
func IsOrgBrowsable(l Level) bool {
	return l == GlobalApproved || l == Tenant
}

// Filter decides which artifacts a principal may see. The zero value matches
// only org-browsable levels, which is the anonymous behavior.
type Filter struct {
	// PrincipalID is the authenticated principal, or empty for anonymous.
	PrincipalID string
}

// AnonymousFilter returns the filter applied when no principal is known:
// org-browsable levels only.
func AnonymousFilter() Filter {
	return Filter{}
}

// PrincipalFilter returns the filter for an authenticated principal, which
// additionally matches personal/private artifacts authored by that principal.
func PrincipalFilter(principalID string) Filter {
	return Filter{PrincipalID: principalID}
}

// Anonymous reports whether the filter carries no principal.
func (f Filter) Anonymous() bool {
	return f.PrincipalID == ""
}

// Allows reports whether an artifact with the given level and author is
// visible under this filter.
func (f Filter) Allows(level Level, authorID string) bool {
	if IsOrgBrowsable(level) {
		return true
	}
	if f.PrincipalID == "" {
		return false
	}
	return authorID == f.PrincipalID
}
