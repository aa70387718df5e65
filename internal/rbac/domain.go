package rbac

import "time"

// Role represents a named permission grouping.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// RoleWithStats decorates a role with assignment counts for admin listings.
type RoleWithStats struct {
	Role
	UserCount       int
	PermissionCount int
}

// Built-in role names. Custom roles may exist alongside these; only the
// principal ordering below treats them specially.
const (
	RoleAdministrator = "Administrator"
	RoleEditor        = "Editor"
	RoleContributor   = "Contributor"
)

var principalOrder = map[string]int{
	RoleAdministrator: 0,
	RoleEditor:        1,
	RoleContributor:   2,
}

// PrincipalRole picks the most privileged role name for display. It is a
// labelling convenience for navigation chrome; authorization never consults
// it. Unknown role names rank below the built-ins, resolved alphabetically,
// and an empty role set defaults to Contributor.
func PrincipalRole(names []string) string {
	best := ""
	bestRank := len(principalOrder) + 1
	for _, name := range names {
		rank, known := principalOrder[name]
		if !known {
			rank = len(principalOrder)
		}
		switch {
		case best == "":
			best, bestRank = name, rank
		case rank < bestRank:
			best, bestRank = name, rank
		case rank == bestRank && name < best:
			best = name
		}
	}
	if best == "" {
		return RoleContributor
	}
	return best
}
