package cab

import "strings"

type Role string

const (
	RoleCABMember        Role = "cab_member"
	RoleSecurityReviewer Role = "security_reviewer"
)

// Roles answers whether an actor holds a role. Authentication itself happens
// outside this package.
type Roles interface {
	HasRole(actor string, role Role) bool
}

// StaticRoles is a fixed actor list per role. A role with no configured
// actors is not enforced.
type StaticRoles struct {
	members map[Role]map[string]struct{}
}

func NewStaticRoles(cabMembers, securityReviewers []string) *StaticRoles {
	r := &StaticRoles{members: make(map[Role]map[string]struct{})}
	r.add(RoleCABMember, cabMembers)
	r.add(RoleSecurityReviewer, securityReviewers)
	return r
}

func (r *StaticRoles) add(role Role, actors []string) {
	for _, a := range actors {
		a = normalizeActor(a)
		if a == "" {
			continue
		}
		if r.members[role] == nil {
			r.members[role] = make(map[string]struct{})
		}
		r.members[role][a] = struct{}{}
	}
}

func (r *StaticRoles) HasRole(actor string, role Role) bool {
	if r == nil {
		return true
	}
	set := r.members[role]
	if len(set) == 0 {
		return true
	}
	_, ok := set[normalizeActor(actor)]
	return ok
}

func normalizeActor(actor string) string {
	return strings.ToLower(strings.TrimSpace(actor))
}

func sameActor(a, b string) bool {
	return normalizeActor(a) == normalizeActor(b)
}
