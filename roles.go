package union

import "strings"

// Role is the account category of a user. The zero value means the role
// has not been determined yet.
type Role string

const (
	RoleWorker   Role = "worker"
	RoleEmployer Role = "employer"
	RoleBoth     Role = "both"
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// ParseRole normalizes raw and reports whether it names a known role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	return role, role.IsValid()
}

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleWorker, RoleEmployer, RoleBoth, RoleAdmin, RoleCustomer:
		return true
	default:
		return false
	}
}

// IsWorker reports whether the role carries a worker profile subject to
// approval.
func (r Role) IsWorker() bool {
	return r == RoleWorker || r == RoleBoth
}

// IsEmployer reports whether the role carries an employer profile.
func (r Role) IsEmployer() bool {
	return r == RoleEmployer || r == RoleBoth
}

// CanSignUpAs reports whether a new account may request the role.
// Admin accounts are never self-assigned.
func (r Role) CanSignUpAs() bool {
	switch r {
	case RoleWorker, RoleEmployer, RoleBoth, RoleCustomer:
		return true
	default:
		return false
	}
}

// OnboardingRoute is where a freshly registered account lands.
func (r Role) OnboardingRoute() string {
	switch r {
	case RoleWorker, RoleBoth:
		return RouteWorkerOnboarding
	case RoleEmployer:
		return RouteEmployerOnboarding
	default:
		return RouteHome
	}
}

// GetAllRoles returns the known roles.
func GetAllRoles() []Role {
	return []Role{RoleWorker, RoleEmployer, RoleBoth, RoleAdmin, RoleCustomer}
}

// ApprovalStatus gates the public visibility of a worker profile. The zero
// value means no worker profile row exists.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// IsValid checks if the status is a known approval status
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	default:
		return false
	}
}

// ResolveStatus tracks a cached lookup.
type ResolveStatus int

const (
	// Unresolved means the lookup has not settled for the current session.
	Unresolved ResolveStatus = iota
	// Resolved means the cached value is authoritative.
	Resolved
	// Failed means the last lookup errored or timed out.
	Failed
)

func (s ResolveStatus) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "unresolved"
	}
}

// RoleState is the cached role of the current session.
type RoleState struct {
	Value  Role
	Status ResolveStatus
}

// Known reports whether a role value has been resolved.
func (s RoleState) Known() bool {
	return s.Status == Resolved && s.Value != ""
}

// ApprovalState is the cached approval of the current session's worker
// profile.
type ApprovalState struct {
	Value           ApprovalStatus
	RejectionReason string
	Status          ResolveStatus
}

// Same reports whether both states carry the same status and reason.
func (s ApprovalState) Same(other ApprovalState) bool {
	return s.Status == other.Status &&
		s.Value == other.Value &&
		s.RejectionReason == other.RejectionReason
}
