package union

import "strings"

// Routes of the marketplace UI.
const (
	RouteHome               = "/"
	RouteProviders          = "/providers"
	RouteProvider           = "/provider/"
	RouteAuth               = "/auth"
	RouteWorkerOnboarding   = "/onboarding/worker"
	RouteEmployerOnboarding = "/onboarding/employer"
	RouteProfile            = "/profile"
	RouteWorkerProfile      = "/profile/worker"
	RouteEmployerProfile    = "/profile/employer"
	RouteAdmin              = "/admin"
	RoutePendingApproval    = "/pending-approval"
)

// NavState is the navigation state derived from a Snapshot.
type NavState string

const (
	StateLoading         NavState = "loading"
	StateUnauthenticated NavState = "unauthenticated"
	StateRoleUnresolved  NavState = "role_unresolved"
	StateAdmin           NavState = "admin"
	StateCustomer        NavState = "customer"
	StateEmployer        NavState = "employer"
	StateWorkerPending   NavState = "worker_pending"
	StateWorkerRejected  NavState = "worker_rejected"
	StateWorkerApproved  NavState = "worker_approved"
	// StateFallback is used for a resolved role outside the known set.
	StateFallback NavState = "fallback"
)

// Snapshot is the input of the navigation policy.
type Snapshot struct {
	Loading    bool
	Session    *Session
	Role       RoleState
	Approval   ApprovalState
	Generation uint64
	// EmployerIncomplete is set when the employer profile still needs
	// onboarding.
	EmployerIncomplete bool
}

// Decision is the outcome of the navigation policy. When Redirect is false
// the UI stays where it is and shows its loading view.
type Decision struct {
	State           NavState `json:"state"`
	Route           string   `json:"route,omitempty"`
	Redirect        bool     `json:"redirect"`
	Role            Role     `json:"role,omitempty"`
	RejectionReason string   `json:"rejection_reason,omitempty"`
	Warning         string   `json:"warning,omitempty"`
}

// Decide maps a snapshot to its navigation decision. Rules are evaluated
// top-down, first match wins. A worker role whose approval has not settled
// is unresolved, so no transient route is ever emitted for it.
func Decide(s Snapshot) Decision {
	if s.Loading {
		return Decision{State: StateLoading}
	}

	if s.Session == nil {
		return Decision{State: StateUnauthenticated, Route: RouteAuth, Redirect: true}
	}

	switch s.Role.Status {
	case Failed:
		return Decision{
			State:    StateRoleUnresolved,
			Route:    RouteAuth,
			Redirect: true,
			Warning:  "role could not be resolved",
		}
	case Unresolved:
		return Decision{State: StateRoleUnresolved}
	}

	role := s.Role.Value
	switch role {
	case "":
		return Decision{State: StateRoleUnresolved}
	case RoleAdmin:
		return Decision{State: StateAdmin, Route: RouteAdmin, Redirect: true, Role: role}
	case RoleCustomer:
		return Decision{State: StateCustomer, Route: RouteHome, Redirect: true, Role: role}
	case RoleEmployer:
		route := RouteEmployerProfile
		if s.EmployerIncomplete {
			route = RouteEmployerOnboarding
		}
		return Decision{State: StateEmployer, Route: route, Redirect: true, Role: role}
	case RoleWorker, RoleBoth:
		return decideWorker(role, s.Approval)
	}

	return Decision{
		State:    StateFallback,
		Route:    RouteHome,
		Redirect: true,
		Role:     role,
		Warning:  "unrecognized role " + string(role),
	}
}

func decideWorker(role Role, approval ApprovalState) Decision {
	switch approval.Status {
	case Unresolved:
		return Decision{State: StateRoleUnresolved, Role: role}
	case Failed:
		return Decision{
			State:    StateRoleUnresolved,
			Route:    RouteAuth,
			Redirect: true,
			Role:     role,
			Warning:  "approval status could not be resolved",
		}
	}

	switch approval.Value {
	case ApprovalApproved:
		return Decision{State: StateWorkerApproved, Route: RouteHome, Redirect: true, Role: role}
	case ApprovalRejected:
		return Decision{
			State:           StateWorkerRejected,
			Route:           RoutePendingApproval,
			Redirect:        true,
			Role:            role,
			RejectionReason: approval.RejectionReason,
		}
	default:
		return Decision{State: StateWorkerPending, Route: RoutePendingApproval, Redirect: true, Role: role}
	}
}

// Route applies d to the requested path. It returns the path to show and
// whether that is a redirect away from path.
func Route(path string, d Decision) (string, bool) {
	p := NormalizePath(path)
	if !d.Redirect {
		return p, false
	}

	switch d.State {
	case StateUnauthenticated:
		if IsProtectedPath(p) {
			return RouteAuth, true
		}
		return p, false
	case StateRoleUnresolved:
		return redirect(p, RouteAuth)
	case StateWorkerPending, StateWorkerRejected:
		switch p {
		case RoutePendingApproval, RouteWorkerOnboarding, RouteWorkerProfile:
			return p, false
		}
		return redirect(p, RoutePendingApproval)
	}

	switch {
	case p == RouteAuth:
		return redirect(p, d.Route)
	case p == RouteProfile:
		return redirect(p, profileRoute(d))
	case p == RouteAdmin || strings.HasPrefix(p, RouteAdmin+"/"):
		if d.State != StateAdmin {
			return redirect(p, RouteHome)
		}
	case d.State == StateAdmin && isMemberPath(p):
		return redirect(p, RouteAdmin)
	case p == RoutePendingApproval:
		if d.State != StateWorkerApproved {
			return redirect(p, RouteHome)
		}
	case p == RouteWorkerProfile || p == RouteWorkerOnboarding:
		if !d.Role.IsWorker() {
			return redirect(p, RouteHome)
		}
	case p == RouteEmployerProfile || p == RouteEmployerOnboarding:
		if !d.Role.IsEmployer() {
			return redirect(p, RouteHome)
		}
		if d.State == StateEmployer && p == RouteEmployerProfile && d.Route == RouteEmployerOnboarding {
			return redirect(p, RouteEmployerOnboarding)
		}
	}

	return p, false
}

func redirect(from, to string) (string, bool) {
	if to == "" || from == to {
		return from, false
	}
	return to, true
}

func profileRoute(d Decision) string {
	switch d.State {
	case StateAdmin:
		return RouteAdmin
	case StateEmployer:
		return d.Route
	case StateWorkerApproved:
		return RouteWorkerProfile
	default:
		return RouteHome
	}
}

func isMemberPath(p string) bool {
	return strings.HasPrefix(p, RouteProfile) ||
		strings.HasPrefix(p, "/onboarding/") ||
		p == RoutePendingApproval
}

// IsProtectedPath reports whether p requires a signed in user.
func IsProtectedPath(path string) bool {
	p := NormalizePath(path)
	return p == RouteProfile ||
		strings.HasPrefix(p, RouteProfile+"/") ||
		strings.HasPrefix(p, "/onboarding/") ||
		p == RouteAdmin ||
		strings.HasPrefix(p, RouteAdmin+"/") ||
		p == RoutePendingApproval
}

// NormalizePath strips the query, fragment and trailing slash of path.
func NormalizePath(path string) string {
	p := strings.TrimSpace(path)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return RouteHome
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = RouteHome
		}
	}
	return p
}
