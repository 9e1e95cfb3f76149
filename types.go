package union

import (
	"context"

	"github.com/google/uuid"
)

// SignUpRequest carries the account creation details. Role and DisplayName
// travel to the backend as identity metadata so the provisioning step can
// create the role and profile rows.
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
	Role        Role
}

// Metadata returns the identity metadata sent with the account.
func (r SignUpRequest) Metadata() map[string]any {
	return map[string]any{
		"full_name": r.DisplayName,
		"role":      string(r.Role),
	}
}

// IdentityProvider is the external authentication backend.
type IdentityProvider interface {
	// SignUp creates the account. A nil session with a nil error means the
	// backend holds the session until the email address is confirmed.
	SignUp(ctx context.Context, req SignUpRequest) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, session *Session) error
	Refresh(ctx context.Context, session *Session) (*Session, error)
	SessionFromToken(ctx context.Context, token string) (*Session, error)
}

// SessionNotifier is implemented by providers that push session changes
// on their own, e.g. a background token refresh.
type SessionNotifier interface {
	OnSessionChange(handler func(*Session)) (unsubscribe func())
}

// SessionStorage keeps the current session between process runs.
type SessionStorage interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Clear(ctx context.Context) error
}

// RoleStore reads the role-by-user relation. It returns ErrRoleNotFound
// when the user has no role row.
type RoleStore interface {
	RoleByUser(ctx context.Context, userID string) (Role, error)
}

// WorkerStore reads the worker-profile relation. It returns
// ErrWorkerProfileNotFound when the user has no worker row.
type WorkerStore interface {
	WorkerByUser(ctx context.Context, userID string) (*WorkerProfile, error)
}

// EmployerStore reads the employer-profile relation. It returns
// ErrEmployerProfileNotFound when the user has no employer row.
type EmployerStore interface {
	EmployerByUser(ctx context.Context, userID string) (*EmployerProfile, error)
}

// ApprovalFeed delivers worker approval updates pushed by the store.
type ApprovalFeed interface {
	Subscribe(ctx context.Context, userID string, handler func(ApprovalUpdate)) (unsubscribe func(), err error)
}

// ApprovalPublisher announces approval changes made by this process.
type ApprovalPublisher interface {
	Publish(ctx context.Context, update ApprovalUpdate) error
}

// Navigator is the router of the surrounding UI. Navigate is called
// without internal locks held and may call back into the AuthState.
type Navigator interface {
	CurrentPath() string
	Navigate(path string)
}

// WorkerReviewStore backs the admin review workflow.
type WorkerReviewStore interface {
	ListPendingWorkers(ctx context.Context) ([]*WorkerProfile, error)
	WorkerByID(ctx context.Context, id uuid.UUID) (*WorkerProfile, error)
	UpdateApproval(ctx context.Context, worker *WorkerProfile) (*WorkerProfile, error)
}

// ProfileStore backs onboarding and profile edits.
type ProfileStore interface {
	WorkerStore
	EmployerStore
	CityByID(ctx context.Context, id uuid.UUID) (*City, error)
	CreateCity(ctx context.Context, city *City) (*City, error)
	SaveWorkerProfile(ctx context.Context, worker *WorkerProfile, skillIDs []uuid.UUID) (*WorkerProfile, error)
	SaveEmployerProfile(ctx context.Context, employer *EmployerProfile) (*EmployerProfile, error)
}
