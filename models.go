package union

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Session is the authenticated identity held by the SessionStore.
type Session struct {
	UserID       string         `json:"user_id"`
	Email        string         `json:"email,omitempty"`
	DisplayName  string         `json:"display_name,omitempty"`
	AccessToken  string         `json:"-"`
	RefreshToken string         `json:"-"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// SameIdentity reports whether both sessions belong to the same user.
// Two absent sessions are the same identity.
func (s *Session) SameIdentity(other *Session) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	return s.UserID == other.UserID
}

// Equal reports whether both sessions carry the same identity and tokens.
func (s *Session) Equal(other *Session) bool {
	if !s.SameIdentity(other) {
		return false
	}
	if s == nil {
		return true
	}
	return s.AccessToken == other.AccessToken && s.RefreshToken == other.RefreshToken
}

// Clone returns a copy safe to hand out to callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.ExpiresAt != nil {
		exp := *s.ExpiresAt
		out.ExpiresAt = &exp
	}
	if len(s.Metadata) > 0 {
		out.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// RoleRecord is a row of the role-by-user relation.
type RoleRecord struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Role          Role       `bun:"role,notnull" json:"role"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// PaymentMode is the preferred way a worker charges for work.
type PaymentMode string

const (
	PaymentHourly  PaymentMode = "hourly"
	PaymentDaily   PaymentMode = "daily"
	PaymentMonthly PaymentMode = "monthly"
)

// WorkerProfile is the worker-profile relation row.
type WorkerProfile struct {
	bun.BaseModel           `bun:"table:workers,alias:wrk"`
	ID                      uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id"`
	UserID                  uuid.UUID      `bun:"user_id,notnull,type:uuid" json:"user_id"`
	FullName                string         `bun:"full_name,notnull" json:"full_name"`
	Phone                   string         `bun:"phone" json:"phone,omitempty"`
	Bio                     string         `bun:"bio" json:"bio,omitempty"`
	YearsOfExperience       int            `bun:"years_of_experience" json:"years_of_experience"`
	CityID                  *uuid.UUID     `bun:"city_id,type:uuid" json:"city_id,omitempty"`
	LocationCity            string         `bun:"location_city" json:"location_city,omitempty"`
	LocationState           string         `bun:"location_state" json:"location_state,omitempty"`
	HourlyRate              *float64       `bun:"hourly_rate" json:"hourly_rate,omitempty"`
	DailyRate               *float64       `bun:"daily_rate" json:"daily_rate,omitempty"`
	MonthlyRate             *float64       `bun:"monthly_rate" json:"monthly_rate,omitempty"`
	PreferredPaymentMode    PaymentMode    `bun:"preferred_payment_mode" json:"preferred_payment_mode,omitempty"`
	ApprovalStatus          ApprovalStatus `bun:"approval_status,notnull,default:'pending'" json:"approval_status"`
	ApprovalRejectionReason string         `bun:"approval_rejection_reason" json:"approval_rejection_reason,omitempty"`
	ApprovedAt              *time.Time     `bun:"approved_at,nullzero" json:"approved_at,omitempty"`
	ApprovedBy              *uuid.UUID     `bun:"approved_by,type:uuid" json:"approved_by,omitempty"`
	CreatedAt               *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt               *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Approval returns the approval state carried by the row.
func (w *WorkerProfile) Approval() ApprovalState {
	if w == nil {
		return ApprovalState{Status: Resolved}
	}
	return ApprovalState{
		Value:           w.ApprovalStatus,
		RejectionReason: w.ApprovalRejectionReason,
		Status:          Resolved,
	}
}

// EmployerProfile is the employer-profile relation row.
type EmployerProfile struct {
	bun.BaseModel  `bun:"table:employers,alias:emp"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	UserID         uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	FullName       string     `bun:"full_name,notnull" json:"full_name"`
	CompanyName    string     `bun:"company_name" json:"company_name,omitempty"`
	Phone          string     `bun:"phone" json:"phone,omitempty"`
	LocationCity   string     `bun:"location_city" json:"location_city,omitempty"`
	LocationState  string     `bun:"location_state" json:"location_state,omitempty"`
	Verified       bool       `bun:"verified" json:"verified"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsComplete reports whether employer onboarding has been finished.
func (e *EmployerProfile) IsComplete() bool {
	if e == nil {
		return false
	}
	return strings.TrimSpace(e.Phone) != "" && strings.TrimSpace(e.LocationCity) != ""
}

// City is a serviceable location.
type City struct {
	bun.BaseModel `bun:"table:cities,alias:cty"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Name          string     `bun:"name,notnull" json:"name"`
	State         string     `bun:"state,notnull" json:"state"`
	IsMetro       bool       `bun:"is_metro" json:"is_metro"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Skill is a catalog entry workers can claim.
type Skill struct {
	bun.BaseModel `bun:"table:skills,alias:skl"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Name          string     `bun:"name,notnull" json:"name"`
	Category      string     `bun:"category,notnull" json:"category"`
	Description   string     `bun:"description" json:"description,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// WorkerSkill links a worker to a skill.
type WorkerSkill struct {
	bun.BaseModel    `bun:"table:worker_skills,alias:wsk"`
	ID               uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id"`
	WorkerID         uuid.UUID `bun:"worker_id,notnull,type:uuid" json:"worker_id"`
	SkillID          uuid.UUID `bun:"skill_id,notnull,type:uuid" json:"skill_id"`
	ProficiencyLevel string    `bun:"proficiency_level" json:"proficiency_level,omitempty"`
}

// ApprovalUpdate is a change of a worker's approval status, as delivered
// by the change feed or produced by an admin review.
type ApprovalUpdate struct {
	UserID          string         `json:"user_id"`
	WorkerID        string         `json:"worker_id,omitempty"`
	Status          ApprovalStatus `json:"approval_status"`
	RejectionReason string         `json:"approval_rejection_reason,omitempty"`
}
