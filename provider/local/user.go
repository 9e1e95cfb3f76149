package local

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is an account held by the local provider.
type User struct {
	bun.BaseModel   `bun:"table:users,alias:usr"`
	ID              uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Email           string         `bun:"email,notnull" json:"email"`
	PasswordHash    string         `bun:"password_hash,notnull" json:"-"`
	FullName        string         `bun:"full_name,notnull" json:"full_name"`
	RawUserMetaData map[string]any `bun:"raw_user_meta_data,type:jsonb" json:"raw_user_meta_data,omitempty"`
	SignedOutAt     *time.Time     `bun:"signed_out_at,nullzero" json:"signed_out_at,omitempty"`
	LastSignInAt    *time.Time     `bun:"last_sign_in_at,nullzero" json:"last_sign_in_at,omitempty"`
	CreatedAt       *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// revoked reports whether a token issued at issuedMicros predates the
// last sign out.
func (u *User) revoked(issuedMicros int64) bool {
	if u == nil || u.SignedOutAt == nil {
		return false
	}
	return issuedMicros <= u.SignedOutAt.UnixMicro()
}
