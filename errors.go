package union

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials       = "INVALID_CREDENTIALS"
	TextCodeAccountExists            = "ACCOUNT_EXISTS"
	TextCodeWeakPassword             = "WEAK_PASSWORD"
	TextCodeInvalidSignUp            = "INVALID_SIGN_UP"
	TextCodeConfirmationRequired     = "CONFIRMATION_REQUIRED"
	TextCodeAuthProvider             = "AUTH_PROVIDER_ERROR"
	TextCodeNoSession                = "NO_SESSION"
	TextCodeRoleNotFound             = "ROLE_NOT_FOUND"
	TextCodeWorkerProfileNotFound    = "WORKER_PROFILE_NOT_FOUND"
	TextCodeEmployerProfileNotFound  = "EMPLOYER_PROFILE_NOT_FOUND"
	TextCodeProfileNotProvisioned    = "PROFILE_NOT_PROVISIONED"
	TextCodeInvalidApprovalChange    = "INVALID_APPROVAL_TRANSITION"
	TextCodeRejectionReasonRequired  = "REJECTION_REASON_REQUIRED"
	TextCodeNotAdmin                 = "NOT_ADMIN"
	TextCodeInvalidOnboarding        = "INVALID_ONBOARDING"
	TextCodeSubscriptionNotAvailable = "SUBSCRIPTION_NOT_AVAILABLE"
)

// ErrInvalidCredentials is returned when sign in is rejected.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountExists is returned when signing up with a registered email.
var ErrAccountExists = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeAccountExists).
	WithCode(goerrors.CodeConflict)

// ErrWeakPassword is returned when the provider rejects a password.
var ErrWeakPassword = goerrors.New("password does not meet the requirements", goerrors.CategoryBadInput).
	WithTextCode(TextCodeWeakPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidSignUp is returned when sign up input fails validation.
var ErrInvalidSignUp = goerrors.New("invalid sign up details", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidSignUp).
	WithCode(goerrors.CodeBadRequest)

// ErrConfirmationRequired reports that the account was created but the
// provider holds the session until the email address is confirmed.
var ErrConfirmationRequired = goerrors.New("check your email to confirm the account", goerrors.CategoryAuth).
	WithTextCode(TextCodeConfirmationRequired).
	WithCode(goerrors.CodeUnauthorized)

// ErrAuthProvider wraps unexpected identity provider failures.
var ErrAuthProvider = goerrors.New("authentication service unavailable", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthProvider).
	WithCode(goerrors.CodeInternal)

// ErrNoSession is returned by operations that need a signed in user.
var ErrNoSession = goerrors.New("no active session", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoSession).
	WithCode(goerrors.CodeUnauthorized)

// ErrRoleNotFound is returned when no role row exists for a user.
var ErrRoleNotFound = goerrors.New("role not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRoleNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrWorkerProfileNotFound is returned when no worker row exists.
var ErrWorkerProfileNotFound = goerrors.New("worker profile not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeWorkerProfileNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrEmployerProfileNotFound is returned when no employer row exists.
var ErrEmployerProfileNotFound = goerrors.New("employer profile not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeEmployerProfileNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrProfileNotProvisioned is returned when a profile row did not show up
// within the provisioning wait.
var ErrProfileNotProvisioned = goerrors.New("profile is still being set up, try again shortly", goerrors.CategoryOperation).
	WithTextCode(TextCodeProfileNotProvisioned).
	WithCode(goerrors.CodeConflict)

// ErrInvalidApprovalTransition is returned for approval changes the
// review workflow does not allow.
var ErrInvalidApprovalTransition = goerrors.New("invalid approval transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidApprovalChange).
	WithCode(goerrors.CodeBadRequest)

// ErrRejectionReasonRequired is returned when rejecting without a reason.
var ErrRejectionReasonRequired = goerrors.New("please provide a rejection reason", goerrors.CategoryValidation).
	WithTextCode(TextCodeRejectionReasonRequired).
	WithCode(goerrors.CodeBadRequest)

// ErrNotAdmin is returned when a non admin attempts a review action.
var ErrNotAdmin = goerrors.New("admin role required", goerrors.CategoryAuthz).
	WithTextCode(TextCodeNotAdmin).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidOnboarding is returned when onboarding details fail validation.
var ErrInvalidOnboarding = goerrors.New("invalid profile details", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidOnboarding).
	WithCode(goerrors.CodeBadRequest)

// ErrSubscriptionNotAvailable is returned when no approval feed is wired.
var ErrSubscriptionNotAvailable = goerrors.New("approval change feed not configured", goerrors.CategoryInternal).
	WithTextCode(TextCodeSubscriptionNotAvailable).
	WithCode(goerrors.CodeInternal)

// IsAuthError reports whether err is a user facing failure of an explicit
// auth action.
func IsAuthError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	switch richErr.TextCode {
	case TextCodeInvalidCredentials,
		TextCodeAccountExists,
		TextCodeWeakPassword,
		TextCodeInvalidSignUp,
		TextCodeConfirmationRequired,
		TextCodeAuthProvider,
		TextCodeNoSession:
		return true
	}
	return false
}

// HasTextCode reports whether err carries the given text code.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	return richErr.TextCode == code
}

// AsAuthError maps a provider error into the AuthError taxonomy. Errors
// that already carry a text code pass through unchanged.
func AsAuthError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil && richErr.TextCode != "" {
		return err
	}

	base := ErrAuthProvider
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid login"),
		strings.Contains(msg, "invalid credentials"),
		strings.Contains(msg, "invalid_grant"):
		base = ErrInvalidCredentials
	case strings.Contains(msg, "already registered"),
		strings.Contains(msg, "already exists"),
		strings.Contains(msg, "user_already_exists"):
		base = ErrAccountExists
	case strings.Contains(msg, "weak_password"),
		strings.Contains(msg, "password should be"),
		strings.Contains(msg, "password is too"):
		base = ErrWeakPassword
	case strings.Contains(msg, "email not confirmed"):
		base = ErrConfirmationRequired
	}

	clone := base.Clone()
	if clone == nil {
		return err
	}
	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"operation": operation,
		"cause":     err.Error(),
	})
}
