package union

import (
	"context"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// MinPasswordLength mirrors the backend password policy.
const MinPasswordLength = 6

// SignUpInput is the sign up form.
type SignUpInput struct {
	Email       string `form:"email" json:"email"`
	Password    string `form:"password" json:"password"`
	DisplayName string `form:"full_name" json:"full_name"`
	Role        Role   `form:"role" json:"role"`
}

// Validate will validate the payload
func (r SignUpInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(MinPasswordLength, 72)),
		validation.Field(&r.DisplayName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Role, validation.Required, validation.By(func(value any) error {
			role, _ := value.(Role)
			if !role.CanSignUpAs() {
				return errors.New("must be worker, employer, both or customer")
			}
			return nil
		})),
	)
}

// SignInInput is the sign in form.
type SignInInput struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r SignInInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// SignUp creates the account and sends the user to the onboarding route of
// the requested role. The requested role is cached right away since the
// stored role row is written by the provisioning step and may lag behind.
// Failures come back as AuthError values and leave the state untouched.
func (a *AuthState) SignUp(ctx context.Context, input SignUpInput) (*Session, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	input.DisplayName = strings.TrimSpace(input.DisplayName)

	if err := input.Validate(); err != nil {
		a.recordAuthFailure(ctx, ActivityEventSignUpFailure, input.Email, err)
		return nil, validationFailure(ErrInvalidSignUp, err)
	}

	req := SignUpRequest{
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.DisplayName,
		Role:        input.Role,
	}

	session, err := a.provider.SignUp(ctx, req)
	if err != nil {
		a.recordAuthFailure(ctx, ActivityEventSignUpFailure, input.Email, err)
		return nil, AsAuthError(err, "sign_up")
	}

	if session == nil {
		a.logger.Info("account created, waiting for email confirmation", "email", input.Email)
		return nil, ErrConfirmationRequired
	}

	change, _ := a.sessions.apply(ctx, session, SessionSignedIn, false)
	a.resetCaches()
	a.roles.seed(change.Generation, input.Role)

	recordActivity(ctx, a.activity, a.logger, a.now, ActivityEvent{
		EventType: ActivityEventSignUpSuccess,
		UserID:    session.UserID,
		Role:      input.Role,
		Metadata:  map[string]any{"email": input.Email},
	})

	a.navigate(input.Role.OnboardingRoute())
	a.refresh(ctx, change.Generation, refreshProfiles)

	return session.Clone(), nil
}

// SignIn authenticates the user, resolves role and approval for the new
// session and lets the navigation policy pick the landing route.
func (a *AuthState) SignIn(ctx context.Context, input SignInInput) (*Session, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))

	if err := input.Validate(); err != nil {
		a.recordAuthFailure(ctx, ActivityEventSignInFailure, input.Email, err)
		return nil, validationFailure(ErrInvalidCredentials, err)
	}

	session, err := a.provider.SignIn(ctx, input.Email, input.Password)
	if err != nil {
		a.recordAuthFailure(ctx, ActivityEventSignInFailure, input.Email, err)
		return nil, AsAuthError(err, "sign_in")
	}

	change, _ := a.sessions.apply(ctx, session, SessionSignedIn, false)
	if change.IdentityChanged {
		a.resetCaches()
	}

	recordActivity(ctx, a.activity, a.logger, a.now, ActivityEvent{
		EventType: ActivityEventSignInSuccess,
		UserID:    session.UserID,
		Metadata:  map[string]any{"email": input.Email},
	})

	a.refresh(ctx, change.Generation, refreshAll)
	return session.Clone(), nil
}

// SignOut clears session, role and approval before anything else,
// navigates to the sign in page and then tells the provider. A provider
// error is logged and returned, the local state is cleared regardless.
func (a *AuthState) SignOut(ctx context.Context) error {
	previous, _ := a.sessions.clear(ctx)
	a.resetCaches()

	a.navigate(RouteAuth)
	a.evaluate()

	var remoteErr error
	if previous != nil && a.provider != nil {
		if err := a.provider.SignOut(ctx, previous); err != nil {
			a.logger.Error("remote sign out failed, local session cleared", "user_id", previous.UserID, "error", err)
			remoteErr = AsAuthError(err, "sign_out")
		}
	}

	userID := ""
	if previous != nil {
		userID = previous.UserID
	}
	recordActivity(ctx, a.activity, a.logger, a.now, ActivityEvent{
		EventType: ActivityEventSignOut,
		UserID:    userID,
	})

	return remoteErr
}

func (a *AuthState) recordAuthFailure(ctx context.Context, event ActivityEventType, email string, err error) {
	recordActivity(ctx, a.activity, a.logger, a.now, ActivityEvent{
		EventType: event,
		Actor:     ActorRef{ID: email, Type: "anonymous"},
		Metadata: map[string]any{
			"email": email,
			"error": err.Error(),
		},
	})
}
