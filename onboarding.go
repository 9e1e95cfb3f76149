package union

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse numbers without a country prefix.
const DefaultPhoneRegion = "IN"

// WorkerOnboarding is the worker profile form.
type WorkerOnboarding struct {
	Phone                string      `json:"phone" form:"phone"`
	Bio                  string      `json:"bio" form:"bio"`
	YearsOfExperience    int         `json:"years_of_experience" form:"years_of_experience"`
	CityID               string      `json:"city_id" form:"city_id"`
	CustomCity           string      `json:"custom_city" form:"custom_city"`
	HourlyRate           *float64    `json:"hourly_rate" form:"hourly_rate"`
	DailyRate            *float64    `json:"daily_rate" form:"daily_rate"`
	MonthlyRate          *float64    `json:"monthly_rate" form:"monthly_rate"`
	PreferredPaymentMode PaymentMode `json:"preferred_payment_mode" form:"preferred_payment_mode"`
	SkillIDs             []string    `json:"skill_ids" form:"skill_ids"`
}

// Validate checks the worker form.
func (w WorkerOnboarding) Validate() error {
	return validation.ValidateStruct(&w,
		validation.Field(&w.Phone, validation.Required, validation.By(validPhone)),
		validation.Field(&w.YearsOfExperience, validation.Min(0), validation.Max(70)),
		validation.Field(&w.CityID, cityIDRules(w.CustomCity)...),
		validation.Field(&w.CustomCity, validation.By(validCustomCity)),
		validation.Field(&w.HourlyRate, validation.Min(0.0)),
		validation.Field(&w.DailyRate, validation.Min(0.0)),
		validation.Field(&w.MonthlyRate, validation.Min(0.0)),
		validation.Field(&w.PreferredPaymentMode, validation.Required,
			validation.In(PaymentHourly, PaymentDaily, PaymentMonthly)),
		validation.Field(&w.SkillIDs, validation.Required.Error("select at least one skill"),
			validation.Each(validation.By(validUUID))),
	)
}

// EmployerOnboarding is the employer profile form. The location is a
// catalog city or a custom "City, State" added to the catalog.
type EmployerOnboarding struct {
	CompanyName string `json:"company_name" form:"company_name"`
	Phone       string `json:"phone" form:"phone"`
	CityID      string `json:"city_id" form:"city_id"`
	CustomCity  string `json:"custom_city" form:"custom_city"`
}

// Validate checks the employer form.
func (e EmployerOnboarding) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Phone, validation.Required, validation.By(validPhone)),
		validation.Field(&e.CityID, cityIDRules(e.CustomCity)...),
		validation.Field(&e.CustomCity, validation.By(validCustomCity)),
		validation.Field(&e.CompanyName, validation.Length(0, 200)),
	)
}

// cityIDRules requires a city id unless a custom city was entered.
func cityIDRules(customCity string) []validation.Rule {
	rules := []validation.Rule{validation.By(validUUID)}
	if strings.TrimSpace(customCity) == "" {
		rules = append(rules, validation.Required.Error("select a city or enter your own"))
	}
	return rules
}

// NormalizePhone parses a phone number in the default region and returns
// it in E.164 form.
func NormalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), DefaultPhoneRegion)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("must be a valid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// ParseCustomCity splits "City, State".
func ParseCustomCity(raw string) (city, state string, err error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return "", "", errors.New("use the format City, State")
	}
	city = strings.TrimSpace(parts[0])
	state = strings.TrimSpace(parts[1])
	if city == "" || state == "" {
		return "", "", errors.New("use the format City, State")
	}
	return city, state, nil
}

func validPhone(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := NormalizePhone(s); err != nil {
		return errors.New("must be a valid phone number")
	}
	return nil
}

func validUUID(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := uuid.Parse(s); err != nil {
		return errors.New("must be a valid id")
	}
	return nil
}

func validCustomCity(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	_, _, err := ParseCustomCity(s)
	return err
}

// Onboarding completes worker and employer profiles. Profile rows are
// created by the provisioning step after sign up, so loads wait for them
// under the provisioning policy.
type Onboarding struct {
	store   ProfileStore
	policy  ProvisioningPolicy
	machine ApprovalStateMachine
	logger  Logger
	now     func() time.Time
}

// OnboardingOption customizes an Onboarding service.
type OnboardingOption func(*Onboarding)

// WithOnboardingLogger sets the logger.
func WithOnboardingLogger(logger Logger) OnboardingOption {
	return func(o *Onboarding) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithProvisioningPolicy overrides the provisioning wait.
func WithProvisioningPolicy(policy ProvisioningPolicy) OnboardingOption {
	return func(o *Onboarding) {
		o.policy = policy
	}
}

// WithOnboardingStateMachine sets the state machine used when a rejected
// worker resubmits the profile.
func WithOnboardingStateMachine(sm ApprovalStateMachine) OnboardingOption {
	return func(o *Onboarding) {
		if sm != nil {
			o.machine = sm
		}
	}
}

// WithOnboardingClock injects a clock.
func WithOnboardingClock(now func() time.Time) OnboardingOption {
	return func(o *Onboarding) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOnboarding returns the onboarding service. When store also implements
// WorkerReviewStore a default state machine is built on it.
func NewOnboarding(store ProfileStore, opts ...OnboardingOption) *Onboarding {
	o := &Onboarding{
		store:  store,
		policy: DefaultProvisioningPolicy(),
		logger: defLogger{name: "onboarding"},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.machine == nil {
		if review, ok := store.(WorkerReviewStore); ok {
			o.machine = NewApprovalStateMachine(review, WithStateMachineLogger(o.logger))
		}
	}
	return o
}

// LoadWorker returns the worker row, waiting for provisioning.
func (o *Onboarding) LoadWorker(ctx context.Context, userID string) (*WorkerProfile, error) {
	return AwaitProvisioned(ctx, o.policy, func(ctx context.Context) (*WorkerProfile, error) {
		return o.store.WorkerByUser(ctx, userID)
	})
}

// LoadEmployer returns the employer row, waiting for provisioning.
func (o *Onboarding) LoadEmployer(ctx context.Context, userID string) (*EmployerProfile, error) {
	return AwaitProvisioned(ctx, o.policy, func(ctx context.Context) (*EmployerProfile, error) {
		return o.store.EmployerByUser(ctx, userID)
	})
}

// CompleteWorker saves the worker form. A rejected worker goes back to
// pending review.
func (o *Onboarding) CompleteWorker(ctx context.Context, userID string, in WorkerOnboarding) (*WorkerProfile, error) {
	if err := in.Validate(); err != nil {
		return nil, validationFailure(ErrInvalidOnboarding, err)
	}

	worker, err := o.LoadWorker(ctx, userID)
	if err != nil {
		return nil, err
	}

	phone, _ := NormalizePhone(in.Phone)
	record := *worker
	record.Phone = phone
	record.Bio = strings.TrimSpace(in.Bio)
	record.YearsOfExperience = in.YearsOfExperience
	record.HourlyRate = in.HourlyRate
	record.DailyRate = in.DailyRate
	record.MonthlyRate = in.MonthlyRate
	record.PreferredPaymentMode = in.PreferredPaymentMode
	now := o.now()
	record.UpdatedAt = &now

	city, err := o.resolveCity(ctx, in.CityID, in.CustomCity)
	if err != nil {
		return nil, err
	}
	record.CityID = &city.ID
	record.LocationCity = city.Name
	record.LocationState = city.State

	skills := make([]uuid.UUID, 0, len(in.SkillIDs))
	for _, raw := range in.SkillIDs {
		id, _ := uuid.Parse(raw)
		skills = append(skills, id)
	}

	saved, err := o.store.SaveWorkerProfile(ctx, &record, skills)
	if err != nil {
		return nil, err
	}

	if saved.ApprovalStatus == ApprovalRejected && o.machine != nil {
		actor := ActorRef{ID: userID, Type: "worker"}
		resubmitted, err := o.machine.Transition(ctx, actor, saved, ApprovalPending,
			WithTransitionMetadata(map[string]any{"resubmitted": true}))
		if err != nil {
			o.logger.Error("failed to resubmit worker profile", "user_id", userID, "error", err)
			return nil, err
		}
		saved = resubmitted
	}

	return saved, nil
}

// CompleteEmployer saves the employer form.
func (o *Onboarding) CompleteEmployer(ctx context.Context, userID string, in EmployerOnboarding) (*EmployerProfile, error) {
	if err := in.Validate(); err != nil {
		return nil, validationFailure(ErrInvalidOnboarding, err)
	}

	employer, err := o.LoadEmployer(ctx, userID)
	if err != nil {
		return nil, err
	}

	phone, _ := NormalizePhone(in.Phone)
	record := *employer
	record.Phone = phone
	record.CompanyName = strings.TrimSpace(in.CompanyName)

	city, err := o.resolveCity(ctx, in.CityID, in.CustomCity)
	if err != nil {
		return nil, err
	}
	record.LocationCity = city.Name
	record.LocationState = city.State
	now := o.now()
	record.UpdatedAt = &now

	return o.store.SaveEmployerProfile(ctx, &record)
}

// NextWorkerRoute is where a worker goes after saving the profile.
func NextWorkerRoute(worker *WorkerProfile) string {
	if worker != nil && worker.ApprovalStatus == ApprovalApproved {
		return RouteHome
	}
	return RoutePendingApproval
}

func (o *Onboarding) resolveCity(ctx context.Context, cityID, customCity string) (*City, error) {
	if strings.TrimSpace(customCity) != "" {
		name, state, _ := ParseCustomCity(customCity)
		return o.store.CreateCity(ctx, &City{Name: name, State: state})
	}
	id, _ := uuid.Parse(cityID)
	return o.store.CityByID(ctx, id)
}
