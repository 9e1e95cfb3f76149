package union

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	goerrors "github.com/goliatone/go-errors"
)

// ProvisioningPolicy bounds the wait for rows created by the provisioning
// step after sign up.
type ProvisioningPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultProvisioningPolicy waits up to ten seconds.
func DefaultProvisioningPolicy() ProvisioningPolicy {
	return ProvisioningPolicy{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsedTime:  10 * time.Second,
	}
}

func (p ProvisioningPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = p.MaxElapsedTime
	return backoff.WithContext(b, ctx)
}

// AwaitProvisioned calls fetch until it stops reporting a missing row,
// fails for another reason, or the policy gives up. Giving up yields
// ErrProfileNotProvisioned.
func AwaitProvisioned[T any](ctx context.Context, policy ProvisioningPolicy, fetch func(context.Context) (T, error)) (T, error) {
	var (
		out      T
		attempts int
	)

	err := backoff.Retry(func() error {
		attempts++
		v, err := fetch(ctx)
		if err == nil {
			out = v
			return nil
		}
		if isNotFound(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy.backOff(ctx))

	if err == nil {
		return out, nil
	}
	if isNotFound(err) {
		return out, ErrProfileNotProvisioned.Clone().WithMetadata(map[string]any{
			"attempts": attempts,
		})
	}
	return out, err
}

func isNotFound(err error) bool {
	return goerrors.IsNotFound(err) ||
		HasTextCode(err, TextCodeRoleNotFound) ||
		HasTextCode(err, TextCodeWorkerProfileNotFound) ||
		HasTextCode(err, TextCodeEmployerProfileNotFound)
}
