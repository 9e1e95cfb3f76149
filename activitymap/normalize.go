// Package activitymap turns union activity events into a flat record for
// audit logs and downstream consumers.
package activitymap

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-union"
)

const (
	// MetadataKeyActorType stores union.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyRole stores the role carried by the event.
	MetadataKeyRole = "role"
	// MetadataKeyFromStatus stores the approval status before a review change.
	MetadataKeyFromStatus = "from_status"
	// MetadataKeyToStatus stores the approval status after a review change.
	MetadataKeyToStatus = "to_status"
	// MetadataKeyWorkerID is set by the approval state machine.
	MetadataKeyWorkerID = "worker_id"
)

const (
	ChannelAuth   = "auth"
	ChannelReview = "review"

	defaultActorID = "system"
)

// Normalized is the flat activity record.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
	now           func() time.Time
}

// Normalize converts event. Sign in, sign up and sign out events are
// reported on the auth channel against the user; approval changes are
// reported on the review channel against the worker profile.
func Normalize(event union.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		actorFallback: defaultActorID,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	out := Normalized{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.UserID),
			options.actorFallback,
		),
		Verb:       string(event.EventType),
		ObjectType: "user",
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    ChannelAuth,
		Metadata:   normalizeMetadata(event),
		OccurredAt: event.OccurredAt,
	}

	if event.EventType == union.ActivityEventApprovalChanged {
		out.Channel = ChannelReview
		out.ObjectType = "worker"
		if id, ok := event.Metadata[MetadataKeyWorkerID].(string); ok && id != "" {
			out.ObjectID = id
		}
	}

	if options.channel != "" {
		out.Channel = options.channel
	}
	if out.OccurredAt.IsZero() {
		out.OccurredAt = options.now().UTC()
	}

	return out
}

// WithChannel forces the channel of every record.
func WithChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithActorFallback sets the actor id used when neither the actor nor the
// user is known.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if id := strings.TrimSpace(actorID); id != "" {
			opts.actorFallback = id
		}
	}
}

// WithClock sets the clock used for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

// Sink adapts a consumer of normalized records to union.ActivitySink.
func Sink(consume func(context.Context, Normalized) error, opts ...Option) union.ActivitySink {
	return union.ActivitySinkFunc(func(ctx context.Context, event union.ActivityEvent) error {
		if consume == nil {
			return nil
		}
		return consume(ctx, Normalize(event, opts...))
	})
}

// LogSink writes every record to logger at info level.
func LogSink(logger union.Logger, opts ...Option) union.ActivitySink {
	return Sink(func(_ context.Context, n Normalized) error {
		logger.Info("activity",
			"verb", n.Verb,
			"channel", n.Channel,
			"actor_id", n.ActorID,
			"object_type", n.ObjectType,
			"object_id", n.ObjectID,
			"metadata", n.Metadata,
		)
		return nil
	}, opts...)
}

func normalizeMetadata(event union.ActivityEvent) map[string]any {
	metadata := make(map[string]any, len(event.Metadata)+4)
	for key, value := range event.Metadata {
		metadata[key] = value
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := metadata[MetadataKeyActorType]; !exists {
			metadata[MetadataKeyActorType] = actorType
		}
	}
	if event.Role != "" {
		metadata[MetadataKeyRole] = string(event.Role)
	}
	if event.FromStatus != "" {
		metadata[MetadataKeyFromStatus] = string(event.FromStatus)
	}
	if event.ToStatus != "" {
		metadata[MetadataKeyToStatus] = string(event.ToStatus)
	}

	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
