package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-union"
	"github.com/jackc/pgx/v5"
)

// ApprovalChannel is the NOTIFY channel written by the workers trigger.
const ApprovalChannel = "worker_approval"

// Dialer opens the dedicated connection used for LISTEN.
type Dialer func(ctx context.Context) (*pgx.Conn, error)

// Listener relays Postgres approval notifications to a publisher.
type Listener struct {
	dial        Dialer
	channel     string
	publisher   union.ApprovalPublisher
	logger      union.Logger
	maxInterval time.Duration
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithListenerLogger sets the listener logger.
func WithListenerLogger(logger union.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithListenerChannel overrides the channel name.
func WithListenerChannel(channel string) ListenerOption {
	return func(l *Listener) {
		if channel = strings.TrimSpace(channel); channel != "" {
			l.channel = channel
		}
	}
}

// WithReconnectInterval caps the wait between reconnect attempts.
func WithReconnectInterval(d time.Duration) ListenerOption {
	return func(l *Listener) {
		if d > 0 {
			l.maxInterval = d
		}
	}
}

// WithDialer replaces the connection factory.
func WithDialer(dial Dialer) ListenerOption {
	return func(l *Listener) {
		if dial != nil {
			l.dial = dial
		}
	}
}

// NewListener creates a listener connecting to dsn.
func NewListener(dsn string, publisher union.ApprovalPublisher, opts ...ListenerOption) *Listener {
	l := &Listener{
		dial: func(ctx context.Context) (*pgx.Conn, error) {
			return pgx.Connect(ctx, dsn)
		},
		channel:     ApprovalChannel,
		publisher:   publisher,
		logger:      union.ResolveLogger("realtime", nil, nil),
		maxInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Run listens until ctx is done, reconnecting with exponential backoff
// whenever the connection drops.
func (l *Listener) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = l.maxInterval
	b.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		err := l.listen(ctx, b.Reset)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		l.logger.Warn("approval listener disconnected", "error", err, "retry_in", wait)
	})

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (l *Listener) listen(ctx context.Context, connected func()) error {
	conn, err := l.dial(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "connect approval listener")
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "listen approval channel")
	}
	connected()
	l.logger.Info("listening for approval changes", "channel", l.channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		update, err := DecodeNotification(n.Payload)
		if err != nil {
			l.logger.Warn("dropping malformed approval notification", "payload", n.Payload, "error", err)
			continue
		}
		if err := l.publisher.Publish(ctx, update); err != nil {
			l.logger.Error("approval publish failed", "user_id", update.UserID, "error", err)
		}
	}
}

// DecodeNotification parses a worker_approval payload.
func DecodeNotification(payload string) (union.ApprovalUpdate, error) {
	var update union.ApprovalUpdate
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		return union.ApprovalUpdate{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "decode approval notification")
	}
	if strings.TrimSpace(update.UserID) == "" {
		return union.ApprovalUpdate{}, goerrors.New("approval notification without user_id", goerrors.CategoryBadInput)
	}
	if !update.Status.IsValid() {
		return union.ApprovalUpdate{}, goerrors.New("approval notification with unknown status", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"status": update.Status})
	}
	return update, nil
}
