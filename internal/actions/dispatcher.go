// Package actions performs the side effects behind routing actions. Every
// call runs with its own timeout and retry budget, outside any transaction.
package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/routing"
)

type Handler interface {
	Handle(ctx context.Context, a routing.Action) (map[string]any, error)
}

type HandlerFunc func(ctx context.Context, a routing.Action) (map[string]any, error)

func (f HandlerFunc) Handle(ctx context.Context, a routing.Action) (map[string]any, error) {
	return f(ctx, a)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Dispatcher routes an action to the handler registered for its type, or to
// Fallback when none is.
type Dispatcher struct {
	Handlers map[string]Handler
	Fallback Handler
	Timeout  time.Duration
	Retries  int
	Backoff  time.Duration
	Logger   zerolog.Logger
}

var _ routing.ActionExecutor = (*Dispatcher)(nil)

func NewDispatcher(timeout time.Duration, retries int, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Dispatcher{
		Handlers: map[string]Handler{},
		Fallback: LogHandler{Logger: logger},
		Timeout:  timeout,
		Retries:  retries,
		Backoff:  200 * time.Millisecond,
		Logger:   logger,
	}
}

func (d *Dispatcher) Register(actionType string, h Handler) {
	d.Handlers[actionType] = h
}

func (d *Dispatcher) Execute(ctx context.Context, a routing.Action) (map[string]any, error) {
	h, ok := d.Handlers[a.Type]
	if !ok {
		h = d.Fallback
	}
	if h == nil {
		return nil, Permanent(fmt.Errorf("no handler for action %q", a.Type))
	}
	if a.IdempotencyKey == "" {
		a.IdempotencyKey = IdempotencyKey(a)
	}

	var lastErr error
	for attempt := 0; attempt <= d.Retries; attempt++ {
		if attempt > 0 {
			wait := d.Backoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		out, err := d.attempt(ctx, h, a)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if IsPermanent(err) || ctx.Err() != nil {
			break
		}
		d.Logger.Debug().Err(err).Str("type", a.Type).Int("attempt", attempt+1).Msg("action attempt failed")
	}
	return nil, lastErr
}

func (d *Dispatcher) attempt(ctx context.Context, h Handler, a routing.Action) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()
	return h.Handle(ctx, a)
}

// IdempotencyKey derives a stable key for a rule action fired by a message,
// so redelivering the same message reuses it. The action's position in its
// rule is part of the key. Actions without a message id get a random key.
func IdempotencyKey(a routing.Action) string {
	if a.Email.MessageID == "" {
		return uuid.NewString()
	}
	name := fmt.Sprintf("%d/%d/%d/%s/%s", a.TeamID, a.RuleID, a.Index, a.Email.MessageID, a.Type)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// LogHandler records actions that have no integration configured.
type LogHandler struct {
	Logger zerolog.Logger
}

func (l LogHandler) Handle(_ context.Context, a routing.Action) (map[string]any, error) {
	l.Logger.Info().
		Int64("rule_id", a.RuleID).
		Str("type", a.Type).
		Str("idempotency_key", a.IdempotencyKey).
		Interface("params", a.Params).
		Msg("action recorded")
	return map[string]any{"recorded": true}, nil
}
