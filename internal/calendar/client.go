package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
)

// Client is the capability-scoped entry point to a calendar. Every call takes
// the Session it acts for; the token is re-read on each call.
type Client struct {
	provider Provider
	timeout  time.Duration
	validate *validator.Validate
	logger   *slog.Logger
}

// NewClient wraps a (decorated) provider. A zero timeout means no limit.
func NewClient(p Provider, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		provider: p,
		timeout:  timeout,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// ProviderName returns the backend name.
func (c *Client) ProviderName() string {
	return c.provider.Name()
}

// Create inserts a new event.
func (c *Client) Create(ctx context.Context, s *Session, ev EventDescriptor) (*RemoteEvent, error) {
	if err := c.validate.Struct(ev); err != nil {
		return nil, &ErrInvalidRequest{Reason: "event descriptor", Err: err}
	}
	var out *RemoteEvent
	err := c.call(ctx, s, "create", func(ctx context.Context, token string) error {
		var err error
		out, err = c.provider.Create(ctx, token, ev)
		return err
	})
	return out, err
}

// Get fetches one event.
func (c *Client) Get(ctx context.Context, s *Session, id string) (*RemoteEvent, error) {
	if id == "" {
		return nil, &ErrInvalidRequest{Reason: "remote id is required"}
	}
	var out *RemoteEvent
	err := c.call(ctx, s, "get", func(ctx context.Context, token string) error {
		var err error
		out, err = c.provider.Get(ctx, token, id)
		return err
	})
	return out, err
}

// Update applies a patch to an event.
func (c *Client) Update(ctx context.Context, s *Session, id string, p Patch) (*RemoteEvent, error) {
	if err := c.validatePatch(id, p); err != nil {
		return nil, err
	}
	var out *RemoteEvent
	err := c.call(ctx, s, "update", func(ctx context.Context, token string) error {
		var err error
		out, err = c.provider.Update(ctx, token, id, p)
		return err
	})
	return out, err
}

// Delete removes an event.
func (c *Client) Delete(ctx context.Context, s *Session, id string) error {
	if id == "" {
		return &ErrInvalidRequest{Reason: "remote id is required"}
	}
	return c.call(ctx, s, "delete", func(ctx context.Context, token string) error {
		return c.provider.Delete(ctx, token, id)
	})
}

// List returns events overlapping the range.
func (c *Client) List(ctx context.Context, s *Session, r TimeRange) ([]RemoteEvent, error) {
	if err := c.validate.Struct(r); err != nil {
		return nil, &ErrInvalidRequest{Reason: "time range", Err: err}
	}
	var out []RemoteEvent
	err := c.call(ctx, s, "list", func(ctx context.Context, token string) error {
		var err error
		out, err = c.provider.List(ctx, token, r)
		return err
	})
	return out, err
}

func (c *Client) validatePatch(id string, p Patch) error {
	if id == "" {
		return &ErrInvalidRequest{Reason: "remote id is required"}
	}
	if p.Empty() {
		return &ErrInvalidRequest{Reason: "empty patch"}
	}
	if (p.Start == nil) != (p.End == nil) {
		return &ErrInvalidRequest{Reason: "start and end must be patched together"}
	}
	if p.Start != nil && !p.End.After(*p.Start) {
		return &ErrInvalidRequest{Reason: "end must be after start"}
	}
	if err := c.validate.Struct(p); err != nil {
		return &ErrInvalidRequest{Reason: "patch", Err: err}
	}
	return nil
}

// call runs fn with the session's current token. An Unauthenticated result
// triggers one refresh and one retry; a second rejection asks the user to
// re-authenticate.
func (c *Client) call(ctx context.Context, s *Session, op string, fn func(context.Context, string) error) error {
	if s == nil {
		return &ErrUnauthenticated{Err: errNotConnected}
	}

	err := c.attempt(ctx, s, fn)
	var unauth *ErrUnauthenticated
	if !errors.As(err, &unauth) {
		return err
	}

	c.logger.Debug("calendar call unauthenticated, refreshing", "op", op, "account", s.Account())
	if rerr := s.Refresh(ctx); rerr != nil {
		s.requireReauth()
		return err
	}

	err = c.attempt(ctx, s, fn)
	if errors.As(err, &unauth) {
		s.requireReauth()
	}
	return err
}

func (c *Client) attempt(ctx context.Context, s *Session, fn func(context.Context, string) error) error {
	token, err := s.Token(ctx)
	if err != nil {
		return err
	}

	if c.timeout <= 0 {
		return fn(ctx, token)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err = fn(ctx, token)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && Classify(err) != KindNotFound {
		return &ErrTransient{Err: fmt.Errorf("timed out after %s: %w", c.timeout, err)}
	}
	return err
}
