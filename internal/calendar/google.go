package calendar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const privateKeyProp = "lessonsync_key"

// GoogleConfig holds Google Calendar configuration.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	CalendarID   string `yaml:"calendar_id"` // Default: "primary"

	// Endpoint overrides the API base URL (tests, proxies).
	Endpoint string `yaml:"endpoint"`
}

// OAuthConfig returns the OAuth2 configuration for the calendar scope.
func (c GoogleConfig) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       []string{gcal.CalendarEventsScope},
		Endpoint:     google.Endpoint,
	}
}

// GoogleProvider implements Provider using the Google Calendar API.
type GoogleProvider struct {
	cfg GoogleConfig
}

// NewGoogleProvider creates a Google Calendar provider.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	return &GoogleProvider{cfg: cfg}, nil
}

func (g *GoogleProvider) Name() string { return "google" }

func (g *GoogleProvider) service(ctx context.Context, token string) (*gcal.Service, error) {
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})),
	}
	if g.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.cfg.Endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, &ErrTransient{Err: fmt.Errorf("google calendar client: %w", err)}
	}
	return svc, nil
}

func (g *GoogleProvider) Create(ctx context.Context, token string, ev EventDescriptor) (*RemoteEvent, error) {
	svc, err := g.service(ctx, token)
	if err != nil {
		return nil, err
	}

	id := keyedEventID(ev.Key)
	body := &gcal.Event{
		Id:          id,
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339)},
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{privateKeyProp: ev.Key},
		},
	}
	if ev.Attendee != "" {
		body.Attendees = []*gcal.EventAttendee{{Email: ev.Attendee}}
	}

	call := svc.Events.Insert(g.cfg.CalendarID, body).Context(ctx)
	if ev.Conferencing {
		body.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             id,
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
		call = call.ConferenceDataVersion(1)
	}

	out, err := call.Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusConflict {
			// The idempotency key was used before; return the existing event.
			existing, gerr2 := svc.Events.Get(g.cfg.CalendarID, id).Context(ctx).Do()
			if gerr2 != nil {
				return nil, mapGoogleError(gerr2, id)
			}
			if existing.Status == "cancelled" {
				return nil, &ErrInvalidRequest{Reason: "event id was used by a deleted event", Err: err}
			}
			return fromGoogleEvent(existing)
		}
		return nil, mapGoogleError(err, "")
	}
	return fromGoogleEvent(out)
}

func (g *GoogleProvider) Get(ctx context.Context, token, id string) (*RemoteEvent, error) {
	svc, err := g.service(ctx, token)
	if err != nil {
		return nil, err
	}
	out, err := svc.Events.Get(g.cfg.CalendarID, id).Context(ctx).Do()
	if err != nil {
		return nil, mapGoogleError(err, id)
	}
	if out.Status == "cancelled" {
		return nil, &ErrNotFound{RemoteID: id}
	}
	return fromGoogleEvent(out)
}

func (g *GoogleProvider) Update(ctx context.Context, token, id string, p Patch) (*RemoteEvent, error) {
	svc, err := g.service(ctx, token)
	if err != nil {
		return nil, err
	}

	body := &gcal.Event{}
	if p.Start != nil {
		body.Start = &gcal.EventDateTime{DateTime: p.Start.Format(time.RFC3339)}
	}
	if p.End != nil {
		body.End = &gcal.EventDateTime{DateTime: p.End.Format(time.RFC3339)}
	}
	if p.Title != nil {
		body.Summary = *p.Title
	}
	if p.Description != nil {
		body.Description = *p.Description
		body.ForceSendFields = append(body.ForceSendFields, "Description")
	}
	if p.Location != nil {
		body.Location = *p.Location
		body.ForceSendFields = append(body.ForceSendFields, "Location")
	}

	out, err := svc.Events.Patch(g.cfg.CalendarID, id, body).Context(ctx).Do()
	if err != nil {
		return nil, mapGoogleError(err, id)
	}
	if out.Status == "cancelled" {
		return nil, &ErrNotFound{RemoteID: id}
	}
	return fromGoogleEvent(out)
}

func (g *GoogleProvider) Delete(ctx context.Context, token, id string) error {
	svc, err := g.service(ctx, token)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(g.cfg.CalendarID, id).Context(ctx).Do(); err != nil {
		return mapGoogleError(err, id)
	}
	return nil
}

func (g *GoogleProvider) List(ctx context.Context, token string, r TimeRange) ([]RemoteEvent, error) {
	svc, err := g.service(ctx, token)
	if err != nil {
		return nil, err
	}

	var out []RemoteEvent
	err = svc.Events.List(g.cfg.CalendarID).
		TimeMin(r.From.Format(time.RFC3339)).
		TimeMax(r.To.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Pages(ctx, func(page *gcal.Events) error {
			for _, item := range page.Items {
				if item.Status == "cancelled" {
					continue
				}
				ev, err := fromGoogleEvent(item)
				if err != nil {
					return err
				}
				out = append(out, *ev)
			}
			return nil
		})
	if err != nil {
		var inv *ErrInvalidResponse
		if errors.As(err, &inv) {
			return nil, err
		}
		return nil, mapGoogleError(err, "")
	}
	sortEvents(out)
	return out, nil
}

// keyedEventID derives a stable event ID from an idempotency key. The result
// only uses characters valid in Google event IDs (base32hex).
func keyedEventID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "ls" + hex.EncodeToString(sum[:16])
}

func fromGoogleEvent(ev *gcal.Event) (*RemoteEvent, error) {
	start, err := parseGoogleTime(ev.Start)
	if err != nil {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("event %s start: %w", ev.Id, err)}
	}
	end, err := parseGoogleTime(ev.End)
	if err != nil {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("event %s end: %w", ev.Id, err)}
	}

	out := &RemoteEvent{
		ID:               ev.Id,
		Start:            start,
		End:              end,
		Title:            ev.Summary,
		Description:      ev.Description,
		Location:         ev.Location,
		ConferencingLink: ev.HangoutLink,
	}
	if ev.ConferenceData != nil && out.ConferencingLink == "" {
		for _, ep := range ev.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				out.ConferencingLink = ep.Uri
				break
			}
		}
	}
	if ev.Updated != "" {
		if u, err := time.Parse(time.RFC3339, ev.Updated); err == nil {
			out.Updated = u.UTC()
		}
	}
	if ev.ExtendedProperties != nil {
		out.Key = ev.ExtendedProperties.Private[privateKeyProp]
	}
	return out, nil
}

func parseGoogleTime(t *gcal.EventDateTime) (time.Time, error) {
	if t == nil {
		return time.Time{}, errors.New("missing time")
	}
	if t.DateTime != "" {
		return time.Parse(time.RFC3339, t.DateTime)
	}
	if t.Date != "" {
		return time.Parse("2006-01-02", t.Date)
	}
	return time.Time{}, errors.New("empty time")
}

// mapGoogleError converts googleapi errors into the calendar taxonomy.
func mapGoogleError(err error, id string) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		// Network failures and timeouts.
		return &ErrTransient{Err: err}
	}

	switch {
	case gerr.Code == http.StatusUnauthorized:
		return &ErrUnauthenticated{Err: err}
	case gerr.Code == http.StatusForbidden:
		for _, item := range gerr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
				return &ErrRateLimit{RetryAfter: retryAfter(gerr.Header), Err: err}
			}
		}
		return &ErrUnauthenticated{Err: err}
	case gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone:
		return &ErrNotFound{RemoteID: id, Err: err}
	case gerr.Code == http.StatusTooManyRequests:
		return &ErrRateLimit{RetryAfter: retryAfter(gerr.Header), Err: err}
	case gerr.Code >= 500:
		return &ErrTransient{Err: err}
	case gerr.Code >= 400:
		return &ErrInvalidRequest{Reason: gerr.Message, Err: err}
	}
	return &ErrTransient{Err: err}
}

func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	if secs, err := strconv.Atoi(h.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
