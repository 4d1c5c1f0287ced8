package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPConfig holds configuration for a generic REST calendar.
type HTTPConfig struct {
	BaseURL string `yaml:"base_url"`
}

// HTTPProvider talks to a REST calendar service:
//
//	POST   /events          create (Idempotency-Key header)
//	GET    /events/{id}     get
//	PATCH  /events/{id}     update
//	DELETE /events/{id}     delete
//	GET    /events?from=&to= list
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a REST calendar provider.
func NewHTTPProvider(cfg HTTPConfig, client *http.Client) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("http calendar: base_url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("http calendar: base_url: %w", err)
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPProvider{baseURL: strings.TrimRight(cfg.BaseURL, "/"), client: client}, nil
}

func (h *HTTPProvider) Name() string { return "http" }

type wireEvent struct {
	ID               string `json:"id,omitempty"`
	Title            string `json:"title,omitempty"`
	Start            string `json:"start,omitempty"`
	End              string `json:"end,omitempty"`
	Description      string `json:"description,omitempty"`
	Location         string `json:"location,omitempty"`
	Attendee         string `json:"attendee,omitempty"`
	Conferencing     bool   `json:"conferencing,omitempty"`
	ConferencingLink string `json:"conferencingLink,omitempty"`
	Updated          string `json:"updated,omitempty"`
	Key              string `json:"key,omitempty"`
}

type wirePatch struct {
	Title       *string `json:"title,omitempty"`
	Start       *string `json:"start,omitempty"`
	End         *string `json:"end,omitempty"`
	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`
}

func (w wireEvent) toRemote() (*RemoteEvent, error) {
	start, err := time.Parse(time.RFC3339, w.Start)
	if err != nil {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("start: %w", err)}
	}
	end, err := time.Parse(time.RFC3339, w.End)
	if err != nil {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("end: %w", err)}
	}
	ev := &RemoteEvent{
		ID:               w.ID,
		Start:            start,
		End:              end,
		Title:            w.Title,
		Description:      w.Description,
		Location:         w.Location,
		ConferencingLink: w.ConferencingLink,
		Key:              w.Key,
	}
	if w.Updated != "" {
		if u, err := time.Parse(time.RFC3339, w.Updated); err == nil {
			ev.Updated = u.UTC()
		}
	}
	return ev, nil
}

func (h *HTTPProvider) Create(ctx context.Context, token string, ev EventDescriptor) (*RemoteEvent, error) {
	body := wireEvent{
		Title:        ev.Title,
		Start:        ev.Start.Format(time.RFC3339),
		End:          ev.End.Format(time.RFC3339),
		Description:  ev.Description,
		Location:     ev.Location,
		Attendee:     ev.Attendee,
		Conferencing: ev.Conferencing,
	}
	var out wireEvent
	hdr := http.Header{"Idempotency-Key": []string{ev.Key}}
	if err := h.do(ctx, token, http.MethodPost, "/events", hdr, body, "event", &out, ""); err != nil {
		return nil, err
	}
	return out.toRemote()
}

func (h *HTTPProvider) Get(ctx context.Context, token, id string) (*RemoteEvent, error) {
	var out wireEvent
	if err := h.do(ctx, token, http.MethodGet, "/events/"+url.PathEscape(id), nil, nil, "event", &out, id); err != nil {
		return nil, err
	}
	return out.toRemote()
}

func (h *HTTPProvider) Update(ctx context.Context, token, id string, p Patch) (*RemoteEvent, error) {
	body := wirePatch{Title: p.Title, Description: p.Description, Location: p.Location}
	if p.Start != nil {
		s := p.Start.Format(time.RFC3339)
		body.Start = &s
	}
	if p.End != nil {
		e := p.End.Format(time.RFC3339)
		body.End = &e
	}
	var out wireEvent
	if err := h.do(ctx, token, http.MethodPatch, "/events/"+url.PathEscape(id), nil, body, "event", &out, id); err != nil {
		return nil, err
	}
	return out.toRemote()
}

func (h *HTTPProvider) Delete(ctx context.Context, token, id string) error {
	return h.do(ctx, token, http.MethodDelete, "/events/"+url.PathEscape(id), nil, nil, "", nil, id)
}

func (h *HTTPProvider) List(ctx context.Context, token string, r TimeRange) ([]RemoteEvent, error) {
	q := url.Values{}
	q.Set("from", r.From.Format(time.RFC3339))
	q.Set("to", r.To.Format(time.RFC3339))

	var out struct {
		Events []wireEvent `json:"events"`
	}
	if err := h.do(ctx, token, http.MethodGet, "/events?"+q.Encode(), nil, nil, "event-list", &out, ""); err != nil {
		return nil, err
	}

	events := make([]RemoteEvent, 0, len(out.Events))
	for _, w := range out.Events {
		ev, err := w.toRemote()
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	sortEvents(events)
	return events, nil
}

// do performs one request. schema names the response schema; an empty
// schema means no body is expected.
func (h *HTTPProvider) do(ctx context.Context, token, method, path string, hdr http.Header, in any, schema string, out any, id string) error {
	var reqBody io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return &ErrInvalidRequest{Reason: "encode body", Err: err}
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reqBody)
	if err != nil {
		return &ErrInvalidRequest{Reason: "build request", Err: err}
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return &ErrTransient{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &ErrTransient{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 300 {
		return statusError(resp, raw, id)
	}
	if schema == "" || out == nil {
		return nil
	}
	if err := validateResponse(schema, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ErrInvalidResponse{Body: raw, Err: err}
	}
	return nil
}

func statusError(resp *http.Response, raw []byte, id string) error {
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	base := fmt.Errorf("%s: %s", resp.Status, msg)

	switch code := resp.StatusCode; {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &ErrUnauthenticated{Err: base}
	case code == http.StatusNotFound || code == http.StatusGone:
		return &ErrNotFound{RemoteID: id, Err: base}
	case code == http.StatusTooManyRequests:
		return &ErrRateLimit{RetryAfter: retryAfter(resp.Header), Err: base}
	case code >= 500:
		return &ErrTransient{Err: base}
	default:
		return &ErrInvalidRequest{Reason: resp.Status, Err: base}
	}
}
