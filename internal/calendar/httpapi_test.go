package calendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHTTPTestProvider(t *testing.T, h http.HandlerFunc) *HTTPProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := NewHTTPProvider(HTTPConfig{BaseURL: srv.URL + "/"}, srv.Client())
	require.NoError(t, err)
	return p
}

func TestHTTPProvider_Create(t *testing.T) {
	var gotKey, gotAuth string
	var body map[string]any
	p := newHTTPTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/events", r.URL.Path)
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"ev_9","title":"Lesson with Ana","start":"2024-02-05T14:00:00Z","end":"2024-02-05T14:50:00Z","conferencingLink":"https://meet.example/9","updated":"2024-02-01T10:00:00Z"}`)
	})

	ev := descriptor()
	ev.Conferencing = true
	out, err := p.Create(context.Background(), "tok-1", ev)
	require.NoError(t, err)

	assert.Equal(t, "lesson-1", gotKey)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "Lesson with Ana", body["title"])
	assert.Equal(t, true, body["conferencing"])
	assert.Equal(t, "ev_9", out.ID)
	assert.Equal(t, "https://meet.example/9", out.ConferencingLink)
	assert.True(t, out.Start.Equal(ev.Start))
	assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC), out.Updated)
}

func TestHTTPProvider_List(t *testing.T) {
	p := newHTTPTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-02-05T00:00:00Z", r.URL.Query().Get("from"))
		io.WriteString(w, `{"events":[
			{"id":"b","start":"2024-02-06T10:00:00Z","end":"2024-02-06T11:00:00Z"},
			{"id":"a","start":"2024-02-05T10:00:00Z","end":"2024-02-05T11:00:00Z"}
		]}`)
	})

	got, err := p.List(context.Background(), "tok", testRange())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestHTTPProvider_UpdateSendsOnlyPatchedFields(t *testing.T) {
	var body map[string]any
	p := newHTTPTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/events/ev_1", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)
		io.WriteString(w, `{"id":"ev_1","start":"2024-02-05T15:00:00Z","end":"2024-02-05T15:50:00Z"}`)
	})

	start := time.Date(2024, 2, 5, 15, 0, 0, 0, time.UTC)
	_, err := p.Update(context.Background(), "tok", "ev_1", Reschedule(start, start.Add(50*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"start": "2024-02-05T15:00:00Z", "end": "2024-02-05T15:50:00Z"}, body)
}

func TestHTTPProvider_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		header map[string]string
		want   Kind
	}{
		{http.StatusUnauthorized, nil, KindUnauthenticated},
		{http.StatusForbidden, nil, KindUnauthenticated},
		{http.StatusNotFound, nil, KindNotFound},
		{http.StatusGone, nil, KindNotFound},
		{http.StatusTooManyRequests, map[string]string{"Retry-After": "7"}, KindRateLimited},
		{http.StatusBadGateway, nil, KindTransient},
		{http.StatusUnprocessableEntity, nil, KindInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p := newHTTPTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"error":"nope"}`)
			})
			_, err := p.Get(context.Background(), "tok", "ev_1")
			require.Error(t, err)
			assert.Equal(t, tt.want, Classify(err))

			if tt.want == KindRateLimited {
				var rl *ErrRateLimit
				require.ErrorAs(t, err, &rl)
				assert.Equal(t, 7*time.Second, rl.RetryAfter)
			}
			if tt.want == KindNotFound {
				var nf *ErrNotFound
				require.ErrorAs(t, err, &nf)
				assert.Equal(t, "ev_1", nf.RemoteID)
			}
		})
	}
}

func TestHTTPProvider_MalformedResponse(t *testing.T) {
	tests := map[string]string{
		"not json":      `<html>oops</html>`,
		"missing id":    `{"start":"2024-02-05T14:00:00Z","end":"2024-02-05T15:00:00Z"}`,
		"bad start":     `{"id":"x","start":"tomorrow","end":"2024-02-05T15:00:00Z"}`,
		"wrong id type": `{"id":42,"start":"2024-02-05T14:00:00Z","end":"2024-02-05T15:00:00Z"}`,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			p := newHTTPTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, payload)
			})
			_, err := p.Get(context.Background(), "tok", "x")
			var inv *ErrInvalidResponse
			require.ErrorAs(t, err, &inv)
			assert.Equal(t, KindTransient, Classify(err))
		})
	}
}

func TestHTTPProvider_DeleteNoBody(t *testing.T) {
	p := newHTTPTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, p.Delete(context.Background(), "tok", "ev_1"))
}

func TestNewHTTPProvider_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPProvider(HTTPConfig{}, nil)
	assert.Error(t, err)
}
