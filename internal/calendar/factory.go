package calendar

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/abhisek/lessonsync/internal/store"
)

// NewProvider creates the raw backend selected by cfg.
func NewProvider(cfg Config) (Provider, error) {
	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case "google":
		base, err = NewGoogleProvider(cfg.Google)
	case "http":
		base, err = NewHTTPProvider(cfg.HTTP, nil)
	case "ics":
		base, err = NewICSProvider(cfg.ICS)
	case "mock":
		base = NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown calendar provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}
	return base, nil
}

// Decorate wraps a backend with the standard middleware:
// caller → retry → tracing → logging → base.
func Decorate(base Provider, cfg Config, attempts store.AttemptRepo, tracer trace.Tracer, logger *slog.Logger) Provider {
	logged := WithLogging(base, attempts, logger)
	traced := WithTracing(logged, tracer)
	return WithRetry(traced, cfg.Retry)
}

// NewSessionFor creates the session matching cfg. Backends without OAuth are
// connected with a static local token.
func NewSessionFor(cfg Config, tokens TokenStore, logger *slog.Logger, onReauth func(string)) *Session {
	opts := []SessionOption{
		WithTokenStore(tokens),
		WithSessionLogger(logger),
		WithReauthHook(onReauth),
	}
	if cfg.Provider == "google" {
		opts = append(opts, WithRefresher(&OAuthRefresher{Config: cfg.Google.OAuthConfig()}))
	}
	s := NewSession(cfg.AccountKey(), opts...)
	if !cfg.NeedsOAuth() {
		s.tok = LocalToken()
	}
	return s
}
