package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

var errNotConnected = errors.New("no provider connection")

// TokenStore persists session tokens. store.TokenRepo implements it.
type TokenStore interface {
	Load(ctx context.Context, account string) (*oauth2.Token, error)
	Save(ctx context.Context, account string, tok *oauth2.Token) error
	Delete(ctx context.Context, account string) error
}

// Refresher exchanges an expired or rejected token for a new one.
type Refresher interface {
	Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
}

// OAuthRefresher refreshes tokens through an OAuth2 config.
type OAuthRefresher struct {
	Config *oauth2.Config
}

func (r *OAuthRefresher) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	if tok == nil || tok.RefreshToken == "" {
		return nil, errors.New("no refresh token")
	}
	// Force the token source to hit the token endpoint.
	expired := &oauth2.Token{RefreshToken: tok.RefreshToken, Expiry: time.Now().Add(-time.Minute)}
	return r.Config.TokenSource(ctx, expired).Token()
}

// Session is one provider connection: the current token, how to refresh it
// and where to persist it. Sessions are safe for concurrent use and several
// may coexist, one per account.
type Session struct {
	account   string
	refresher Refresher
	store     TokenStore
	onReauth  func(account string)
	logger    *slog.Logger
	now       func() time.Time

	mu  sync.Mutex
	tok *oauth2.Token
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRefresher sets how expired or rejected tokens are renewed.
func WithRefresher(r Refresher) SessionOption {
	return func(s *Session) { s.refresher = r }
}

// WithTokenStore persists tokens across restarts.
func WithTokenStore(ts TokenStore) SessionOption {
	return func(s *Session) { s.store = ts }
}

// WithReauthHook is called when the provider keeps rejecting the session
// and the user has to authenticate again.
func WithReauthHook(fn func(account string)) SessionOption {
	return func(s *Session) { s.onReauth = fn }
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession creates a disconnected session for account.
func NewSession(account string, opts ...SessionOption) *Session {
	s := &Session{
		account: account,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Account returns the account key the session persists under.
func (s *Session) Account() string {
	return s.account
}

// Connect installs a token obtained from the auth collaborator.
func (s *Session) Connect(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("connect: empty token")
	}
	s.mu.Lock()
	s.tok = tok
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(ctx, s.account, tok); err != nil {
			return fmt.Errorf("persist token: %w", err)
		}
	}
	s.logger.Info("calendar connected", "account", s.account)
	return nil
}

// Restore loads a previously persisted token. It reports whether one was found.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, nil
	}
	tok, err := s.store.Load(ctx, s.account)
	if err != nil {
		return false, fmt.Errorf("load token: %w", err)
	}
	if tok == nil {
		return false, nil
	}
	s.mu.Lock()
	s.tok = tok
	s.mu.Unlock()
	return true, nil
}

// Disconnect drops the token locally and from the store.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.tok = nil
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Delete(ctx, s.account); err != nil {
			return fmt.Errorf("delete token: %w", err)
		}
	}
	s.logger.Info("calendar disconnected", "account", s.account)
	return nil
}

// Connected reports whether the session currently holds a token.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tok != nil
}

// Token returns the access token valid right now, refreshing an expired one
// when possible. It is checked on every call; callers must not cache it.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	tok := s.tok
	s.mu.Unlock()

	if tok == nil {
		return "", &ErrUnauthenticated{Err: errNotConnected}
	}
	if tok.Expiry.IsZero() || tok.Expiry.After(s.now()) {
		return tok.AccessToken, nil
	}

	if err := s.Refresh(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok == nil {
		return "", &ErrUnauthenticated{Err: errNotConnected}
	}
	return s.tok.AccessToken, nil
}

// Refresh renews the token through the refresher.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok == nil {
		return &ErrUnauthenticated{Err: errNotConnected}
	}
	if s.refresher == nil {
		return &ErrUnauthenticated{Err: errors.New("token cannot be refreshed")}
	}

	next, err := s.refresher.Refresh(ctx, s.tok)
	if err != nil {
		return &ErrUnauthenticated{Err: fmt.Errorf("refresh: %w", err)}
	}
	if next.RefreshToken == "" {
		next.RefreshToken = s.tok.RefreshToken
	}
	s.tok = next

	if s.store != nil {
		if err := s.store.Save(ctx, s.account, next); err != nil {
			s.logger.Warn("persist refreshed token failed", "account", s.account, "error", err)
		}
	}
	s.logger.Debug("calendar token refreshed", "account", s.account)
	return nil
}

// requireReauth signals that the user must authenticate again.
func (s *Session) requireReauth() {
	s.logger.Warn("calendar re-authentication required", "account", s.account)
	if s.onReauth != nil {
		s.onReauth(s.account)
	}
}

// LocalToken is the static token used by backends that need no credentials.
func LocalToken() *oauth2.Token {
	return &oauth2.Token{AccessToken: "local", TokenType: "Bearer"}
}
