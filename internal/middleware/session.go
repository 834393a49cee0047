package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

type sessionKey struct{}

// SessionOptions configures the session cookie.
type SessionOptions struct {
	CookieName string
	// Secret signs the cookie. When empty a random key is generated, so
	// sessions do not survive a restart.
	Secret string
	Secure bool
	MaxAge time.Duration
}

// Sessions binds every request to a session token carried in a signed cookie.
// Requests without a valid cookie get a fresh token and a Set-Cookie header.
type Sessions struct {
	codec  *securecookie.SecureCookie
	opts   SessionOptions
	logger *zap.Logger
}

// NewSessions builds the cookie codec.
func NewSessions(opts SessionOptions, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CookieName == "" {
		opts.CookieName = "session"
	}

	hashKey := []byte(opts.Secret)
	if len(hashKey) == 0 {
		logger.Warn("SESSION_SECRET not set, using an ephemeral signing key")
		hashKey = securecookie.GenerateRandomKey(64)
	}

	codec := securecookie.New(hashKey, nil)
	if opts.MaxAge > 0 {
		codec.MaxAge(int(opts.MaxAge / time.Second))
	}

	return &Sessions{codec: codec, opts: opts, logger: logger}
}

// Handler is the chi-compatible middleware.
func (s *Sessions) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := s.tokenFromRequest(r)
		if !ok {
			token = uuid.NewString()
			if err := s.issue(w, token); err != nil {
				s.logger.Error("failed to issue session cookie", zap.Error(err))
				http.Error(w, "session unavailable", http.StatusInternalServerError)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithSessionToken(r.Context(), token)))
	})
}

func (s *Sessions) tokenFromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(s.opts.CookieName)
	if err != nil {
		return "", false
	}

	var token string
	if err := s.codec.Decode(s.opts.CookieName, cookie.Value, &token); err != nil {
		s.logger.Debug("discarding invalid session cookie", zap.Error(err))
		return "", false
	}
	return token, token != ""
}

func (s *Sessions) issue(w http.ResponseWriter, token string) error {
	encoded, err := s.codec.Encode(s.opts.CookieName, token)
	if err != nil {
		return err
	}

	cookie := &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if s.opts.MaxAge > 0 {
		cookie.MaxAge = int(s.opts.MaxAge / time.Second)
	}
	http.SetCookie(w, cookie)
	return nil
}

// WithSessionToken stores token in ctx.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionKey{}, token)
}

// SessionToken returns the token bound by the Sessions middleware, or "".
func SessionToken(ctx context.Context) string {
	token, _ := ctx.Value(sessionKey{}).(string)
	return token
}
