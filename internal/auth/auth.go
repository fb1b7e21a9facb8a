package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	CookieName = "grocery_session"
	SessionTTL = 12 * time.Hour
)

var (
	ErrLoginDisabled      = errors.New("admin login is not configured")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid session token")
)

type Config struct {
	Username     string
	Password     string
	PasswordHash string
	Secret       string
	TTL          time.Duration
}

// Service checks the single admin account and issues signed session tokens.
type Service struct {
	username string
	password string
	hash     []byte
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewService validates the configured credentials. An empty secret is
// replaced by a random one, so sessions do not survive a restart.
func NewService(cfg Config) (*Service, error) {
	s := &Service{
		username: cfg.Username,
		password: cfg.Password,
		ttl:      cfg.TTL,
		now:      time.Now,
	}
	if s.ttl <= 0 {
		s.ttl = SessionTTL
	}

	if cfg.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
			return nil, fmt.Errorf("admin password hash is not a bcrypt hash: %w", err)
		}
		s.hash = []byte(cfg.PasswordHash)
	}

	if cfg.Secret != "" {
		s.secret = []byte(cfg.Secret)
	} else {
		s.secret = make([]byte, 32)
		if _, err := rand.Read(s.secret); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
	}
	return s, nil
}

// Enabled reports whether any admin password is configured.
func (s *Service) Enabled() bool {
	return s.username != "" && (s.hash != nil || s.password != "")
}

// Login checks the credentials and returns a session token.
func (s *Service) Login(username, password string) (string, error) {
	if !s.Enabled() {
		return "", ErrLoginDisabled
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	var passOK bool
	if s.hash != nil {
		passOK = bcrypt.CompareHashAndPassword(s.hash, []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	}
	if !userOK || !passOK {
		return "", ErrInvalidCredentials
	}

	return s.issue(username)
}

func (s *Service) issue(subject string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// Verify returns the admin name carried by a valid token.
func (s *Service) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject != s.username {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// FromRequest verifies the session cookie, if any.
func (s *Service) FromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	name, err := s.Verify(c.Value)
	if err != nil {
		return "", false
	}
	return name, true
}

func (s *Service) SetCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Service) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type ctxKey struct{}

// WithAdmin stores the authenticated admin name in ctx.
func WithAdmin(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKey{}, name)
}

// AdminFrom returns the admin name stored by WithAdmin.
func AdminFrom(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(ctxKey{}).(string)
	return name, ok && name != ""
}
