package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSession    = errors.New("no session cookie")
	ErrInvalidToken = errors.New("invalid token")
)

const (
	sessionAudience = "session"
	linkAudience    = "pdf"
)

// Signer issues and checks HS256 tokens under one secret. The audience keeps
// session and link tokens from standing in for each other.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

func (s *Signer) sign(audience, subject string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// verify returns the subject as an id.
func (s *Signer) verify(audience, tokenString string) (int64, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, claims.Subject)
	}
	return id, nil
}

// Sessions maps an account id to and from the signed session cookie.
type Sessions struct {
	Signer *Signer
	Name   string
	Domain string
	TTL    time.Duration
}

func (s *Sessions) Cookie(accountID int64) (*http.Cookie, error) {
	token, err := s.Signer.sign(sessionAudience, strconv.FormatInt(accountID, 10), s.TTL)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     s.Name,
		Value:    token,
		Path:     "/",
		Domain:   s.Domain,
		Expires:  s.Signer.now().Add(s.TTL),
		MaxAge:   int(s.TTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// AccountID reads the session cookie. A missing cookie is ErrNoSession; a
// forged or expired one is ErrInvalidToken.
func (s *Sessions) AccountID(r *http.Request) (int64, error) {
	c, err := r.Cookie(s.Name)
	if err != nil || c.Value == "" {
		return 0, ErrNoSession
	}
	return s.Signer.verify(sessionAudience, c.Value)
}

// Links signs retrieval tokens for uploaded ticket files.
type Links struct {
	Signer *Signer
	TTL    time.Duration
}

func (l *Links) SignLink(ticket int64) (string, error) {
	return l.Signer.sign(linkAudience, strconv.FormatInt(ticket, 10), l.TTL)
}

func (l *Links) Verify(token string) (int64, error) {
	return l.Signer.verify(linkAudience, token)
}
