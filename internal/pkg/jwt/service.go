// Package jwt issues and checks the bearer tokens the browser extension
// presents to the HTTP API and the websocket.
package jwt

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeExtension = "extension"
	issuer             = "jobpilot"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrNoSecret     = errors.New("token secret not configured")
)

type Claims struct {
	ClientID  string `json:"client_id"`
	TokenType string `json:"token_type"`

	jwtlib.RegisteredClaims
}

type Service interface {
	Issue(clientID string) (string, error)
	Validate(token string) (Claims, error)
}

type HMACService struct {
	secret    []byte
	expiresIn time.Duration

	now func() time.Time
}

func NewHMACService(secret string, expiresIn time.Duration) *HMACService {
	return &HMACService{
		secret:    []byte(secret),
		expiresIn: expiresIn,
		now:       time.Now,
	}
}

// Issue signs a token for clientID; a blank id gets a random one.
func (s *HMACService) Issue(clientID string) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}

	now := s.now().UTC()
	rc := jwtlib.RegisteredClaims{
		Issuer:   issuer,
		Subject:  clientID,
		IssuedAt: jwtlib.NewNumericDate(now),
		ID:       uuid.NewString(),
	}
	if s.expiresIn > 0 {
		rc.ExpiresAt = jwtlib.NewNumericDate(now.Add(s.expiresIn))
	}

	t := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{
		ClientID:         clientID,
		TokenType:        TokenTypeExtension,
		RegisteredClaims: rc,
	})
	return t.SignedString(s.secret)
}

func (s *HMACService) Validate(token string) (Claims, error) {
	if s == nil || len(s.secret) == 0 {
		return Claims{}, ErrNoSecret
	}
	p := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(issuer),
		jwtlib.WithTimeFunc(s.now),
	)

	var c Claims
	tok, err := p.ParseWithClaims(token, &c, func(*jwtlib.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if tok == nil || !tok.Valid || c.TokenType != TokenTypeExtension {
		return Claims{}, ErrTokenInvalid
	}
	return c, nil
}

// Verify adapts Validate to a plain error check.
func (s *HMACService) Verify(token string) error {
	_, err := s.Validate(token)
	return err
}
