package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionIssuerName is the iss claim of locally minted tokens.
const SessionIssuerName = "tickrify"

// SessionIssuer signs and verifies HS256 tokens for local accounts.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewSessionIssuer uses secret when set. Otherwise a random key is generated,
// so tokens do not survive a restart.
func NewSessionIssuer(secret string, ttl time.Duration) *SessionIssuer {
	key := []byte(secret)
	if len(key) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			panic(err)
		}
		key = []byte(hex.EncodeToString(buf))
		log.Printf("level=warn component=auth msg=\"SESSION_SECRET not set; using ephemeral key\"")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionIssuer{
		secret: key,
		ttl:    ttl,
		now:    time.Now,
		parser: jwt.NewParser(
			jwt.WithIssuer(SessionIssuerName),
			jwt.WithLeeway(defaultLeeway),
			jwt.WithExpirationRequired(),
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		),
	}
}

// Issue returns a signed token for userID and its expiry.
func (s *SessionIssuer) Issue(userID, email, name string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("user id must be set")
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"iss":   SessionIssuerName,
		"sub":   userID,
		"email": email,
		"name":  name,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *SessionIssuer) Verify(tokenString string) (*Claims, error) {
	token, err := s.parser.Parse(tokenString, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return claimsFromToken(token, tokenString)
}
