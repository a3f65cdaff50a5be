// Package security provides JWT issuing/validation and password hashing
// for the clinic backend. Revocation of issued tokens lives in
// internal/revocation; this package only handles the cryptographic layer.
package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed, expired, or fails validation.
var ErrInvalidToken = errors.New("invalid token")

// TokenKind distinguishes access from refresh tokens so one cannot be replayed as the other.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims holds the JWT claims for both access and refresh tokens.
// Role is "doctor" or "patient"; Kind tells access and refresh apart.
type Claims struct {
	jwt.RegisteredClaims
	Role string    `json:"role"`
	Kind TokenKind `json:"kind"`
}

// TokenInfo is the decoded identity of a validated token.
type TokenInfo struct {
	UserID    string
	Role      string
	JTI       string
	ExpiresAt time.Time
}

// TokenProvider issues and validates JWTs using RS256 or ES256 (private/public key pair).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with the given private key.
// issuer and audience are set on claims and checked during validation.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueAccess issues a short-lived access JWT for the given user.
// Returns the token string, its jti (the revocation key), and expiry.
func (p *TokenProvider) IssueAccess(userID, role string) (token, jti string, expiresAt time.Time, err error) {
	return p.issue(userID, role, KindAccess, p.accessTTL)
}

// IssueRefresh issues a long-lived refresh JWT. The jti is revoked on rotation
// so a stolen refresh token cannot be replayed after use.
func (p *TokenProvider) IssueRefresh(userID, role string) (token, jti string, expiresAt time.Time, err error) {
	return p.issue(userID, role, KindRefresh, p.refreshTTL)
}

func (p *TokenProvider) issue(userID, role string, kind TokenKind, ttl time.Duration) (string, string, time.Time, error) {
	jti, err := newJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
		Kind: kind,
	}
	token, err := p.sign(claims)
	return token, jti, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	return jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
}

// ValidateAccess parses and validates an access token (signature, exp, iss, aud, kind).
// It does not consult the revocation store; callers layer that check on top.
func (p *TokenProvider) ValidateAccess(tokenString string) (*TokenInfo, error) {
	return p.validate(tokenString, KindAccess)
}

// ValidateRefresh parses and validates a refresh token.
func (p *TokenProvider) ValidateRefresh(tokenString string) (*TokenInfo, error) {
	return p.validate(tokenString, KindRefresh)
}

func (p *TokenProvider) validate(tokenString string, kind TokenKind) (*TokenInfo, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return p.publicKey, nil
		default:
			return nil, ErrInvalidToken
		}
	}, jwt.WithIssuer(p.issuer), jwt.WithAudience(p.audience))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return &TokenInfo{
		UserID:    claims.Subject,
		Role:      claims.Role,
		JTI:       claims.ID,
		ExpiresAt: exp,
	}, nil
}

func newJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
