// Package auth issues and verifies the gateway's own operator-session
// tokens. It is unrelated to any credentials exchanged with a remote VNC
// server during the RFB security handshake — those live in rfb.Credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/rjsadow/rfbgo/internal/db"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the JWT claims issued for gateway operator sessions.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	TokenType TokenType `json:"token_type"`
}

// Identity is the authenticated principal attached to a request context.
type Identity struct {
	ID       string
	Username string
	Email    string
	Name     string
	Roles    []string
}

// Result is the outcome of validating a token.
type Result struct {
	Authenticated bool
	Identity      *Identity
	Message       string
	ExpiresAt     *time.Time
}

// LoginResult is returned after a successful username/password login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	Identity     *Identity
}

// Provider issues and validates the gateway's JWT operator tokens.
type Provider struct {
	database      *db.DB
	jwtSecret     []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// Config configures a Provider.
type Config struct {
	Secret        string
	AccessExpiry  time.Duration // default 15 minutes
	RefreshExpiry time.Duration // default 24 hours
}

// NewProvider builds a Provider backed by database for user lookups.
func NewProvider(database *db.DB, cfg Config) (*Provider, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	accessExpiry := cfg.AccessExpiry
	if accessExpiry == 0 {
		accessExpiry = 15 * time.Minute
	}
	refreshExpiry := cfg.RefreshExpiry
	if refreshExpiry == 0 {
		refreshExpiry = 24 * time.Hour
	}
	return &Provider{
		database:      database,
		jwtSecret:     []byte(cfg.Secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}, nil
}

// Authenticate validates an access token and returns the identity it carries.
func (p *Provider) Authenticate(ctx context.Context, tokenString string) (*Result, error) {
	if tokenString == "" {
		return &Result{Authenticated: false, Message: "no token provided"}, nil
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return &Result{Authenticated: false, Message: "token expired"}, nil
		}
		return &Result{Authenticated: false, Message: "invalid token"}, nil
	}
	if !token.Valid {
		return &Result{Authenticated: false, Message: "invalid token"}, nil
	}
	if claims.TokenType != TokenTypeAccess {
		return &Result{Authenticated: false, Message: "invalid token type"}, nil
	}

	expiresAt := claims.ExpiresAt.Time
	return &Result{
		Authenticated: true,
		Identity: &Identity{
			ID:       claims.UserID,
			Username: claims.Username,
			Roles:    claims.Roles,
		},
		ExpiresAt: &expiresAt,
	}, nil
}

// LoginWithCredentials authenticates a username/password pair and issues a
// fresh access/refresh token pair.
func (p *Provider) LoginWithCredentials(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := p.database.GetUserByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if user == nil {
		return nil, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	accessToken, err := p.generateToken(user, TokenTypeAccess)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := p.generateToken(user, TokenTypeRefresh)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(p.accessExpiry.Seconds()),
		Identity:     identityFromUser(user),
	}, nil
}

// RefreshAccessToken exchanges a valid refresh token for a new access token.
func (p *Provider) RefreshAccessToken(ctx context.Context, refreshTokenString string) (*LoginResult, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(refreshTokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid refresh token")
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, errors.New("invalid token type")
	}

	user, err := p.database.GetUserByID(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if user == nil {
		return nil, errors.New("user not found")
	}

	accessToken, err := p.generateToken(user, TokenTypeAccess)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshTokenString,
		ExpiresIn:    int64(p.accessExpiry.Seconds()),
		Identity:     identityFromUser(user),
	}, nil
}

func (p *Provider) generateToken(user *db.User, tokenType TokenType) (string, error) {
	expiry := p.accessExpiry
	if tokenType == TokenTypeRefresh {
		expiry = p.refreshExpiry
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "rfbgo",
			Subject:   user.ID,
		},
		UserID:    user.ID,
		Username:  user.Username,
		Roles:     user.Roles,
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.jwtSecret)
}

// HasPermission reports whether userID holds permission. "admin" requires
// the admin role; all other permissions require any authenticated user.
func (p *Provider) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	user, err := p.database.GetUserByID(userID)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}
	if slices.Contains(user.Roles, "admin") {
		return true, nil
	}
	if permission == "admin" {
		return false, nil
	}
	return true, nil
}

func identityFromUser(user *db.User) *Identity {
	return &Identity{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Name:     user.DisplayName,
		Roles:    user.Roles,
	}
}

// HashPassword returns a bcrypt hash of password for storage in db.User.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
