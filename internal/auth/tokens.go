package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/abrezinsky/voterewards/internal/models"
)

const (
	// TokenExpiry is the lifetime of a voter token
	TokenExpiry = 24 * time.Hour
	tokenIssuer = "voterewards"
)

// ErrInvalidToken is returned for bearer tokens that fail to parse or verify
var ErrInvalidToken = errors.New("invalid voter token")

// VoterClaims identifies a voter inside a signed token
type VoterClaims struct {
	Name   string `json:"name"`
	GameID string `json:"game_id,omitempty"`
	jwt.RegisteredClaims
}

// VoterTokens issues and verifies HS256 voter tokens
type VoterTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewVoterTokens creates a token issuer. A non-positive ttl uses TokenExpiry.
func NewVoterTokens(secret string, ttl time.Duration) *VoterTokens {
	if ttl <= 0 {
		ttl = TokenExpiry
	}
	return &VoterTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for user
func (t *VoterTokens) Issue(user models.User) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := VoterClaims{
		Name:   user.Name,
		GameID: user.GameID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies a token and returns the voter it identifies
func (t *VoterTokens) Parse(tokenString string) (*models.User, error) {
	claims := &VoterClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}

	id, err := strconv.Atoi(claims.Subject)
	if err != nil || id <= 0 || claims.Name == "" {
		return nil, ErrInvalidToken
	}
	return &models.User{ID: id, Name: claims.Name, GameID: claims.GameID}, nil
}

type voterKey struct{}

// WithVoter returns a copy of ctx carrying user
func WithVoter(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, voterKey{}, user)
}

// VoterFromContext returns the voter set by OptionalVoter, if any
func VoterFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(voterKey{}).(*models.User)
	return user, ok && user != nil
}

// OptionalVoter middleware attaches the voter of a valid bearer token to the
// request context. Requests without a token pass through anonymously; a
// present but invalid token is rejected with 401.
func (t *VoterTokens) OptionalVoter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeUnauthorized(w, "Unauthorized - bearer token expected")
			return
		}

		user, err := t.Parse(token)
		if err != nil {
			writeUnauthorized(w, "Unauthorized - invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithVoter(r.Context(), user)))
	})
}
