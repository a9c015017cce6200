package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chat-relay/internal/config"
	"chat-relay/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// AnonymousName is the display name of connections without a token.
const AnonymousName = "Anonymous"

var ErrInvalidToken = errors.New("invalid token")

// Identity is who a connection speaks as: an authenticated user, or the
// anonymous marker (zero value).
type Identity struct {
	UserID   int64
	Username string
}

func Anonymous() Identity {
	return Identity{}
}

func (i Identity) IsAuthenticated() bool {
	return i.UserID != 0
}

func (i Identity) DisplayName() string {
	if !i.IsAuthenticated() {
		return AnonymousName
	}
	return i.Username
}

func (i Identity) Author() models.Author {
	return models.Author{UserID: i.UserID, Username: i.Username}
}

type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service resolves identities from HS256 tokens. It never stores credentials.
type Service struct {
	secret    []byte
	expiresIn time.Duration
}

func NewService(cfg config.JWTConfig) *Service {
	return &Service{
		secret:    []byte(cfg.Secret),
		expiresIn: cfg.ExpiresIn,
	}
}

// IssueToken signs a token for the given user.
func (s *Service) IssueToken(userID int64, username string) (string, error) {
	if userID <= 0 || strings.TrimSpace(username) == "" {
		return "", fmt.Errorf("user id and username are required")
	}

	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID <= 0 || claims.Username == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IdentityFromRequest reads the token from the "token" query parameter or a
// Bearer Authorization header. No token means anonymous; a bad token is an error.
func (s *Service) IdentityFromRequest(r *http.Request) (Identity, error) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		if header := r.Header.Get("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return Identity{}, ErrInvalidToken
			}
			tokenStr = strings.TrimSpace(parts[1])
		}
	}
	if tokenStr == "" {
		return Anonymous(), nil
	}

	claims, err := s.ValidateToken(tokenStr)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.UserID, Username: claims.Username}, nil
}
