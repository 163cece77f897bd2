package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ksred/bistro-api/pkg/response"
)

var (
	ErrInvalidEmail    = errors.New("email must contain @")
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenGeneration = errors.New("failed to generate token")
)

const tokenTTL = 12 * time.Hour

// LoginRequest identifies a staff member. No password is checked; the
// issuer only binds the email into a signed token.
type LoginRequest struct {
	Email string `json:"email" binding:"required"`
}

type TokenResponse struct {
	Token      string    `json:"token"`
	Expiration time.Time `json:"expiration"`
}

type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Service issues and validates staff JWTs
type Service struct {
	jwtSecret []byte
	now       func() time.Time
}

func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
}

// Login issues an HS256 token for any well formed email
func (s *Service) Login(req LoginRequest) (*TokenResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	now := s.now()
	expiration := now.Add(tokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		Email: email,
		Role:  "staff",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      signed,
		Expiration: expiration,
	}, nil
}

// ValidateToken verifies signature and expiry and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// LoginHandler handles POST /auth/login
func (h *GinHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}

		token, err := h.service.Login(req)
		if errors.Is(err, ErrInvalidEmail) {
			response.ValidationFailed(c, err.Error())
			return
		}
		if err != nil {
			response.Fail(c, err, "Failed to issue token")
			return
		}
		response.JSON(c, http.StatusOK, token)
	}
}
