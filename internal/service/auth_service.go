package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"time"

	"backend/internal/apperr"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 7 * 24 * time.Hour
)

type CreateOperatorRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type OperatorResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// AuthService manages operator accounts and token issuance. Queue decisions
// are attributed to the username carried in the access token.
type AuthService interface {
	CreateOperator(ctx context.Context, req CreateOperatorRequest) (*OperatorResponse, error)
	Login(ctx context.Context, req LoginRequest) (*TokenPairResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPairResponse, error)
	Logout(ctx context.Context, refreshToken string) error
}

type authService struct {
	operators repository.OperatorRepository
}

func NewAuthService(operators repository.OperatorRepository) AuthService {
	return &authService{operators: operators}
}

func validOperatorRole(role string) bool {
	return role == model.RoleAdmin || role == model.RoleSupervisor
}

func (s *authService) CreateOperator(ctx context.Context, req CreateOperatorRequest) (*OperatorResponse, error) {
	if !validOperatorRole(req.Role) {
		return nil, apperr.Validation("role must be admin or supervisor")
	}
	if req.Username == model.SystemOperator {
		return nil, apperr.Validation("username is reserved")
	}
	if _, err := s.operators.FindByUsername(ctx, req.Username); err == nil {
		return nil, apperr.Conflict("username already exists")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Infrastructure(err, "auth: hash password")
	}

	op := model.Operator{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hashed),
		Role:     req.Role,
	}
	if err := s.operators.Create(ctx, &op); err != nil {
		return nil, err
	}

	return &OperatorResponse{
		ID:       op.ID.String(),
		Username: op.Username,
		Email:    op.Email,
		Role:     op.Role,
	}, nil
}

func (s *authService) Login(ctx context.Context, req LoginRequest) (*TokenPairResponse, error) {
	op, err := s.operators.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, apperr.Validation("invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.Password), []byte(req.Password)); err != nil {
		return nil, apperr.Validation("invalid username or password")
	}
	return s.issueTokens(ctx, op)
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPairResponse, error) {
	stored, err := s.operators.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Validation("unknown refresh token")
		}
		return nil, err
	}
	if time.Now().After(stored.ExpiresAt) {
		_ = s.operators.DeleteRefreshToken(ctx, refreshToken)
		return nil, apperr.Validation("refresh token expired")
	}

	op, err := s.operators.FindByID(ctx, stored.OperatorID)
	if err != nil {
		return nil, err
	}

	// Rotate: one use per refresh token.
	if err := s.operators.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, op)
}

func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	return s.operators.DeleteRefreshToken(ctx, refreshToken)
}

func (s *authService) issueTokens(ctx context.Context, op *model.Operator) (*TokenPairResponse, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      op.ID.String(),
		"username": op.Username,
		"role":     op.Role,
		"iat":      now.Unix(),
		"exp":      now.Add(accessTokenTTL).Unix(),
	})

	access, err := token.SignedString(jwtSecret())
	if err != nil {
		return nil, apperr.Infrastructure(err, "auth: sign token")
	}

	refresh, err := randomToken()
	if err != nil {
		return nil, apperr.Infrastructure(err, "auth: generate refresh token")
	}
	if err := s.operators.SaveRefreshToken(ctx, &model.RefreshToken{
		OperatorID: op.ID,
		Token:      refresh,
		ExpiresAt:  now.Add(refreshTokenTTL),
	}); err != nil {
		return nil, err
	}

	return &TokenPairResponse{AccessToken: access, RefreshToken: refresh}, nil
}

func jwtSecret() []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "default_super_secret_key"
	}
	return []byte(secret)
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
