package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chatline-app/chat-service/internal/domain"
	"github.com/chatline-app/chat-service/internal/security"
)

type AuthResult struct {
	User        *domain.User
	AccessToken string
}

type AuthService struct {
	users UserRepo
	jwt   *security.JWTSigner
	now   func() time.Time
}

func NewAuthService(users UserRepo, jwt *security.JWTSigner, now func() time.Time) *AuthService {
	if now == nil {
		now = time.Now
	}
	return &AuthService{users: users, jwt: jwt, now: now}
}

func (s *AuthService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" {
		return nil, domain.ErrInvalidLogin
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	token, err := s.jwt.SignAccessToken(u.ID, u.Username, s.now())
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: u, AccessToken: token}, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidLogin
		}
		return nil, err
	}
	if err := security.ComparePassword(u.PasswordHash, password); err != nil {
		return nil, domain.ErrInvalidLogin
	}

	token, err := s.jwt.SignAccessToken(u.ID, u.Username, s.now())
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: u, AccessToken: token}, nil
}

// ValidateToken проверяет bearer-токен; вызывается при WS handshake и в HTTP middleware.
func (s *AuthService) ValidateToken(tokenStr string) (userID, username string, err error) {
	claims, err := s.jwt.ParseAndValidate(tokenStr)
	if err != nil {
		return "", "", err
	}
	return claims.Subject, claims.Username, nil
}

// SetStatus — best-effort; ошибка не должна валить соединение.
func (s *AuthService) SetStatus(ctx context.Context, userID string, status domain.UserStatus) error {
	return s.users.SetStatus(ctx, userID, status, s.now())
}
