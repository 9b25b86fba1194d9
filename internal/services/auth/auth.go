// Package services содержит логику бизнес-уровня для регистрации и аутентификации пользователей.
package services

import (
	"context"
	"errors"

	"github.com/membooks/membooks-api/internal/lib/jwt"
	"github.com/membooks/membooks-api/internal/lib/password"
	"github.com/membooks/membooks-api/internal/models"
)

// ErrInvalidCredentials возвращается при неверной паре логин-пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	// CreateUser сохраняет нового пользователя и возвращает его UID.
	CreateUser(ctx context.Context, user models.User) (string, error)

	// GetUserByUsername возвращает пользователя по имени или ошибку, если не найден.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// AuthService отвечает за регистрацию и авторизацию.
type AuthService struct {
	users    UserRepository
	jwtMaker jwt.Maker
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(users UserRepository, jwtMaker jwt.Maker) *AuthService {
	return &AuthService{
		users:    users,
		jwtMaker: jwtMaker,
	}
}

// Register создает нового пользователя с хэшированием пароля. Язык интерфейса
// по умолчанию английский, премиум выключен до подтверждения оплаты.
func (s *AuthService) Register(ctx context.Context, email, username, rawPassword, language string) (string, error) {
	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return "", err
	}
	if language == "" {
		language = "en"
	}
	user := models.User{
		Email:        email,
		Username:     username,
		PasswordHash: hashed,
		Language:     language,
	}
	return s.users.CreateUser(ctx, user)
}

// Login проверяет пароль пользователя и генерирует JWT.
func (s *AuthService) Login(ctx context.Context, username, rawPassword string) (string, *models.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", nil, err
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.jwtMaker.GenerateToken(user.Username, user.Email, user.UID)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}
