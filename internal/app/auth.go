package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"orderchat/pkg/auth"
	"orderchat/pkg/domain"
)

// SignUp registers a new user with the given role. Emails are stored
// lowercased so uniqueness is case-insensitive.
func (a *App) SignUp(email, password string, role domain.UserRole) (domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, ErrEmailAndPasswordRequired
	}
	if role != domain.RoleAdmin {
		role = domain.RoleUser
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, ErrEmailExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// SignIn verifies the credentials and issues a bearer token.
func (a *App) SignIn(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return domain.User{}, "", ErrUserNotFound
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidPassword
	}
	tok, err := a.tokens.Generate(user.ID, user.Role)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("generate token: %w", err)
	}
	return user, tok, nil
}

// UserFromToken decodes a bearer token and re-validates the identity
// against the store. A decoded-but-deleted user is rejected.
func (a *App) UserFromToken(raw string) (domain.User, error) {
	claims, err := a.tokens.Decode(raw)
	if err != nil {
		return domain.User{}, ErrTokenInvalid
	}
	return a.GetUserByID(claims.UserID)
}

// GetUserByID loads a user or fails with ErrUserNotFound.
func (a *App) GetUserByID(id string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}
