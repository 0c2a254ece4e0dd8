// Package service — authentication business logic.
package service

import (
	"log/slog"

	"github.com/sakif/contribtrack/internal/apperror"
	"github.com/sakif/contribtrack/internal/auth"
)

// AdminAuthService authenticates staff reviewers.
//
// Review decisions, reconciliation triggers and purges are admin-only, so
// those routes sit behind a JWT cookie. The credential store is deliberately
// tiny: one admin account configured through the environment, its password
// bcrypt-hashed at startup. This system has exactly one operator role; a
// users-and-roles table would be machinery without a requirement behind it.
type AdminAuthService struct {
	username     string
	passwordHash string
	tokens       *auth.TokenService
	passwords    *auth.PasswordService
	logger       *slog.Logger
}

// NewAdminAuthService creates an AdminAuthService for the configured admin
// account. The plaintext password is hashed once here and discarded.
func NewAdminAuthService(
	username, password string,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) (*AdminAuthService, error) {
	hash, err := passwords.Hash(password)
	if err != nil {
		return nil, err
	}
	return &AdminAuthService{
		username:     username,
		passwordHash: hash,
		tokens:       tokens,
		passwords:    passwords,
		logger:       logger,
	}, nil
}

// Login verifies the credentials and returns a signed JWT for the admin.
//
// Both failure modes (wrong username, wrong password) return the same
// Forbidden error — no hint about which half was wrong.
func (s *AdminAuthService) Login(username, password string) (string, error) {
	if username != s.username {
		return "", apperror.Forbidden("invalid credentials")
	}
	if err := s.passwords.Verify(s.passwordHash, password); err != nil {
		return "", apperror.Forbidden("invalid credentials")
	}

	token, err := s.tokens.Generate(username)
	if err != nil {
		return "", err
	}

	s.logger.Info("admin logged in", slog.String("username", username))
	return token, nil
}
