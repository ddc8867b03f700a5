package admin

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"membership/internal/apperr"
	"membership/internal/auth"
)

// Store is what the service needs from the admin repository.
type Store interface {
	Create(ctx context.Context, a Admin) error
	GetByEmail(ctx context.Context, email string) (Admin, error)
	GetByID(ctx context.Context, id string) (Admin, error)
	List(ctx context.Context) ([]Admin, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, a Admin) error
	UpdatePassword(ctx context.Context, id, hash string) error
	SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (Admin, error)
	ResetPassword(ctx context.Context, id, hash string) error
	SetLastLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// TokenConfig carries the signing parameters for issued tokens.
type TokenConfig struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service authenticates admins and manages their accounts.
type Service struct {
	repo   Store
	tokens TokenConfig
	log    *zap.Logger
	now    func() time.Time

	hash    func(password string) (string, error)
	compare func(hash, password string) error
}

// NewService creates the admin service.
func NewService(repo Store, tokens TokenConfig, log *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		tokens: tokens,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		hash: func(password string) (string, error) {
			h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			return string(h), err
		},
		compare: func(hash, password string) error {
			return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
		},
	}
}

// Login verifies credentials and issues a token pair. Inactive accounts are
// rejected even with a correct password.
func (s *Service) Login(ctx context.Context, email, password string) (Admin, auth.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Admin{}, auth.TokenPair{}, apperr.Validation("please provide email and password", nil)
	}

	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return Admin{}, auth.TokenPair{}, apperr.Unauthorized("incorrect email or password")
		}
		return Admin{}, auth.TokenPair{}, err
	}
	if err := s.compare(a.PasswordHash, password); err != nil {
		return Admin{}, auth.TokenPair{}, apperr.Unauthorized("incorrect email or password")
	}
	if a.Status != "active" {
		return Admin{}, auth.TokenPair{}, apperr.Unauthorized("your account is not active")
	}

	tokens, err := auth.Issue(a.ID, a.Role, s.tokens.Issuer, s.tokens.SigningKey,
		s.tokens.AccessTTL, s.tokens.RefreshTTL)
	if err != nil {
		return Admin{}, auth.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}

	now := s.now()
	if err := s.repo.SetLastLogin(ctx, a.ID, now); err != nil {
		s.log.Warn("failed to stamp last login", zap.String("admin_id", a.ID), zap.Error(err))
	}
	a.LastLogin = &now
	return a, tokens, nil
}

// RegisterInput creates a new admin account.
type RegisterInput struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Register creates an admin (superadmin operation).
func (s *Service) Register(ctx context.Context, in RegisterInput) (Admin, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	fields := map[string]string{}
	if in.FullName == "" {
		fields["fullName"] = "is required"
	}
	if in.Email == "" {
		fields["email"] = "is required"
	}
	if len(in.Password) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	if in.Role == "" {
		in.Role = auth.RoleAdmin
	}
	if in.Role != auth.RoleAdmin && in.Role != auth.RoleSuperadmin {
		fields["role"] = "must be one of: admin superadmin"
	}
	if len(fields) > 0 {
		return Admin{}, apperr.Validation("invalid admin input", fields)
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return Admin{}, apperr.Conflict("admin already exists with this email")
	} else if !apperr.IsKind(err, apperr.KindNotFound) {
		return Admin{}, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return Admin{}, fmt.Errorf("hash password: %w", err)
	}
	a := Admin{
		ID:           uuid.NewString(),
		FullName:     in.FullName,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		Status:       "active",
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return Admin{}, fmt.Errorf("create admin: %w", err)
	}
	s.log.Info("admin registered", zap.String("email", a.Email), zap.String("role", a.Role))
	return a, nil
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, adminID, current, next string) error {
	a, err := s.repo.GetByID(ctx, adminID)
	if err != nil {
		return err
	}
	if err := s.compare(a.PasswordHash, current); err != nil {
		return apperr.Unauthorized("current password is incorrect")
	}
	if len(next) < 8 {
		return apperr.Validation("invalid password", map[string]string{
			"password": "must be at least 8 characters"})
	}
	hash, err := s.hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, adminID, hash)
}

// resetTokenTTL bounds how long a password-reset token stays usable.
const resetTokenTTL = 10 * time.Minute

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ForgotPassword generates a one-time reset token for the account behind
// email. Only the SHA-256 hash of the token is stored; the raw token is
// returned to the caller for delivery.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return "", apperr.NotFound("there is no admin with this email address")
		}
		return "", err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	token := hex.EncodeToString(raw)

	expires := s.now().Add(resetTokenTTL)
	if err := s.repo.SetResetToken(ctx, a.ID, hashResetToken(token), expires); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}
	s.log.Info("password reset token generated", zap.String("admin_id", a.ID))
	return token, nil
}

// ResetPassword consumes a reset token, stores the new password, and issues
// a fresh token pair so the caller is logged in immediately.
func (s *Service) ResetPassword(ctx context.Context, token, password string) (Admin, auth.TokenPair, error) {
	a, err := s.repo.GetByResetToken(ctx, hashResetToken(token), s.now())
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return Admin{}, auth.TokenPair{}, apperr.Validation("token is invalid or has expired", nil)
		}
		return Admin{}, auth.TokenPair{}, err
	}
	if len(password) < 8 {
		return Admin{}, auth.TokenPair{}, apperr.Validation("invalid password", map[string]string{
			"password": "must be at least 8 characters"})
	}

	hash, err := s.hash(password)
	if err != nil {
		return Admin{}, auth.TokenPair{}, fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.ResetPassword(ctx, a.ID, hash); err != nil {
		return Admin{}, auth.TokenPair{}, fmt.Errorf("reset password: %w", err)
	}
	a.PasswordHash = hash

	tokens, err := auth.Issue(a.ID, a.Role, s.tokens.Issuer, s.tokens.SigningKey,
		s.tokens.AccessTTL, s.tokens.RefreshTTL)
	if err != nil {
		return Admin{}, auth.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	s.log.Info("password reset completed", zap.String("admin_id", a.ID))
	return a, tokens, nil
}

// Get returns one admin account.
func (s *Service) Get(ctx context.Context, adminID string) (Admin, error) {
	return s.repo.GetByID(ctx, adminID)
}

// List returns all admin accounts.
func (s *Service) List(ctx context.Context) ([]Admin, error) {
	return s.repo.List(ctx)
}

// UpdateInput is a partial admin edit.
type UpdateInput struct {
	FullName *string `json:"fullName"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
}

// Update applies a partial edit to an admin account.
func (s *Service) Update(ctx context.Context, adminID string, in UpdateInput) (Admin, error) {
	a, err := s.repo.GetByID(ctx, adminID)
	if err != nil {
		return Admin{}, err
	}
	if in.FullName != nil {
		a.FullName = *in.FullName
	}
	if in.Email != nil {
		a.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Role != nil {
		if *in.Role != auth.RoleAdmin && *in.Role != auth.RoleSuperadmin {
			return Admin{}, apperr.Validation("invalid admin input", map[string]string{
				"role": "must be one of: admin superadmin"})
		}
		a.Role = *in.Role
	}
	if in.Status != nil {
		if *in.Status != "active" && *in.Status != "inactive" {
			return Admin{}, apperr.Validation("invalid admin input", map[string]string{
				"status": "must be one of: active inactive"})
		}
		a.Status = *in.Status
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return Admin{}, err
	}
	return a, nil
}

// Delete removes an admin account.
func (s *Service) Delete(ctx context.Context, adminID string) error {
	return s.repo.Delete(ctx, adminID)
}

// Bootstrap creates the initial superadmin when the table is empty and
// credentials are configured. Called once at startup.
func (s *Service) Bootstrap(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	n, err := s.repo.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = s.Register(ctx, RegisterInput{
		FullName: "Super Admin",
		Email:    email,
		Password: password,
		Role:     auth.RoleSuperadmin,
	})
	if err != nil {
		return err
	}
	s.log.Info("bootstrap superadmin created", zap.String("email", email))
	return nil
}
